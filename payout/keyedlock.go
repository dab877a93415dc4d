package payout

import "sync"

// KeyedLock serializes work per client id without blocking: TryLock fails
// immediately when the key is already held. Different keys never contend
// beyond the short map critical section.
type KeyedLock struct {
	mu   sync.Mutex
	held map[ClientID]struct{}
}

// NewKeyedLock creates an empty lock table.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{held: make(map[ClientID]struct{})}
}

// TryLock acquires key. On success it returns the release function; the
// caller must call it exactly once.
func (k *KeyedLock) TryLock(key ClientID) (release func(), ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, busy := k.held[key]; busy {
		return nil, false
	}
	k.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.held, key)
			k.mu.Unlock()
		})
	}, true
}
