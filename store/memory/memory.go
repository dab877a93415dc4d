// Package memory provides an in-memory payout.Store (for tests and dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/repasse-engine/calendar"
	"github.com/warp/repasse-engine/payout"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	clients map[payout.ClientID]payout.Client
	periods map[payout.ClientID][]payout.Period      // ascending sequence
	records map[payout.ClientID][]payout.YieldRecord // ascending date
}

var _ payout.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		clients: make(map[payout.ClientID]payout.Client),
		periods: make(map[payout.ClientID][]payout.Period),
		records: make(map[payout.ClientID][]payout.YieldRecord),
	}
}

func (m *Memory) Close() error { return nil }

// =============================================================================
// ENGINE REPOSITORIES
// =============================================================================

func (m *Memory) GetClient(_ context.Context, id payout.ClientID) (payout.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getClientLocked(id)
}

// LockClient outside a transaction is a plain read.
func (m *Memory) LockClient(ctx context.Context, id payout.ClientID) (payout.Client, error) {
	return m.GetClient(ctx, id)
}

func (m *Memory) UpdateContribution(_ context.Context, id payout.ClientID, value decimal.Decimal, modifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateContributionLocked(id, value, modifiedAt)
}

func (m *Memory) UpdateClient(_ context.Context, c payout.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateClientLocked(c)
}

func (m *Memory) LastPeriod(_ context.Context, clientID payout.ClientID) (*payout.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPeriodLocked(clientID), nil
}

func (m *Memory) ListPeriods(_ context.Context, clientID payout.ClientID) ([]payout.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]payout.Period(nil), m.periods[clientID]...), nil
}

func (m *Memory) CreatePeriod(_ context.Context, p payout.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPeriodLocked(p)
}

func (m *Memory) RecordsInWindow(_ context.Context, clientID payout.ClientID, w calendar.Window) ([]payout.YieldRecord, error) {
	if err := payout.ValidateWindow(w); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recordsInWindowLocked(clientID, w), nil
}

func (m *Memory) AssignRecords(_ context.Context, periodID payout.PeriodID, ids []payout.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assignLocked(periodID, ids)
}

// =============================================================================
// REGISTRY / YIELD BOOK
// =============================================================================

func (m *Memory) SaveClient(_ context.Context, c payout.Client) error {
	if err := payout.ValidateClient(c); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
	return nil
}

func (m *Memory) ListClients(_ context.Context) ([]payout.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]payout.Client, 0, len(m.clients))
	for _, c := range m.clients {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// DeleteClient removes the client with its periods and records.
func (m *Memory) DeleteClient(_ context.Context, id payout.ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[id]; !ok {
		return fmt.Errorf("%w: %s", payout.ErrClientNotFound, id)
	}
	delete(m.clients, id)
	delete(m.periods, id)
	delete(m.records, id)
	return nil
}

func (m *Memory) ListRecords(_ context.Context, clientID payout.ClientID, filter payout.RecordFilter) ([]payout.YieldRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payout.YieldRecord
	for _, r := range m.records[clientID] {
		if filter.Matches(r) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *Memory) CreateRecord(_ context.Context, r payout.YieldRecord) error {
	if err := payout.ValidateRecord(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[r.ClientID]; !ok {
		return fmt.Errorf("%w: %s", payout.ErrClientNotFound, r.ClientID)
	}
	recs := m.records[r.ClientID]

	// Binary search for insertion point; dates are unique per client
	i := sort.Search(len(recs), func(i int) bool {
		return !recs[i].Date.Before(r.Date)
	})
	if i < len(recs) && recs[i].Date == r.Date {
		return fmt.Errorf("%w: %s", payout.ErrDuplicateRecord, r.Date)
	}

	recs = append(recs, payout.YieldRecord{})
	copy(recs[i+1:], recs[i:])
	recs[i] = r
	m.records[r.ClientID] = recs
	return nil
}

func (m *Memory) UpdateRecord(_ context.Context, clientID payout.ClientID, date calendar.Date, patch payout.RecordPatch) (payout.YieldRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, err := m.editableLocked(clientID, date)
	if err != nil {
		return payout.YieldRecord{}, err
	}
	updated := patch.Apply(m.records[clientID][i])
	m.records[clientID][i] = updated
	return updated, nil
}

func (m *Memory) DeleteRecord(_ context.Context, clientID payout.ClientID, date calendar.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, err := m.editableLocked(clientID, date)
	if err != nil {
		return err
	}
	recs := m.records[clientID]
	m.records[clientID] = append(recs[:i:i], recs[i+1:]...)
	return nil
}

// =============================================================================
// LOCKED HELPERS - Caller holds mu
// =============================================================================

func (m *Memory) getClientLocked(id payout.ClientID) (payout.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return payout.Client{}, fmt.Errorf("%w: %s", payout.ErrClientNotFound, id)
	}
	return c, nil
}

func (m *Memory) updateContributionLocked(id payout.ClientID, value decimal.Decimal, modifiedAt time.Time) error {
	c, err := m.getClientLocked(id)
	if err != nil {
		return err
	}
	c.ContributedValue = value
	c.LastModified = modifiedAt
	m.clients[id] = c
	return nil
}

func (m *Memory) updateClientLocked(c payout.Client) error {
	if err := payout.ValidateClient(c); err != nil {
		return err
	}
	if _, err := m.getClientLocked(c.ID); err != nil {
		return err
	}
	m.clients[c.ID] = c
	return nil
}

func (m *Memory) lastPeriodLocked(clientID payout.ClientID) *payout.Period {
	ps := m.periods[clientID]
	if len(ps) == 0 {
		return nil
	}
	last := ps[len(ps)-1]
	return &last
}

func (m *Memory) createPeriodLocked(p payout.Period) error {
	if _, ok := m.clients[p.ClientID]; !ok {
		return fmt.Errorf("%w: %s", payout.ErrClientNotFound, p.ClientID)
	}
	for _, existing := range m.periods[p.ClientID] {
		if existing.Sequence == p.Sequence {
			return fmt.Errorf("%w: period %d already exists", payout.ErrConcurrencyConflict, p.Sequence)
		}
	}
	ps := append(m.periods[p.ClientID], p)
	sort.Slice(ps, func(i, j int) bool { return ps[i].Sequence < ps[j].Sequence })
	m.periods[p.ClientID] = ps
	return nil
}

func (m *Memory) recordsInWindowLocked(clientID payout.ClientID, w calendar.Window) []payout.YieldRecord {
	var result []payout.YieldRecord
	for _, r := range m.records[clientID] {
		if w.Contains(r.Date) {
			result = append(result, r)
		}
	}
	return result
}

// assignLocked checks every id first so a conflict changes nothing.
func (m *Memory) assignLocked(periodID payout.PeriodID, ids []payout.RecordID) error {
	type loc struct {
		client payout.ClientID
		index  int
	}
	want := make(map[payout.RecordID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var found []loc
	for clientID, recs := range m.records {
		for i, r := range recs {
			if !want[r.ID] {
				continue
			}
			if r.Assigned() {
				return fmt.Errorf("%w: record %s already in period %s", payout.ErrConcurrencyConflict, r.ID, r.PeriodID)
			}
			found = append(found, loc{client: clientID, index: i})
		}
	}
	if len(found) != len(want) {
		return fmt.Errorf("%w: %d of %d records missing", payout.ErrRecordNotFound, len(want)-len(found), len(want))
	}

	for _, l := range found {
		m.records[l.client][l.index].PeriodID = periodID
	}
	return nil
}

func (m *Memory) editableLocked(clientID payout.ClientID, date calendar.Date) (int, error) {
	for i, r := range m.records[clientID] {
		if r.Date != date {
			continue
		}
		if r.Assigned() {
			return 0, fmt.Errorf("%w: %s", payout.ErrRecordAssigned, date)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%w: %s %s", payout.ErrRecordNotFound, clientID, date)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The store lock is held for the whole unit, so transactions run one at a time.
func (m *Memory) WithTx(ctx context.Context, fn func(payout.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	clients map[payout.ClientID]payout.Client
	periods map[payout.ClientID][]payout.Period
	records map[payout.ClientID][]payout.YieldRecord
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		clients: make(map[payout.ClientID]payout.Client, len(m.clients)),
		periods: make(map[payout.ClientID][]payout.Period, len(m.periods)),
		records: make(map[payout.ClientID][]payout.YieldRecord, len(m.records)),
	}
	for k, v := range m.clients {
		s.clients[k] = v
	}
	for k, v := range m.periods {
		s.periods[k] = append([]payout.Period{}, v...)
	}
	for k, v := range m.records {
		s.records[k] = append([]payout.YieldRecord{}, v...)
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.clients = s.clients
	m.periods = s.periods
	m.records = s.records
}

// txView is the Repositories handed to a WithTx callback. Its parent's lock
// is already held.
type txView struct {
	parent *Memory
}

func (tv *txView) GetClient(_ context.Context, id payout.ClientID) (payout.Client, error) {
	return tv.parent.getClientLocked(id)
}

func (tv *txView) LockClient(_ context.Context, id payout.ClientID) (payout.Client, error) {
	return tv.parent.getClientLocked(id)
}

func (tv *txView) UpdateContribution(_ context.Context, id payout.ClientID, value decimal.Decimal, modifiedAt time.Time) error {
	return tv.parent.updateContributionLocked(id, value, modifiedAt)
}

func (tv *txView) UpdateClient(_ context.Context, c payout.Client) error {
	return tv.parent.updateClientLocked(c)
}

func (tv *txView) LastPeriod(_ context.Context, clientID payout.ClientID) (*payout.Period, error) {
	return tv.parent.lastPeriodLocked(clientID), nil
}

func (tv *txView) ListPeriods(_ context.Context, clientID payout.ClientID) ([]payout.Period, error) {
	return append([]payout.Period(nil), tv.parent.periods[clientID]...), nil
}

func (tv *txView) CreatePeriod(_ context.Context, p payout.Period) error {
	return tv.parent.createPeriodLocked(p)
}

func (tv *txView) RecordsInWindow(_ context.Context, clientID payout.ClientID, w calendar.Window) ([]payout.YieldRecord, error) {
	if err := payout.ValidateWindow(w); err != nil {
		return nil, err
	}
	return tv.parent.recordsInWindowLocked(clientID, w), nil
}

func (tv *txView) AssignRecords(_ context.Context, periodID payout.PeriodID, ids []payout.RecordID) error {
	return tv.parent.assignLocked(periodID, ids)
}
