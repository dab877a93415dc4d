package payout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/repasse-engine/calendar"
	"github.com/warp/repasse-engine/logger"
)

// =============================================================================
// PERIOD CLOSER - The transactional close
// =============================================================================

// Closer closes payout periods. Close is the only operation that writes.
type Closer struct {
	Store   TxStore
	Clients Registry // used by Due only
	Locks   *KeyedLock
	Log     *logger.Logger

	// MaxRollFraction caps CloseOptions.RollFraction. Zero means 1.
	MaxRollFraction decimal.Decimal

	// Now stamps CreatedAt and LastModified. Defaults to time.Now.
	Now func() time.Time

	initLocks sync.Once
}

// NewCloser wires a closer over a full store.
func NewCloser(store Store, log *logger.Logger) *Closer {
	return &Closer{
		Store:   store,
		Clients: store,
		Locks:   NewKeyedLock(),
		Log:     log,
	}
}

// CloseOptions are the caller's decisions for one close.
type CloseOptions struct {
	// RollFraction, when set, adds RollFraction × (sum of the newly assigned
	// amounts) to the client's ContributedValue in the same unit.
	RollFraction *decimal.Decimal
}

// CloseResult is what a successful close produced.
type CloseResult struct {
	Period   Period
	Assigned []YieldRecord   // with PeriodID set, ordered by date
	Total    decimal.Decimal // sum of Assigned amounts
	Rolled   decimal.Decimal // amount added to ContributedValue (zero if not asked)
}

// Close creates the client's next payout period and binds every unassigned
// yield record in its window to it.
//
// Steps, all inside one WithTx unit:
//  1. Lock and load the client
//  2. Load the latest period
//  3. Compute the window (NextWindow)
//  4. Create the period (sequence = last + 1, or 1)
//  5. Assign the selected records
//  6. Optionally roll the assigned total into ContributedValue
//
// A second Close for the same client while one is in flight fails with
// ErrConcurrencyConflict instead of waiting. Store failures are returned as
// *PersistenceError and leave nothing behind.
func (c *Closer) Close(ctx context.Context, clientID ClientID, opts CloseOptions) (*CloseResult, error) {
	log := c.log().With("client_id", clientID)

	if err := c.checkFraction(opts.RollFraction); err != nil {
		return nil, err
	}

	release, ok := c.locks().TryLock(clientID)
	if !ok {
		err := fmt.Errorf("%w: client %s", ErrConcurrencyConflict, clientID)
		log.Warn("close rejected", "error", err, "kind", Kind(err))
		return nil, err
	}
	defer release()

	var result *CloseResult
	err := c.Store.WithTx(ctx, func(repos Repositories) error {
		var err error
		result, err = c.closeIn(ctx, repos, clientID, opts)
		return err
	})
	if err != nil {
		err = persistenceErr("close period", err)
		log.Error("close failed", "error", err, "kind", Kind(err), "retryable", IsRetryable(err))
		return nil, err
	}

	log.Info("period closed",
		"period_id", result.Period.ID,
		"sequence", result.Period.Sequence,
		"start", result.Period.Start,
		"end", result.Period.End,
		"assigned", len(result.Assigned),
		"total", result.Total,
		"rolled", result.Rolled,
	)
	return result, nil
}

func (c *Closer) closeIn(ctx context.Context, repos Repositories, clientID ClientID, opts CloseOptions) (*CloseResult, error) {
	// 1. Client, locked for the rest of the unit
	client, err := repos.LockClient(ctx, clientID)
	if err != nil {
		return nil, persistenceErr("lock client", err)
	}

	// 2-3. Window
	last, err := repos.LastPeriod(ctx, clientID)
	if err != nil {
		return nil, persistenceErr("load last period", err)
	}
	window, err := NextWindow(client, last)
	if err != nil {
		return nil, err
	}

	// 4. Period
	now := c.now()
	period := Period{
		ID:        PeriodID(uuid.NewString()),
		ClientID:  clientID,
		Sequence:  NextSequence(last),
		Start:     window.Start,
		End:       window.End,
		CreatedAt: now,
	}
	if err := repos.CreatePeriod(ctx, period); err != nil {
		return nil, persistenceErr("create period", err)
	}

	// 5. Assignment
	selected, err := AssignmentEngine{Records: repos}.SelectUnassigned(ctx, clientID, window)
	if err != nil {
		return nil, persistenceErr("select records", err)
	}
	if len(selected) > 0 {
		if err := repos.AssignRecords(ctx, period.ID, RecordIDs(selected)); err != nil {
			return nil, persistenceErr("assign records", err)
		}
	}
	for i := range selected {
		selected[i].PeriodID = period.ID
	}

	// 6. Roll-in. Asking for one always stamps LastModified, even when the
	// window had nothing to roll.
	total := SumAmounts(selected)
	rolled := decimal.Zero
	if opts.RollFraction != nil {
		rolled = total.Mul(*opts.RollFraction)
		if err := repos.UpdateContribution(ctx, clientID, client.ContributedValue.Add(rolled), now); err != nil {
			return nil, persistenceErr("update contribution", err)
		}
	}

	return &CloseResult{
		Period:   period,
		Assigned: selected,
		Total:    total,
		Rolled:   rolled,
	}, nil
}

// =============================================================================
// READ-ONLY QUERIES
// =============================================================================

// NextClose describes the period the next Close would create.
type NextClose struct {
	Client   Client
	Sequence int
	Window   calendar.Window
}

// Preview computes the next window without writing anything.
func (c *Closer) Preview(ctx context.Context, clientID ClientID) (NextClose, error) {
	client, err := c.Store.GetClient(ctx, clientID)
	if err != nil {
		return NextClose{}, persistenceErr("load client", err)
	}
	return c.preview(ctx, client)
}

func (c *Closer) preview(ctx context.Context, client Client) (NextClose, error) {
	last, err := c.Store.LastPeriod(ctx, client.ID)
	if err != nil {
		return NextClose{}, persistenceErr("load last period", err)
	}
	window, err := NextWindow(client, last)
	if err != nil {
		return NextClose{}, err
	}
	return NextClose{Client: client, Sequence: NextSequence(last), Window: window}, nil
}

// Due lists the clients whose next window ends on the given day. It only
// reports; closing stays the caller's decision. Clients whose window cannot
// be computed are logged and left out.
func (c *Closer) Due(ctx context.Context, on calendar.Date) ([]NextClose, error) {
	if c.Clients == nil {
		return nil, fmt.Errorf("%w: due report needs a client registry", ErrInvalidInput)
	}
	clients, err := c.Clients.ListClients(ctx)
	if err != nil {
		return nil, persistenceErr("list clients", err)
	}

	var due []NextClose
	for _, client := range clients {
		next, err := c.preview(ctx, client)
		if errors.Is(err, ErrInvalidDate) {
			c.log().Warn("skipping client in due report", "client_id", client.ID, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		if next.Window.End == on {
			due = append(due, next)
		}
	}
	return due, nil
}

// =============================================================================
// CLIENT EDITS
// =============================================================================

// UpdateClient applies patch under the per-client lock used by Close, inside
// one transaction. The registration date anchors the first period: changing
// it once any period exists fails with ErrRegistrationLocked.
func (c *Closer) UpdateClient(ctx context.Context, clientID ClientID, patch ClientPatch) (Client, error) {
	release, ok := c.locks().TryLock(clientID)
	if !ok {
		return Client{}, fmt.Errorf("%w: client %s", ErrConcurrencyConflict, clientID)
	}
	defer release()

	var updated Client
	err := c.Store.WithTx(ctx, func(repos Repositories) error {
		client, err := repos.LockClient(ctx, clientID)
		if err != nil {
			return persistenceErr("lock client", err)
		}

		if patch.movesRegistration(client) {
			last, err := repos.LastPeriod(ctx, clientID)
			if err != nil {
				return persistenceErr("load last period", err)
			}
			if last != nil {
				return fmt.Errorf("%w: client %s has %d period(s)", ErrRegistrationLocked, clientID, last.Sequence)
			}
		}

		updated = patch.Apply(client)
		updated.LastModified = c.now()
		if err := ValidateClient(updated); err != nil {
			return err
		}
		return persistenceErr("update client", repos.UpdateClient(ctx, updated))
	})
	if err != nil {
		return Client{}, persistenceErr("update client", err)
	}

	c.log().Info("client updated", "client_id", clientID)
	return updated, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Closer) checkFraction(f *decimal.Decimal) error {
	if f == nil {
		return nil
	}
	limit := c.MaxRollFraction
	if limit.IsZero() {
		limit = decimal.NewFromInt(1)
	}
	if !f.IsPositive() || f.GreaterThan(limit) {
		return fmt.Errorf("%w: %s not in (0, %s]", ErrInvalidFraction, f, limit)
	}
	return nil
}

func (c *Closer) locks() *KeyedLock {
	c.initLocks.Do(func() {
		if c.Locks == nil {
			c.Locks = NewKeyedLock()
		}
	})
	return c.Locks
}

func (c *Closer) log() *logger.Logger {
	if c.Log == nil {
		return logger.Nop()
	}
	return c.Log
}

func (c *Closer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Kind names the category of an engine error for logs and API bodies.
func Kind(err error) string {
	var dateErr *InvalidDateError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrClientNotFound), errors.Is(err, ErrRecordNotFound):
		return "not_found"
	case errors.As(err, &dateErr):
		return "invalid_" + string(dateErr.Source)
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrInvalidFraction):
		return "invalid_fraction"
	case errors.Is(err, ErrDuplicateRecord):
		return "duplicate"
	case errors.Is(err, ErrRecordAssigned):
		return "record_assigned"
	case errors.Is(err, ErrRegistrationLocked):
		return "registration_locked"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
