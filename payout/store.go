/*
store.go - Persistence interfaces for the closing engine

PURPOSE:
  The engine talks to storage only through three narrow repositories, so it
  has no framework dependency and can be tested against in-memory fakes.

KEY INTERFACES:
  ClientRepository: Read and row-lock a client; roll yield into its balance
  PeriodRepository: Latest/list/create payout periods
  YieldRepository:  Read records in a window; bind records to a period
  TxStore:          Runs a function over all three atomically

  Registry / YieldBook (registry.go) are the CRUD collaborators that sit
  next to the engine. Store bundles everything one backend provides.

ATOMIC UNIT:
  WithTx(fn) commits only if fn returns nil. Readers outside the unit never
  observe its intermediate writes.

WRITE-ONCE ASSIGNMENT:
  AssignRecords must only update records whose PeriodID is still empty and
  must return ErrConcurrencyConflict if any of the given ids was already
  taken. Together with the unique (client, sequence) constraint behind
  CreatePeriod this detects races the per-client lock did not prevent.

IMPLEMENTATIONS:
  - store/memory:    In-memory, snapshot + restore on rollback
  - store/sqlite:    database/sql + go-sqlite3
  - store/gormstore: gorm (Postgres in production, SELECT ... FOR UPDATE NOWAIT)
*/
package payout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/repasse-engine/calendar"
)

// =============================================================================
// REPOSITORIES - What the closing engine needs
// =============================================================================

// ClientRepository reads clients and updates them under the client lock.
type ClientRepository interface {
	// GetClient returns ErrClientNotFound if the id is unknown.
	GetClient(ctx context.Context, id ClientID) (Client, error)

	// LockClient is GetClient plus a lock on the client held until the
	// enclosing transaction ends. Outside WithTx it behaves like GetClient.
	LockClient(ctx context.Context, id ClientID) (Client, error)

	// UpdateContribution sets ContributedValue and LastModified.
	UpdateContribution(ctx context.Context, id ClientID, value decimal.Decimal, modifiedAt time.Time) error

	// UpdateClient overwrites an existing client. Returns ErrClientNotFound
	// if the id is unknown; it never inserts.
	UpdateClient(ctx context.Context, c Client) error
}

// PeriodRepository stores payout periods. Periods are never updated.
type PeriodRepository interface {
	// LastPeriod returns the highest-sequence period, or nil if none exists.
	LastPeriod(ctx context.Context, clientID ClientID) (*Period, error)

	// ListPeriods returns all periods ordered by ascending sequence.
	ListPeriods(ctx context.Context, clientID ClientID) ([]Period, error)

	// CreatePeriod inserts p. Returns ErrConcurrencyConflict if the client
	// already has a period with the same sequence.
	CreatePeriod(ctx context.Context, p Period) error
}

// YieldRepository is the engine's view of yield records.
type YieldRepository interface {
	// RecordsInWindow returns the client's records dated inside w,
	// assigned or not, ordered by date.
	RecordsInWindow(ctx context.Context, clientID ClientID, w calendar.Window) ([]YieldRecord, error)

	// AssignRecords sets PeriodID on every id, only where it is still empty.
	AssignRecords(ctx context.Context, periodID PeriodID, ids []RecordID) error
}

// Repositories is the set of repositories visible inside a transaction.
type Repositories interface {
	ClientRepository
	PeriodRepository
	YieldRepository
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Repositories with transaction support.
type TxStore interface {
	Repositories

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through repos is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(repos Repositories) error) error
}

// Store is everything a storage backend provides to the service.
type Store interface {
	TxStore
	Registry
	YieldBook
	Close() error
}
