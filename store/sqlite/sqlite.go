/*
Package sqlite provides a SQLite-backed implementation of payout.Store.

PURPOSE:
  Persists clients, payout periods and yield records with database/sql and
  go-sqlite3. The same schema runs on PostgreSQL through store/gormstore.

INTERFACES IMPLEMENTED:
  payout.TxStore:   Engine repositories + WithTx
  payout.Registry:  Client CRUD
  payout.YieldBook: Yield record CRUD

KEY TABLES:
  clients:       One row per investor
  periods:       Closed payout periods, never updated
  yield_records: Dated yield entries; period_id is NULL until a close binds it

CONSTRAINTS:
  - periods UNIQUE(client_id, sequence): two racing closes cannot both
    create the same period number
  - yield_records UNIQUE(client_id, date): records are addressed by day
  - ON DELETE CASCADE from clients to both child tables

CONCURRENCY:
  Transactions start with BEGIN IMMEDIATE (_txlock=immediate), so a close
  holds the write lock from its first read. A writer that cannot get the
  lock within the busy timeout fails with payout.ErrConcurrencyConflict.
  AssignRecords only updates rows WHERE period_id IS NULL and treats a short
  affected-row count as a conflict.

DATES AND MONEY:
  Dates are stored as ISO-8601 TEXT (sortable, so BETWEEN works) and
  decimals as TEXT so no precision is lost.

USAGE:
  store, err := sqlite.New("./data/repasse.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - payout/store.go: Interface definitions
  - store/memory:    In-memory implementation for testing
  - store/gormstore: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/repasse-engine/calendar"
	"github.com/warp/repasse-engine/payout"
)

// BusyTimeout bounds how long a writer waits for the database lock.
const BusyTimeout = 5 * time.Second

// Store implements payout.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ payout.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=%d",
		dbPath, BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		registration_date TEXT NOT NULL,
		contracted_yield TEXT NOT NULL DEFAULT '0',
		contributed_value TEXT NOT NULL DEFAULT '0',
		last_modified TEXT
	);

	CREATE TABLE IF NOT EXISTS periods (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		sequence INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- One period per number per client
	CREATE UNIQUE INDEX IF NOT EXISTS idx_periods_client_sequence
		ON periods(client_id, sequence);

	CREATE TABLE IF NOT EXISTS yield_records (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		percentage TEXT NOT NULL DEFAULT '0',
		variation TEXT NOT NULL DEFAULT '0',
		amount TEXT NOT NULL DEFAULT '0',
		period_id TEXT REFERENCES periods(id) ON DELETE SET NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_yield_records_client_date
		ON yield_records(client_id, date);
	CREATE INDEX IF NOT EXISTS idx_yield_records_period
		ON yield_records(period_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CLIENTS
// =============================================================================

const clientColumns = `id, name, email, registration_date, contracted_yield, contributed_value, last_modified`

func (s *Store) GetClient(ctx context.Context, id payout.ClientID) (payout.Client, error) {
	return getClient(ctx, s.db, id)
}

// LockClient outside a transaction is a plain read. Inside WithTx the
// IMMEDIATE transaction already holds the write lock.
func (s *Store) LockClient(ctx context.Context, id payout.ClientID) (payout.Client, error) {
	return getClient(ctx, s.db, id)
}

func (s *Store) UpdateContribution(ctx context.Context, id payout.ClientID, value decimal.Decimal, modifiedAt time.Time) error {
	return updateContribution(ctx, s.db, id, value, modifiedAt)
}

func (s *Store) UpdateClient(ctx context.Context, c payout.Client) error {
	return updateClient(ctx, s.db, c)
}

func getClient(ctx context.Context, q querier, id payout.ClientID) (payout.Client, error) {
	row := q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payout.Client{}, fmt.Errorf("%w: %s", payout.ErrClientNotFound, id)
	}
	return c, err
}

func updateClient(ctx context.Context, q querier, c payout.Client) error {
	if err := payout.ValidateClient(c); err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		UPDATE clients SET
			name = ?, email = ?, registration_date = ?,
			contracted_yield = ?, contributed_value = ?, last_modified = ?
		WHERE id = ?`,
		c.Name, c.Email, c.RegistrationDate.String(),
		c.ContractedYield.String(), c.ContributedValue.String(), formatTime(c.LastModified),
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update client: %w", mapErr(err))
	}
	return expectOne(res, fmt.Errorf("%w: %s", payout.ErrClientNotFound, c.ID))
}

func updateContribution(ctx context.Context, q querier, id payout.ClientID, value decimal.Decimal, modifiedAt time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE clients SET contributed_value = ?, last_modified = ? WHERE id = ?`,
		value.String(), modifiedAt.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update contribution: %w", mapErr(err))
	}
	return expectOne(res, fmt.Errorf("%w: %s", payout.ErrClientNotFound, id))
}

// SaveClient inserts or replaces a client.
func (s *Store) SaveClient(ctx context.Context, c payout.Client) error {
	if err := payout.ValidateClient(c); err != nil {
		return err
	}

	query := `
		INSERT INTO clients (id, name, email, registration_date, contracted_yield, contributed_value, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			registration_date = excluded.registration_date,
			contracted_yield = excluded.contracted_yield,
			contributed_value = excluded.contributed_value,
			last_modified = excluded.last_modified
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Email, c.RegistrationDate.String(),
		c.ContractedYield.String(), c.ContributedValue.String(), formatTime(c.LastModified),
	)
	if err != nil {
		return fmt.Errorf("save client: %w", mapErr(err))
	}
	return nil
}

func (s *Store) ListClients(ctx context.Context) ([]payout.Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payout.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// DeleteClient removes the client; periods and records cascade.
func (s *Store) DeleteClient(ctx context.Context, id payout.ClientID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return expectOne(res, fmt.Errorf("%w: %s", payout.ErrClientNotFound, id))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (payout.Client, error) {
	var (
		c                           payout.Client
		regDate, yield, contributed string
		lastModified                sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &regDate, &yield, &contributed, &lastModified); err != nil {
		return payout.Client{}, err
	}

	d, err := calendar.Parse(regDate)
	if err != nil {
		return payout.Client{}, &payout.InvalidDateError{
			Source: payout.SourceRegistrationDate, ClientID: c.ID, Value: regDate, Err: err,
		}
	}
	c.RegistrationDate = d

	if c.ContractedYield, err = decimal.NewFromString(yield); err != nil {
		return payout.Client{}, fmt.Errorf("client %s contracted_yield: %w", c.ID, err)
	}
	if c.ContributedValue, err = decimal.NewFromString(contributed); err != nil {
		return payout.Client{}, fmt.Errorf("client %s contributed_value: %w", c.ID, err)
	}
	if lastModified.Valid && lastModified.String != "" {
		if c.LastModified, err = time.Parse(time.RFC3339Nano, lastModified.String); err != nil {
			return payout.Client{}, fmt.Errorf("client %s last_modified: %w", c.ID, err)
		}
	}
	return c, nil
}

// =============================================================================
// PERIODS
// =============================================================================

const periodColumns = `id, client_id, sequence, start_date, end_date, created_at`

func (s *Store) LastPeriod(ctx context.Context, clientID payout.ClientID) (*payout.Period, error) {
	return lastPeriod(ctx, s.db, clientID)
}

func (s *Store) ListPeriods(ctx context.Context, clientID payout.ClientID) ([]payout.Period, error) {
	return listPeriods(ctx, s.db, clientID)
}

func (s *Store) CreatePeriod(ctx context.Context, p payout.Period) error {
	return createPeriod(ctx, s.db, p)
}

func lastPeriod(ctx context.Context, q querier, clientID payout.ClientID) (*payout.Period, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+periodColumns+` FROM periods WHERE client_id = ? ORDER BY sequence DESC LIMIT 1`, clientID)
	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func listPeriods(ctx context.Context, q querier, clientID payout.ClientID) ([]payout.Period, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+periodColumns+` FROM periods WHERE client_id = ? ORDER BY sequence`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payout.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func createPeriod(ctx context.Context, q querier, p payout.Period) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO periods (`+periodColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.ClientID, p.Sequence, p.Start.String(), p.End.String(), p.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err == nil {
		return nil
	}
	switch err = mapErr(err); {
	case errors.Is(err, errUnique):
		return fmt.Errorf("%w: period %d of client %s already exists", payout.ErrConcurrencyConflict, p.Sequence, p.ClientID)
	case errors.Is(err, errForeignKey):
		return fmt.Errorf("%w: %s", payout.ErrClientNotFound, p.ClientID)
	default:
		return fmt.Errorf("insert period: %w", err)
	}
}

func scanPeriod(row scanner) (payout.Period, error) {
	var (
		p                   payout.Period
		start, end, created string
	)
	if err := row.Scan(&p.ID, &p.ClientID, &p.Sequence, &start, &end, &created); err != nil {
		return payout.Period{}, err
	}

	var err error
	if p.Start, err = calendar.Parse(start); err != nil {
		return payout.Period{}, &payout.InvalidDateError{Source: payout.SourcePeriodStart, ClientID: p.ClientID, Value: start, Err: err}
	}
	if p.End, err = calendar.Parse(end); err != nil {
		return payout.Period{}, &payout.InvalidDateError{Source: payout.SourcePeriodEnd, ClientID: p.ClientID, Value: end, Err: err}
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return payout.Period{}, fmt.Errorf("period %s created_at: %w", p.ID, err)
	}
	return p, nil
}

// =============================================================================
// YIELD RECORDS - Engine view
// =============================================================================

const recordColumns = `id, client_id, date, percentage, variation, amount, period_id`

func (s *Store) RecordsInWindow(ctx context.Context, clientID payout.ClientID, w calendar.Window) ([]payout.YieldRecord, error) {
	return recordsInWindow(ctx, s.db, clientID, w)
}

func (s *Store) AssignRecords(ctx context.Context, periodID payout.PeriodID, ids []payout.RecordID) error {
	return assignRecords(ctx, s.db, periodID, ids)
}

func recordsInWindow(ctx context.Context, q querier, clientID payout.ClientID, w calendar.Window) ([]payout.YieldRecord, error) {
	if err := payout.ValidateWindow(w); err != nil {
		return nil, err
	}
	return queryRecords(ctx, q,
		`SELECT `+recordColumns+` FROM yield_records
		 WHERE client_id = ? AND date >= ? AND date <= ?
		 ORDER BY date`,
		clientID, w.Start.String(), w.End.String())
}

// assignRecords binds ids to periodID. Rows already bound are left alone and
// reported as a conflict, which rolls the enclosing transaction back.
func assignRecords(ctx context.Context, q querier, periodID payout.PeriodID, ids []payout.RecordID) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, periodID)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE yield_records SET period_id = ?
		WHERE period_id IS NULL AND id IN (` + placeholders(len(ids)) + `)`

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("assign records: %w", mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(ids) {
		return fmt.Errorf("%w: %d of %d records were already assigned", payout.ErrConcurrencyConflict, len(ids)-int(n), len(ids))
	}
	return nil
}

func queryRecords(ctx context.Context, q querier, query string, args ...any) ([]payout.YieldRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payout.YieldRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanRecord(row scanner) (payout.YieldRecord, error) {
	var (
		r                                payout.YieldRecord
		date, percentage, variation, amt string
		periodID                         sql.NullString
	)
	if err := row.Scan(&r.ID, &r.ClientID, &date, &percentage, &variation, &amt, &periodID); err != nil {
		return payout.YieldRecord{}, err
	}

	var err error
	if r.Date, err = calendar.Parse(date); err != nil {
		return payout.YieldRecord{}, &payout.InvalidDateError{Source: payout.SourceRecordDate, ClientID: r.ClientID, Value: date, Err: err}
	}
	if r.Percentage, err = decimal.NewFromString(percentage); err != nil {
		return payout.YieldRecord{}, fmt.Errorf("record %s percentage: %w", r.ID, err)
	}
	if r.Variation, err = decimal.NewFromString(variation); err != nil {
		return payout.YieldRecord{}, fmt.Errorf("record %s variation: %w", r.ID, err)
	}
	if r.Amount, err = decimal.NewFromString(amt); err != nil {
		return payout.YieldRecord{}, fmt.Errorf("record %s amount: %w", r.ID, err)
	}
	r.PeriodID = payout.PeriodID(periodID.String)
	return r, nil
}

// =============================================================================
// YIELD RECORDS - CRUD (payout.YieldBook)
// =============================================================================

func (s *Store) ListRecords(ctx context.Context, clientID payout.ClientID, filter payout.RecordFilter) ([]payout.YieldRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM yield_records WHERE client_id = ?`
	args := []any{clientID}
	if filter.Unassigned {
		query += ` AND period_id IS NULL`
	}
	if filter.PeriodID != "" {
		query += ` AND period_id = ?`
		args = append(args, filter.PeriodID)
	}
	query += ` ORDER BY date`
	return queryRecords(ctx, s.db, query, args...)
}

func (s *Store) CreateRecord(ctx context.Context, r payout.YieldRecord) error {
	if err := payout.ValidateRecord(r); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO yield_records (id, client_id, date, percentage, variation, amount, period_id)
		 VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		r.ID, r.ClientID, r.Date.String(), r.Percentage.String(), r.Variation.String(), r.Amount.String())
	if err == nil {
		return nil
	}
	switch err = mapErr(err); {
	case errors.Is(err, errUnique):
		return fmt.Errorf("%w: %s", payout.ErrDuplicateRecord, r.Date)
	case errors.Is(err, errForeignKey):
		return fmt.Errorf("%w: %s", payout.ErrClientNotFound, r.ClientID)
	default:
		return fmt.Errorf("insert record: %w", err)
	}
}

func (s *Store) UpdateRecord(ctx context.Context, clientID payout.ClientID, date calendar.Date, patch payout.RecordPatch) (payout.YieldRecord, error) {
	var updated payout.YieldRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := editableRecord(ctx, tx, clientID, date)
		if err != nil {
			return err
		}
		updated = patch.Apply(current)
		_, err = tx.ExecContext(ctx,
			`UPDATE yield_records SET percentage = ?, variation = ?, amount = ? WHERE id = ?`,
			updated.Percentage.String(), updated.Variation.String(), updated.Amount.String(), updated.ID)
		return err
	})
	if err != nil {
		return payout.YieldRecord{}, err
	}
	return updated, nil
}

func (s *Store) DeleteRecord(ctx context.Context, clientID payout.ClientID, date calendar.Date) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := editableRecord(ctx, tx, clientID, date)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM yield_records WHERE id = ?`, current.ID)
		return err
	})
}

func editableRecord(ctx context.Context, q querier, clientID payout.ClientID, date calendar.Date) (payout.YieldRecord, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM yield_records WHERE client_id = ? AND date = ?`, clientID, date.String())
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payout.YieldRecord{}, fmt.Errorf("%w: %s %s", payout.ErrRecordNotFound, clientID, date)
	}
	if err != nil {
		return payout.YieldRecord{}, err
	}
	if r.Assigned() {
		return payout.YieldRecord{}, fmt.Errorf("%w: %s", payout.ErrRecordAssigned, date)
	}
	return r, nil
}

// =============================================================================
// TRANSACTIONAL STORE (payout.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(repos payout.Repositories) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapErr(err))
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapErr(err))
	}
	return nil
}

// txStore routes every repository call through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetClient(ctx context.Context, id payout.ClientID) (payout.Client, error) {
	return getClient(ctx, ts.tx, id)
}

func (ts *txStore) LockClient(ctx context.Context, id payout.ClientID) (payout.Client, error) {
	return getClient(ctx, ts.tx, id)
}

func (ts *txStore) UpdateContribution(ctx context.Context, id payout.ClientID, value decimal.Decimal, modifiedAt time.Time) error {
	return updateContribution(ctx, ts.tx, id, value, modifiedAt)
}

func (ts *txStore) UpdateClient(ctx context.Context, c payout.Client) error {
	return updateClient(ctx, ts.tx, c)
}

func (ts *txStore) LastPeriod(ctx context.Context, clientID payout.ClientID) (*payout.Period, error) {
	return lastPeriod(ctx, ts.tx, clientID)
}

func (ts *txStore) ListPeriods(ctx context.Context, clientID payout.ClientID) ([]payout.Period, error) {
	return listPeriods(ctx, ts.tx, clientID)
}

func (ts *txStore) CreatePeriod(ctx context.Context, p payout.Period) error {
	return createPeriod(ctx, ts.tx, p)
}

func (ts *txStore) RecordsInWindow(ctx context.Context, clientID payout.ClientID, w calendar.Window) ([]payout.YieldRecord, error) {
	return recordsInWindow(ctx, ts.tx, clientID, w)
}

func (ts *txStore) AssignRecords(ctx context.Context, periodID payout.PeriodID, ids []payout.RecordID) error {
	return assignRecords(ctx, ts.tx, periodID, ids)
}

// =============================================================================
// HELPERS
// =============================================================================

var (
	errUnique     = errors.New("unique constraint")
	errForeignKey = errors.New("foreign key constraint")
)

// mapErr translates driver errors into the categories callers branch on.
func mapErr(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: database is locked: %v", payout.ErrConcurrencyConflict, err)
	case se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %v", errUnique, err)
	case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %v", errForeignKey, err)
	}
	return err
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
