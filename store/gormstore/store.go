/*
Package gormstore provides a gorm-backed payout.Store, used with PostgreSQL.

CONCURRENCY:
  Inside WithTx, LockClient issues SELECT ... FOR UPDATE NOWAIT on the client
  row. A second transaction that reaches the same row fails at once with
  lock_not_available (55P03), reported as payout.ErrConcurrencyConflict.
  The unique (client_id, sequence) index and the conditional
  UPDATE ... WHERE period_id IS NULL catch anything that gets past the lock.

ERRORS:
  The DB must be opened with gorm.Config{TranslateError: true} so unique
  violations surface as gorm.ErrDuplicatedKey in every dialect.

SQLITE:
  The gorm sqlite dialect drops locking clauses, which lets the package tests
  run without a Postgres server.
*/
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/warp/repasse-engine/calendar"
	"github.com/warp/repasse-engine/logger"
	"github.com/warp/repasse-engine/payout"
)

// Postgres error codes that mean "another transaction got there first".
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type Store struct {
	conn
	log *logger.Logger
}

var _ payout.Store = (*Store)(nil)

// OpenPostgres connects with the pgx-based gorm driver and migrates the schema.
func OpenPostgres(dsn string, logg *logger.Logger) (*Store, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return New(db, logg)
}

// New wraps an open gorm DB and migrates the schema.
func New(db *gorm.DB, logg *logger.Logger) (*Store, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	if err := db.AutoMigrate(&clientModel{}, &periodModel{}, &recordModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{
		conn: conn{db: db},
		log:  logg.With("store", "gormstore"),
	}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithTx executes fn within a database transaction.
// If fn returns error, the transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(repos payout.Repositories) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&conn{db: tx, inTx: true})
	})
	if err != nil {
		s.log.Debug("transaction rolled back", "error", err)
	}
	return mapErr(err)
}

// =============================================================================
// CONN - Repositories over a *gorm.DB or an open transaction
// =============================================================================

type conn struct {
	db   *gorm.DB
	inTx bool
}

func (c *conn) GetClient(ctx context.Context, id payout.ClientID) (payout.Client, error) {
	return c.loadClient(c.db.WithContext(ctx), id)
}

// LockClient takes a row lock that fails fast instead of waiting. Outside a
// transaction the lock would end with the statement, so it is a plain read.
func (c *conn) LockClient(ctx context.Context, id payout.ClientID) (payout.Client, error) {
	q := c.db.WithContext(ctx)
	if c.inTx {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "NOWAIT"})
	}
	return c.loadClient(q, id)
}

func (c *conn) loadClient(q *gorm.DB, id payout.ClientID) (payout.Client, error) {
	var m clientModel
	err := q.Where("id = ?", string(id)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return payout.Client{}, fmt.Errorf("%w: %s", payout.ErrClientNotFound, id)
	}
	if err != nil {
		return payout.Client{}, mapErr(err)
	}
	return m.toDomain()
}

func (c *conn) UpdateContribution(ctx context.Context, id payout.ClientID, value decimal.Decimal, modifiedAt time.Time) error {
	res := c.db.WithContext(ctx).
		Model(&clientModel{}).
		Where("id = ?", string(id)).
		Updates(map[string]interface{}{
			"contributed_value": value,
			"last_modified":     modifiedAt.UTC(),
		})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", payout.ErrClientNotFound, id)
	}
	return nil
}

func (c *conn) UpdateClient(ctx context.Context, client payout.Client) error {
	if err := payout.ValidateClient(client); err != nil {
		return err
	}
	m := clientFromDomain(client)
	res := c.db.WithContext(ctx).
		Model(&clientModel{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"name":              m.Name,
			"email":             m.Email,
			"registration_date": m.RegistrationDate,
			"contracted_yield":  m.ContractedYield,
			"contributed_value": m.ContributedValue,
			"last_modified":     m.LastModified,
		})
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", payout.ErrClientNotFound, client.ID)
	}
	return nil
}

func (c *conn) LastPeriod(ctx context.Context, clientID payout.ClientID) (*payout.Period, error) {
	var ms []periodModel
	err := c.db.WithContext(ctx).
		Where("client_id = ?", string(clientID)).
		Order("sequence DESC").
		Limit(1).
		Find(&ms).Error
	if err != nil {
		return nil, mapErr(err)
	}
	if len(ms) == 0 {
		return nil, nil
	}
	p, err := ms[0].toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *conn) ListPeriods(ctx context.Context, clientID payout.ClientID) ([]payout.Period, error) {
	var ms []periodModel
	err := c.db.WithContext(ctx).
		Where("client_id = ?", string(clientID)).
		Order("sequence ASC").
		Find(&ms).Error
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]payout.Period, 0, len(ms))
	for _, m := range ms {
		p, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *conn) CreatePeriod(ctx context.Context, p payout.Period) error {
	m := periodFromDomain(p)
	err := c.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: period %d of client %s already exists", payout.ErrConcurrencyConflict, p.Sequence, p.ClientID)
	}
	return mapErr(err)
}

func (c *conn) RecordsInWindow(ctx context.Context, clientID payout.ClientID, w calendar.Window) ([]payout.YieldRecord, error) {
	if err := payout.ValidateWindow(w); err != nil {
		return nil, err
	}
	var ms []recordModel
	err := c.db.WithContext(ctx).
		Where("client_id = ? AND date >= ? AND date <= ?", string(clientID), w.Start.String(), w.End.String()).
		Order("date ASC").
		Find(&ms).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return recordsToDomain(ms)
}

// AssignRecords only touches rows whose period_id is still NULL; a short
// affected-row count means another close took some of them.
func (c *conn) AssignRecords(ctx context.Context, periodID payout.PeriodID, ids []payout.RecordID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}

	res := c.db.WithContext(ctx).
		Model(&recordModel{}).
		Where("id IN ? AND period_id IS NULL", raw).
		Update("period_id", string(periodID))
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if int(res.RowsAffected) != len(ids) {
		return fmt.Errorf("%w: %d of %d records were already assigned", payout.ErrConcurrencyConflict, len(ids)-int(res.RowsAffected), len(ids))
	}
	return nil
}

// =============================================================================
// REGISTRY / YIELD BOOK
// =============================================================================

func (s *Store) SaveClient(ctx context.Context, c payout.Client) error {
	if err := payout.ValidateClient(c); err != nil {
		return err
	}
	m := clientFromDomain(c)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&m).Error
	return mapErr(err)
}

func (s *Store) ListClients(ctx context.Context) ([]payout.Client, error) {
	var ms []clientModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&ms).Error; err != nil {
		return nil, mapErr(err)
	}
	out := make([]payout.Client, 0, len(ms))
	for _, m := range ms {
		c, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// DeleteClient removes the client, its periods and its records in one transaction.
func (s *Store) DeleteClient(ctx context.Context, id payout.ClientID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id = ?", string(id)).Delete(&recordModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ?", string(id)).Delete(&periodModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", string(id)).Delete(&clientModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", payout.ErrClientNotFound, id)
		}
		return nil
	})
}

func (s *Store) ListRecords(ctx context.Context, clientID payout.ClientID, filter payout.RecordFilter) ([]payout.YieldRecord, error) {
	q := s.db.WithContext(ctx).Where("client_id = ?", string(clientID))
	if filter.Unassigned {
		q = q.Where("period_id IS NULL")
	}
	if filter.PeriodID != "" {
		q = q.Where("period_id = ?", string(filter.PeriodID))
	}

	var ms []recordModel
	if err := q.Order("date ASC").Find(&ms).Error; err != nil {
		return nil, mapErr(err)
	}
	return recordsToDomain(ms)
}

func (s *Store) CreateRecord(ctx context.Context, r payout.YieldRecord) error {
	if err := payout.ValidateRecord(r); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&clientModel{}).Where("id = ?", string(r.ClientID)).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", payout.ErrClientNotFound, r.ClientID)
		}

		m := recordFromDomain(r)
		err := tx.Create(&m).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", payout.ErrDuplicateRecord, r.Date)
		}
		return err
	})
}

func (s *Store) UpdateRecord(ctx context.Context, clientID payout.ClientID, date calendar.Date, patch payout.RecordPatch) (payout.YieldRecord, error) {
	var updated payout.YieldRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := editableRecord(tx, clientID, date)
		if err != nil {
			return err
		}
		updated = patch.Apply(current)
		return tx.Model(&recordModel{}).
			Where("id = ?", string(updated.ID)).
			Updates(map[string]interface{}{
				"percentage": updated.Percentage,
				"variation":  updated.Variation,
				"amount":     updated.Amount,
			}).Error
	})
	if err != nil {
		return payout.YieldRecord{}, err
	}
	return updated, nil
}

func (s *Store) DeleteRecord(ctx context.Context, clientID payout.ClientID, date calendar.Date) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := editableRecord(tx, clientID, date)
		if err != nil {
			return err
		}
		return tx.Where("id = ?", string(current.ID)).Delete(&recordModel{}).Error
	})
}

func editableRecord(tx *gorm.DB, clientID payout.ClientID, date calendar.Date) (payout.YieldRecord, error) {
	var m recordModel
	err := tx.Where("client_id = ? AND date = ?", string(clientID), date.String()).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return payout.YieldRecord{}, fmt.Errorf("%w: %s %s", payout.ErrRecordNotFound, clientID, date)
	}
	if err != nil {
		return payout.YieldRecord{}, err
	}
	r, err := m.toDomain()
	if err != nil {
		return payout.YieldRecord{}, err
	}
	if r.Assigned() {
		return payout.YieldRecord{}, fmt.Errorf("%w: %s", payout.ErrRecordAssigned, date)
	}
	return r, nil
}

// =============================================================================
// ERRORS
// =============================================================================

// mapErr turns lock and serialization failures into ErrConcurrencyConflict.
// Other errors pass through for the caller to classify.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", payout.ErrConcurrencyConflict, pgErr.Message)
		}
	}
	return err
}
