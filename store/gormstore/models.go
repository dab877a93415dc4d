package gormstore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/repasse-engine/calendar"
	"github.com/warp/repasse-engine/payout"
)

// Dates are kept as ISO text in both dialects, matching store/sqlite.

type clientModel struct {
	ID               string          `gorm:"primaryKey;type:varchar(64)"`
	Name             string          `gorm:"not null"`
	Email            string          `gorm:"not null"`
	RegistrationDate string          `gorm:"type:varchar(10);not null"`
	ContractedYield  decimal.Decimal `gorm:"type:numeric;not null"`
	ContributedValue decimal.Decimal `gorm:"type:numeric;not null"`
	LastModified     *time.Time
}

func (clientModel) TableName() string { return "clients" }

type periodModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	ClientID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_periods_client_sequence,priority:1"`
	Sequence  int       `gorm:"not null;uniqueIndex:idx_periods_client_sequence,priority:2"`
	StartDate string    `gorm:"type:varchar(10);not null"`
	EndDate   string    `gorm:"type:varchar(10);not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (periodModel) TableName() string { return "periods" }

type recordModel struct {
	ID         string          `gorm:"primaryKey;type:varchar(64)"`
	ClientID   string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_yield_records_client_date,priority:1"`
	Date       string          `gorm:"type:varchar(10);not null;uniqueIndex:idx_yield_records_client_date,priority:2"`
	Percentage decimal.Decimal `gorm:"type:numeric;not null"`
	Variation  decimal.Decimal `gorm:"type:numeric;not null"`
	Amount     decimal.Decimal `gorm:"type:numeric;not null"`
	PeriodID   *string         `gorm:"type:varchar(64);index"`
}

func (recordModel) TableName() string { return "yield_records" }

// =============================================================================
// CONVERSIONS
// =============================================================================

func clientFromDomain(c payout.Client) clientModel {
	m := clientModel{
		ID:               string(c.ID),
		Name:             c.Name,
		Email:            c.Email,
		RegistrationDate: c.RegistrationDate.String(),
		ContractedYield:  c.ContractedYield,
		ContributedValue: c.ContributedValue,
	}
	if !c.LastModified.IsZero() {
		t := c.LastModified.UTC()
		m.LastModified = &t
	}
	return m
}

func (m clientModel) toDomain() (payout.Client, error) {
	d, err := calendar.Parse(m.RegistrationDate)
	if err != nil {
		return payout.Client{}, &payout.InvalidDateError{
			Source: payout.SourceRegistrationDate, ClientID: payout.ClientID(m.ID), Value: m.RegistrationDate, Err: err,
		}
	}
	c := payout.Client{
		ID:               payout.ClientID(m.ID),
		Name:             m.Name,
		Email:            m.Email,
		RegistrationDate: d,
		ContractedYield:  m.ContractedYield,
		ContributedValue: m.ContributedValue,
	}
	if m.LastModified != nil {
		c.LastModified = *m.LastModified
	}
	return c, nil
}

func periodFromDomain(p payout.Period) periodModel {
	return periodModel{
		ID:        string(p.ID),
		ClientID:  string(p.ClientID),
		Sequence:  p.Sequence,
		StartDate: p.Start.String(),
		EndDate:   p.End.String(),
		CreatedAt: p.CreatedAt.UTC(),
	}
}

func (m periodModel) toDomain() (payout.Period, error) {
	start, err := calendar.Parse(m.StartDate)
	if err != nil {
		return payout.Period{}, &payout.InvalidDateError{Source: payout.SourcePeriodStart, ClientID: payout.ClientID(m.ClientID), Value: m.StartDate, Err: err}
	}
	end, err := calendar.Parse(m.EndDate)
	if err != nil {
		return payout.Period{}, &payout.InvalidDateError{Source: payout.SourcePeriodEnd, ClientID: payout.ClientID(m.ClientID), Value: m.EndDate, Err: err}
	}
	return payout.Period{
		ID:        payout.PeriodID(m.ID),
		ClientID:  payout.ClientID(m.ClientID),
		Sequence:  m.Sequence,
		Start:     start,
		End:       end,
		CreatedAt: m.CreatedAt,
	}, nil
}

func recordFromDomain(r payout.YieldRecord) recordModel {
	m := recordModel{
		ID:         string(r.ID),
		ClientID:   string(r.ClientID),
		Date:       r.Date.String(),
		Percentage: r.Percentage,
		Variation:  r.Variation,
		Amount:     r.Amount,
	}
	if r.PeriodID != "" {
		id := string(r.PeriodID)
		m.PeriodID = &id
	}
	return m
}

func (m recordModel) toDomain() (payout.YieldRecord, error) {
	d, err := calendar.Parse(m.Date)
	if err != nil {
		return payout.YieldRecord{}, &payout.InvalidDateError{Source: payout.SourceRecordDate, ClientID: payout.ClientID(m.ClientID), Value: m.Date, Err: err}
	}
	r := payout.YieldRecord{
		ID:         payout.RecordID(m.ID),
		ClientID:   payout.ClientID(m.ClientID),
		Date:       d,
		Percentage: m.Percentage,
		Variation:  m.Variation,
		Amount:     m.Amount,
	}
	if m.PeriodID != nil {
		r.PeriodID = payout.PeriodID(*m.PeriodID)
	}
	return r, nil
}

func recordsToDomain(ms []recordModel) ([]payout.YieldRecord, error) {
	out := make([]payout.YieldRecord, 0, len(ms))
	for _, m := range ms {
		r, err := m.toDomain()
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", m.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}
