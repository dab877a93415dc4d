package payout

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/repasse-engine/calendar"
)

// =============================================================================
// COLLABORATORS - Client registry and yield-entry CRUD
// =============================================================================
// These are plain CRUD surfaces. The closing engine does not call them; the
// HTTP layer and the CSV import do.

// Registry manages client records.
type Registry interface {
	// SaveClient inserts or replaces a client.
	SaveClient(ctx context.Context, c Client) error
	ListClients(ctx context.Context) ([]Client, error)
	// DeleteClient removes the client with its periods and records.
	DeleteClient(ctx context.Context, id ClientID) error
}

// RecordFilter narrows ListRecords. Zero value means all records.
type RecordFilter struct {
	PeriodID   PeriodID
	Unassigned bool
}

// Matches applies the filter to a single record.
func (f RecordFilter) Matches(r YieldRecord) bool {
	if f.Unassigned && r.Assigned() {
		return false
	}
	if f.PeriodID != "" && r.PeriodID != f.PeriodID {
		return false
	}
	return true
}

// RecordPatch carries the editable fields of a yield record. PeriodID is
// deliberately absent: assignment belongs to the closing engine.
type RecordPatch struct {
	Percentage *decimal.Decimal
	Variation  *decimal.Decimal
	Amount     *decimal.Decimal
}

// Apply returns r with the patched fields replaced.
func (p RecordPatch) Apply(r YieldRecord) YieldRecord {
	if p.Percentage != nil {
		r.Percentage = *p.Percentage
	}
	if p.Variation != nil {
		r.Variation = *p.Variation
	}
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	return r
}

// ValidateRecord checks the fields every backend requires on insert.
func ValidateRecord(r YieldRecord) error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: record id is required", ErrInvalidInput)
	case r.ClientID == "":
		return fmt.Errorf("%w: client id is required", ErrInvalidInput)
	case r.Date.IsZero():
		return fmt.Errorf("%w: record date is required", ErrInvalidInput)
	case r.Assigned():
		return fmt.Errorf("%w: new records start unassigned", ErrInvalidInput)
	}
	return nil
}

// ValidateClient checks the fields every backend requires on save.
func ValidateClient(c Client) error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: client id is required", ErrInvalidInput)
	case c.RegistrationDate.IsZero():
		return fmt.Errorf("%w: registration date is required", ErrInvalidInput)
	case c.ContributedValue.IsNegative():
		return fmt.Errorf("%w: contributed value cannot be negative", ErrInvalidInput)
	}
	return nil
}

// ClientPatch changes registry fields of an existing client. Nil fields keep
// their stored value.
type ClientPatch struct {
	Name             *string
	Email            *string
	RegistrationDate *calendar.Date
	ContractedYield  *decimal.Decimal
	ContributedValue *decimal.Decimal
}

// Apply returns c with the patch applied.
func (p ClientPatch) Apply(c Client) Client {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.RegistrationDate != nil {
		c.RegistrationDate = *p.RegistrationDate
	}
	if p.ContractedYield != nil {
		c.ContractedYield = *p.ContractedYield
	}
	if p.ContributedValue != nil {
		c.ContributedValue = *p.ContributedValue
	}
	return c
}

// movesRegistration reports whether applying p changes c's registration date.
func (p ClientPatch) movesRegistration(c Client) bool {
	return p.RegistrationDate != nil && *p.RegistrationDate != c.RegistrationDate
}

// YieldBook is the yield-entry CRUD collaborator. Records are addressed by
// (client, date), which is unique.
type YieldBook interface {
	// ListRecords returns the client's records ordered by date.
	ListRecords(ctx context.Context, clientID ClientID, filter RecordFilter) ([]YieldRecord, error)

	// CreateRecord returns ErrDuplicateRecord if the date is taken.
	CreateRecord(ctx context.Context, r YieldRecord) error

	// UpdateRecord applies patch. Returns ErrRecordNotFound or ErrRecordAssigned.
	UpdateRecord(ctx context.Context, clientID ClientID, date calendar.Date, patch RecordPatch) (YieldRecord, error)

	// DeleteRecord returns ErrRecordNotFound or ErrRecordAssigned.
	DeleteRecord(ctx context.Context, clientID ClientID, date calendar.Date) error
}
