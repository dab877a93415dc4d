/*
Package payout implements the payout-period ("repasse") closing engine.

PURPOSE:
  Clients accumulate dated yield records. Periodically an operator "closes"
  the next payout period for a client: the engine computes the period's
  window (30 business days after the previous period's end, or after the
  client's registration date for the first one), creates the period, and
  binds every still-unassigned yield record inside the window to it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Client:      The investor. Only RegistrationDate and ContributedValue
                 matter to the engine.
  - YieldRecord: One dated yield entry. PeriodID is empty until a close
                 binds it; once set it never changes.
  - Period:      A closed payout period. Numbered 1, 2, 3... per client,
                 contiguous (next.Start == previous.End) and immutable.

INVARIANTS:
  1. periods[0].Start == client.RegistrationDate
  2. periods[i].Start == periods[i-1].End
  3. A record's PeriodID is written at most once
  4. A close is all-or-nothing (closer.go)

MONEY:
  Amounts and percentages use decimal.Decimal; float64 sums drift.

SEE ALSO:
  - boundary.go:   NextWindow (period boundaries)
  - assignment.go: SelectUnassigned (which records a close takes)
  - closer.go:     Closer (the transactional close)
  - store.go:      Repository interfaces
*/
package payout

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/repasse-engine/calendar"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type PeriodID string
type RecordID string

// WindowBusinessDays is the length of every payout period.
const WindowBusinessDays = 30

// =============================================================================
// CLIENT
// =============================================================================

// Client is owned by the client registry. The engine reads RegistrationDate
// and, only when a close asks for it, adds to ContributedValue.
type Client struct {
	ID               ClientID
	Name             string
	Email            string
	RegistrationDate calendar.Date
	ContractedYield  decimal.Decimal // percentage, e.g. 3 for 3%
	ContributedValue decimal.Decimal
	LastModified     time.Time
}

// =============================================================================
// YIELD RECORD
// =============================================================================

// YieldRecord is a single dated yield entry for a client.
type YieldRecord struct {
	ID         RecordID
	ClientID   ClientID
	Date       calendar.Date
	Percentage decimal.Decimal
	Variation  decimal.Decimal
	Amount     decimal.Decimal
	PeriodID   PeriodID // empty until assigned
}

// Assigned reports whether the record already belongs to a period.
func (r YieldRecord) Assigned() bool { return r.PeriodID != "" }

// SumAmounts adds up Amount over records.
func SumAmounts(records []YieldRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// =============================================================================
// PERIOD
// =============================================================================

// Period is a closed payout period.
type Period struct {
	ID        PeriodID
	ClientID  ClientID
	Sequence  int
	Start     calendar.Date
	End       calendar.Date
	CreatedAt time.Time
}

// Label is the display name used by the operators ("1º Repasse").
func (p Period) Label() string { return fmt.Sprintf("%dº Repasse", p.Sequence) }

// Window returns the inclusive date range the period covers.
func (p Period) Window() calendar.Window { return calendar.Window{Start: p.Start, End: p.End} }
