/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. The payout domain
  types carry no JSON tags; these do.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Response wrappers

MONEY:
  Decimal values are written as JSON strings ("84.35") and accepted as
  strings or numbers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/repasse-engine/calendar"
	"github.com/warp/repasse-engine/payout"
)

// =============================================================================
// PERIOD DTOs
// =============================================================================

// PeriodDTO is a closed payout period ("repasse").
type PeriodDTO struct {
	ID    string        `json:"id"`
	Label string        `json:"label"`
	Start calendar.Date `json:"start"`
	End   calendar.Date `json:"end"`
}

// PeriodListResponse keeps the envelope the dashboard already reads.
type PeriodListResponse struct {
	Success  bool        `json:"success"`
	Repasses []PeriodDTO `json:"repasses"`
}

// CloseRequest is the optional body of POST /repasse/close/{clientId}.
type CloseRequest struct {
	RollFraction *decimal.Decimal `json:"roll_fraction,omitempty"`
}

// NextCloseDTO previews the period the next close would create.
type NextCloseDTO struct {
	ClientID string        `json:"client_id"`
	Sequence int           `json:"sequence"`
	Label    string        `json:"label"`
	Start    calendar.Date `json:"start"`
	End      calendar.Date `json:"end"`
}

// DueResponse lists clients whose next window ends on a given day.
type DueResponse struct {
	On  calendar.Date  `json:"on"`
	Due []NextCloseDTO `json:"due"`
}

func toPeriodDTO(p payout.Period) PeriodDTO {
	return PeriodDTO{ID: string(p.ID), Label: p.Label(), Start: p.Start, End: p.End}
}

func toNextCloseDTO(n payout.NextClose) NextCloseDTO {
	label := payout.Period{Sequence: n.Sequence}.Label()
	return NextCloseDTO{
		ClientID: string(n.Client.ID),
		Sequence: n.Sequence,
		Label:    label,
		Start:    n.Window.Start,
		End:      n.Window.End,
	}
}

// =============================================================================
// CLIENT DTOs
// =============================================================================

// ClientDTO is a registered client.
type ClientDTO struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Email            string          `json:"email,omitempty"`
	RegistrationDate calendar.Date   `json:"registration_date"`
	ContractedYield  decimal.Decimal `json:"contracted_yield"`
	ContributedValue decimal.Decimal `json:"contributed_value"`
	LastModified     string          `json:"last_modified,omitempty"`
}

// ClientRequest is the body of POST /clients.
type ClientRequest struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	RegistrationDate calendar.Date   `json:"registration_date"`
	ContractedYield  decimal.Decimal `json:"contracted_yield"`
	ContributedValue decimal.Decimal `json:"contributed_value"`
}

// UpdateClientRequest is the body of PUT /clients/{clientId}. Omitted
// fields keep their stored value.
type UpdateClientRequest struct {
	ID               string           `json:"id,omitempty"`
	Name             *string          `json:"name,omitempty"`
	Email            *string          `json:"email,omitempty"`
	RegistrationDate *calendar.Date   `json:"registration_date,omitempty"`
	ContractedYield  *decimal.Decimal `json:"contracted_yield,omitempty"`
	ContributedValue *decimal.Decimal `json:"contributed_value,omitempty"`
}

func toClientDTO(c payout.Client) ClientDTO {
	dto := ClientDTO{
		ID:               string(c.ID),
		Name:             c.Name,
		Email:            c.Email,
		RegistrationDate: c.RegistrationDate,
		ContractedYield:  c.ContractedYield,
		ContributedValue: c.ContributedValue,
	}
	if !c.LastModified.IsZero() {
		dto.LastModified = c.LastModified.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// YIELD RECORD DTOs
// =============================================================================

// RecordDTO is one yield record. PeriodID is null until a close takes it.
type RecordDTO struct {
	ID         string          `json:"id"`
	ClientID   string          `json:"client_id"`
	Date       calendar.Date   `json:"date"`
	Percentage decimal.Decimal `json:"percentage"`
	Variation  decimal.Decimal `json:"variation"`
	Amount     decimal.Decimal `json:"amount"`
	PeriodID   *string         `json:"period_id"`
}

// CreateRecordRequest is the body of POST /returns/{clientId}.
type CreateRecordRequest struct {
	Date       calendar.Date   `json:"date"`
	Percentage decimal.Decimal `json:"percentage"`
	Variation  decimal.Decimal `json:"variation"`
	Amount     decimal.Decimal `json:"amount"`
}

// UpdateRecordRequest is the body of PUT /returns/{clientId}/{date}.
// Omitted fields keep their value.
type UpdateRecordRequest struct {
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
	Variation  *decimal.Decimal `json:"variation,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
}

func toRecordDTO(r payout.YieldRecord) RecordDTO {
	dto := RecordDTO{
		ID:         string(r.ID),
		ClientID:   string(r.ClientID),
		Date:       r.Date,
		Percentage: r.Percentage,
		Variation:  r.Variation,
		Amount:     r.Amount,
	}
	if r.Assigned() {
		id := string(r.PeriodID)
		dto.PeriodID = &id
	}
	return dto
}

// =============================================================================
// SCENARIO DTOs
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERROR RESPONSE
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
