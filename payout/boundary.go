package payout

import (
	"fmt"

	"github.com/warp/repasse-engine/calendar"
)

// =============================================================================
// PERIOD BOUNDARIES
// =============================================================================

// NextWindow returns the window of the client's next payout period.
//
//   - With a previous period: Start = last.End (consecutive periods share that day)
//   - Without one:            Start = client.RegistrationDate
//   - End = Start + WindowBusinessDays business days
//
// A start date that is not usable is reported as *InvalidDateError naming
// its source; it is never replaced by a default.
func NextWindow(client Client, last *Period) (calendar.Window, error) {
	start := client.RegistrationDate
	source := SourceRegistrationDate
	if last != nil {
		start = last.End
		source = SourcePeriodEnd
	}

	if start.IsZero() {
		return calendar.Window{}, &InvalidDateError{
			Source:   source,
			ClientID: client.ID,
			Value:    start.String(),
		}
	}

	return calendar.Window{
		Start: start,
		End:   calendar.AddBusinessDays(start, WindowBusinessDays),
	}, nil
}

// ValidateWindow rejects windows with a missing bound or End before Start.
func ValidateWindow(w calendar.Window) error {
	if !w.Valid() {
		return fmt.Errorf("%w: window %s", ErrInvalidInput, w)
	}
	return nil
}

// NextSequence returns the sequence number the next period takes.
func NextSequence(last *Period) int {
	if last == nil {
		return 1
	}
	return last.Sequence + 1
}
