package calendar

import "fmt"

// Window is an inclusive range of days: a date d is inside when
// Start <= d <= End. Consecutive payout windows share their boundary day
// (next.Start == previous.End).
type Window struct {
	Start Date
	End   Date
}

// Contains returns true if d is within [Start, End].
func (w Window) Contains(d Date) bool {
	return d.AfterOrEqual(w.Start) && d.BeforeOrEqual(w.End)
}

// Valid reports whether both bounds are set and End is not before Start.
func (w Window) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && !w.End.Before(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start, w.End)
}
