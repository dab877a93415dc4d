/*
Package calendar provides the day-granularity date type and the business-day
arithmetic used to compute payout windows.

PURPOSE:
  Dates flow through the system as calendar days only: no time of day, no
  timezone. Keeping a dedicated value type (instead of time.Time) rules out
  the classic "midnight UTC shifted to the previous day" bug when a date is
  parsed in one zone and printed in another.

KEY TYPES:
  Date:   A calendar day (year, month, day). Comparable with ==.
  Window: An inclusive [Start, End] range of days (window.go).

BUSINESS DAYS:
  Monday through Friday. There is no holiday table (business.go).

SEE ALSO:
  - business.go: AddBusinessDays
  - window.go:   Window
  - payout/boundary.go: uses AddBusinessDays to derive payout windows
*/
package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the ISO-8601 calendar date layout used on the wire and in storage.
const Layout = "2006-01-02"

// brLayout is the dd/mm/yyyy layout used by spreadsheet exports.
const brLayout = "02/01/2006"

// ErrInvalidDate is returned when text cannot be read as a calendar date.
var ErrInvalidDate = errors.New("invalid calendar date")

// =============================================================================
// DATE - Day-granularity value type
// =============================================================================

// Date is a calendar day. The zero value is not a valid date (see IsZero).
type Date struct {
	y int
	m time.Month
	d int
}

// New returns a normalized Date, so New(2024, 1, 32) is 2024-02-01.
func New(year int, month time.Month, day int) Date {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// FromTime keeps only the calendar day of t, in t's own location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{y: y, m: m, d: d}
}

// Today returns the current date in the local zone.
func Today() Date { return FromTime(time.Now()) }

// Parse reads an ISO date ("2024-01-02"). Anything else is ErrInvalidDate.
func Parse(s string) (Date, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return FromTime(t), nil
}

// ParseBR reads a dd/mm/yyyy date as found in the spreadsheet exports.
func ParseBR(s string) (Date, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(brLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return FromTime(t), nil
}

// MustParse is Parse for literals in tests and seed data.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Properties
func (d Date) Year() int              { return d.y }
func (d Date) Month() time.Month      { return d.m }
func (d Date) Day() int               { return d.d }
func (d Date) Weekday() time.Weekday  { return d.Time().Weekday() }
func (d Date) IsZero() bool           { return d.y == 0 && d.m == 0 && d.d == 0 }
func (d Date) IsWeekend() bool        { wd := d.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (d Date) IsBusinessDay() bool    { return !d.IsWeekend() }

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Comparison
func (d Date) Before(x Date) bool        { return d.Time().Before(x.Time()) }
func (d Date) After(x Date) bool         { return d.Time().After(x.Time()) }
func (d Date) Equal(x Date) bool         { return d == x }
func (d Date) BeforeOrEqual(x Date) bool { return !d.After(x) }
func (d Date) AfterOrEqual(x Date) bool  { return !d.Before(x) }

// Arithmetic
func (d Date) AddDays(n int) Date { return New(d.y, d.m, d.d+n) }


func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(Layout)
}

// =============================================================================
// ENCODING
// =============================================================================

// MarshalJSON writes the ISO date, or null for the zero date.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts an ISO date string or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, data)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText lets Date be used as a YAML/text value and a map key.
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText parses an ISO date.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
