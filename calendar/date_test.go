package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ISO(t *testing.T) {
	d, err := Parse("2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, New(2024, time.January, 2), d)
	assert.Equal(t, "2024-01-02", d.String())
	assert.Equal(t, time.Tuesday, d.Weekday())
}

func TestParse_RejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "2024-13-01", "02/01/2024", "yesterday", "2024-02-30"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrInvalidDate, "input %q", in)
	}
}

func TestParseBR(t *testing.T) {
	d, err := ParseBR("10/01/2024")
	require.NoError(t, err)
	assert.Equal(t, MustParse("2024-01-10"), d)

	_, err = ParseBR("2024-01-10")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestNew_Normalizes(t *testing.T) {
	assert.Equal(t, MustParse("2024-02-01"), New(2024, time.January, 32))
	assert.Equal(t, MustParse("2024-02-29"), New(2024, time.March, 0))
}

func TestFromTime_KeepsLocalDay(t *testing.T) {
	// 23:30 in São Paulo is already the next day in UTC; the calendar day must not shift.
	loc := time.FixedZone("BRT", -3*60*60)
	ts := time.Date(2024, time.January, 2, 23, 30, 0, 0, loc)
	assert.Equal(t, MustParse("2024-01-02"), FromTime(ts))
}

func TestDate_Comparisons(t *testing.T) {
	a := MustParse("2024-01-02")
	b := MustParse("2024-01-03")

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.BeforeOrEqual(a))
	assert.True(t, a.AfterOrEqual(a))
	assert.False(t, a.After(b))
	assert.Equal(t, b, a.AddDays(1))
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		On  Date `json:"on"`
		Off Date `json:"off"`
	}

	out, err := json.Marshal(payload{On: MustParse("2024-02-13")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"on":"2024-02-13","off":null}`, string(out))

	var in payload
	require.NoError(t, json.Unmarshal([]byte(`{"on":"2024-01-02","off":null}`), &in))
	assert.Equal(t, MustParse("2024-01-02"), in.On)
	assert.True(t, in.Off.IsZero())

	err = json.Unmarshal([]byte(`{"on":"02/01/2024"}`), &in)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDate_ZeroValue(t *testing.T) {
	var d Date
	assert.True(t, d.IsZero())
	assert.Equal(t, "", d.String())
}
