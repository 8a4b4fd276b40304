package timegrid

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-10")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.June, 10), d)
	assert.Equal(t, "2024-06-10", d.String())

	for _, bad := range []string{"", "2024-6-10", "10/06/2024", "2024-02-30", "2024-06-10T09:00", "tomorrow"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestDateAddDaysCrossesMonth(t *testing.T) {
	d := NewDate(2024, time.January, 30)
	assert.Equal(t, "2024-02-01", d.AddDays(2).String())
	assert.True(t, d.Before(d.AddDays(1)))
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, NewClock(9, 30), c)
	assert.Equal(t, "09:30", c.String())

	for _, bad := range []string{"", "9:30", "24:00", "09:60", "09:30:00", "0930"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidClock, bad)
	}
}

func TestSlotJSON(t *testing.T) {
	raw, err := json.Marshal(Slot{Date: NewDate(2024, time.June, 10), Time: NewClock(9, 0)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-06-10","time":"09:00"}`, string(raw))

	var back Slot
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, NewClock(9, 0), back.Time)

	err = json.Unmarshal([]byte(`{"date":"2024-06-10","time":"9am"}`), &back)
	assert.ErrorIs(t, err, ErrInvalidClock)
}
