package timegrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clocks(t *testing.T, values ...string) []Clock {
	t.Helper()
	out := make([]Clock, 0, len(values))
	for _, v := range values {
		c, err := ParseClock(v)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func TestGenerateSlots(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		end      string
		duration int
		want     []string
	}{
		{"two hours of half hours", "08:00", "10:00", 30, []string{"08:00", "08:30", "09:00", "09:30"}},
		{"last slot runs past end", "09:00", "10:00", 45, []string{"09:00", "09:45"}},
		{"duration longer than block", "09:00", "09:10", 30, []string{"09:00"}},
		{"one minute slots", "12:00", "12:03", 1, []string{"12:00", "12:01", "12:02"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateSlots(MustParseClock(tt.start), MustParseClock(tt.end), tt.duration)
			require.NoError(t, err)
			assert.Equal(t, clocks(t, tt.want...), got)
		})
	}
}

func TestGenerateSlotsCountAndDeterminism(t *testing.T) {
	for start := NewClock(6, 0); start < NewClock(7, 0); start += 7 {
		for length := 1; length <= 180; length += 13 {
			for duration := 1; duration <= 90; duration += 11 {
				end := start.Add(length)
				first, err := GenerateSlots(start, end, duration)
				require.NoError(t, err)
				second, err := GenerateSlots(start, end, duration)
				require.NoError(t, err)
				assert.Equal(t, first, second)

				want := length / duration
				if length%duration != 0 {
					want++
				}
				assert.Len(t, first, want, "start=%s length=%d duration=%d", start, length, duration)
			}
		}
	}
}

func TestGenerateSlotsInvalidRange(t *testing.T) {
	_, err := GenerateSlots(NewClock(9, 0), NewClock(10, 0), 0)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = GenerateSlots(NewClock(9, 0), NewClock(10, 0), -30)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = GenerateSlots(NewClock(10, 0), NewClock(10, 0), 30)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = GenerateSlots(NewClock(11, 0), NewClock(10, 0), 30)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestMergeSlots(t *testing.T) {
	morning := clocks(t, "09:00", "09:30")
	overlapping := clocks(t, "09:30", "10:00")
	afternoon := clocks(t, "14:00", "14:30")

	got := MergeSlots(afternoon, morning, overlapping)
	assert.Equal(t, clocks(t, "09:00", "09:30", "10:00", "14:00", "14:30"), got)
	assert.Empty(t, MergeSlots())
}
