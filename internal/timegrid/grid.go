package timegrid

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultSlotMinutes is the length of one bookable slot.
const DefaultSlotMinutes = 30

var ErrInvalidRange = errors.New("invalid time range")

// Slot is one bookable (date, time-of-day) pair. It is derived from
// availability blocks on every query and never stored.
type Slot struct {
	Date Date  `json:"date"`
	Time Clock `json:"time"`
}

// GenerateSlots returns the slot start times from start, stepping by
// durationMinutes, for as long as the start is strictly before end.
// Only the start is bounded: the last slot may run past end.
func GenerateSlots(start, end Clock, durationMinutes int) ([]Clock, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %d", ErrInvalidRange, durationMinutes)
	}
	if start >= end {
		return nil, fmt.Errorf("%w: start %s is not before end %s", ErrInvalidRange, start, end)
	}

	slots := make([]Clock, 0, (int(end-start)+durationMinutes-1)/durationMinutes)
	for cur := start; cur < end; cur = cur.Add(durationMinutes) {
		slots = append(slots, cur)
	}
	return slots, nil
}

// MergeSlots returns the sorted union of the given slot lists with duplicates removed.
func MergeSlots(lists ...[]Clock) []Clock {
	seen := make(map[Clock]struct{})
	var out []Clock
	for _, list := range lists {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
