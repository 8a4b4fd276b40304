package timegrid

import "sort"

// Interval is the half-open range [Start, End).
type Interval struct {
	Start Clock
	End   Clock
}

func (iv Interval) Valid() bool { return iv.Start < iv.End }

// Overlaps reports whether [a,b) and [c,d) share any minute: a < d && c < b.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start < other.End && other.Start < iv.End
}

// IntervalSet keeps intervals sorted by start so an overlap query only
// has to look at the neighbours of the insertion point.
type IntervalSet struct {
	items []Interval
}

// NewIntervalSet builds a set from intervals that are assumed to be
// disjoint already; use Insert to enforce it.
func NewIntervalSet(intervals ...Interval) *IntervalSet {
	items := make([]Interval, len(intervals))
	copy(items, intervals)
	sort.Slice(items, func(i, j int) bool { return items[i].Start < items[j].Start })
	return &IntervalSet{items: items}
}

func (s *IntervalSet) Len() int { return len(s.items) }

func (s *IntervalSet) Intervals() []Interval {
	out := make([]Interval, len(s.items))
	copy(out, s.items)
	return out
}

// Overlaps reports whether candidate intersects any interval in the set.
func (s *IntervalSet) Overlaps(candidate Interval) bool {
	i := sort.Search(len(s.items), func(i int) bool { return s.items[i].Start >= candidate.End })
	// every interval at index >= i starts at or after candidate.End
	for j := i - 1; j >= 0; j-- {
		if s.items[j].Overlaps(candidate) {
			return true
		}
		if s.items[j].End <= candidate.Start {
			// sorted by start and disjoint, so ends are sorted too
			return false
		}
	}
	return false
}

// Insert adds iv and reports false without modifying the set when iv is
// empty or overlaps an existing interval.
func (s *IntervalSet) Insert(iv Interval) bool {
	if !iv.Valid() || s.Overlaps(iv) {
		return false
	}
	i := sort.Search(len(s.items), func(i int) bool { return s.items[i].Start >= iv.Start })
	s.items = append(s.items, Interval{})
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = iv
	return true
}
