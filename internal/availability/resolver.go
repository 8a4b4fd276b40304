package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-booking/internal/metrics"
	"github.com/hackgods/doctor-booking/internal/timegrid"
)

var ErrInvalidHorizon = errors.New("horizon must not be negative")

type Resolver struct {
	index     *Index
	occupancy *Occupancy
	metrics   *metrics.BookingMetrics
}

func NewResolver(index *Index, occupancy *Occupancy, m *metrics.BookingMetrics) *Resolver {
	return &Resolver{index: index, occupancy: occupancy, metrics: m}
}

// DayAvailability is the free-slot answer for one date together with the
// blocks it came from. Available is false both when the doctor published
// nothing for the date and when every slot is taken; Blocks tells the two apart.
type DayAvailability struct {
	DoctorID  uuid.UUID
	Date      timegrid.Date
	Available bool
	Slots     []timegrid.Clock
	Blocks    []timegrid.Interval
}

func (r *Resolver) Day(ctx context.Context, doctorID uuid.UUID, date timegrid.Date) (*DayAvailability, error) {
	schedule, err := r.index.Load(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	free, err := r.freeFromSchedule(ctx, schedule, date, 0)
	if err != nil {
		return nil, err
	}

	day := &DayAvailability{
		DoctorID:  doctorID,
		Date:      date,
		Available: len(free) > 0,
		Slots:     free,
	}
	for _, b := range schedule.BlocksFor(date) {
		day.Blocks = append(day.Blocks, b.Interval())
	}
	return day, nil
}

// FreeSlots returns candidate minus occupied slots in ascending order.
func (r *Resolver) FreeSlots(ctx context.Context, doctorID uuid.UUID, date timegrid.Date) ([]timegrid.Clock, error) {
	return r.freeSlots(ctx, doctorID, date, 0)
}

func (r *Resolver) IsFree(ctx context.Context, doctorID uuid.UUID, date timegrid.Date, at timegrid.Clock) (bool, error) {
	return r.IsFreeExcluding(ctx, doctorID, date, at, 0)
}

// IsFreeExcluding is IsFree with the appointment excludeID treated as absent.
func (r *Resolver) IsFreeExcluding(ctx context.Context, doctorID uuid.UUID, date timegrid.Date, at timegrid.Clock, excludeID int64) (bool, error) {
	free, err := r.freeSlots(ctx, doctorID, date, excludeID)
	if err != nil {
		return false, err
	}
	for _, c := range free {
		if c == at {
			return true, nil
		}
	}
	return false, nil
}

// SlotsOverHorizon lists free slots for days consecutive dates starting at
// from, ordered by date then time. A doctor with no blocks in the window
// yields an empty list.
func (r *Resolver) SlotsOverHorizon(ctx context.Context, doctorID uuid.UUID, from timegrid.Date, days int) ([]timegrid.Slot, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHorizon, days)
	}

	schedule, err := r.index.Load(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	slots := []timegrid.Slot{}
	for i := 0; i < days; i++ {
		date := from.AddDays(i)
		if len(schedule.BlocksFor(date)) == 0 {
			continue
		}
		free, err := r.freeFromSchedule(ctx, schedule, date, 0)
		if err != nil {
			return nil, err
		}
		for _, c := range free {
			slots = append(slots, timegrid.Slot{Date: date, Time: c})
		}
	}
	return slots, nil
}

func (r *Resolver) freeSlots(ctx context.Context, doctorID uuid.UUID, date timegrid.Date, excludeID int64) ([]timegrid.Clock, error) {
	schedule, err := r.index.Load(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return r.freeFromSchedule(ctx, schedule, date, excludeID)
}

func (r *Resolver) freeFromSchedule(ctx context.Context, schedule *Schedule, date timegrid.Date, excludeID int64) ([]timegrid.Clock, error) {
	candidates, err := schedule.CandidateSlots(date)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		r.metrics.ObserveFreeSlots(0)
		return []timegrid.Clock{}, nil
	}

	taken, err := r.occupancy.occupiedExcluding(ctx, schedule.doctorID, date, excludeID)
	if err != nil {
		return nil, err
	}

	free := make([]timegrid.Clock, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := taken[c]; !ok {
			free = append(free, c)
		}
	}
	r.metrics.ObserveFreeSlots(len(free))
	return free, nil
}
