// Package availability turns published availability blocks and existing
// appointments into the set of slots a patient can still book.
package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/timegrid"
)

// BlockReader is the read side of the block store.
type BlockReader interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*appointment.Doctor, error)
	ListBlocks(ctx context.Context, doctorID uuid.UUID) ([]appointment.AvailabilityBlock, error)
}

// Index answers which blocks and candidate slots a doctor has on a date.
type Index struct {
	blocks      BlockReader
	slotMinutes int
}

func NewIndex(blocks BlockReader, slotMinutes int) *Index {
	if slotMinutes <= 0 {
		slotMinutes = timegrid.DefaultSlotMinutes
	}
	return &Index{blocks: blocks, slotMinutes: slotMinutes}
}

func (ix *Index) SlotMinutes() int { return ix.slotMinutes }

// Schedule is a snapshot of one doctor's blocks grouped by date.
type Schedule struct {
	doctorID    uuid.UUID
	slotMinutes int
	byDate      map[timegrid.Date][]appointment.AvailabilityBlock
}

// Load reads the doctor's blocks once so several dates can be answered
// from the same snapshot.
func (ix *Index) Load(ctx context.Context, doctorID uuid.UUID) (*Schedule, error) {
	if _, err := ix.blocks.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	blocks, err := ix.blocks.ListBlocks(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability blocks: %w", err)
	}

	s := &Schedule{
		doctorID:    doctorID,
		slotMinutes: ix.slotMinutes,
		byDate:      make(map[timegrid.Date][]appointment.AvailabilityBlock),
	}
	for _, b := range blocks {
		s.byDate[b.Date] = append(s.byDate[b.Date], b)
	}
	return s, nil
}

// BlocksFor returns the blocks pinned to date; there may be none or several.
func (s *Schedule) BlocksFor(date timegrid.Date) []appointment.AvailabilityBlock {
	return s.byDate[date]
}

// CandidateSlots is the sorted, de-duplicated union of the slots of every
// block on date.
func (s *Schedule) CandidateSlots(date timegrid.Date) ([]timegrid.Clock, error) {
	blocks := s.byDate[date]
	lists := make([][]timegrid.Clock, 0, len(blocks))
	for _, b := range blocks {
		slots, err := timegrid.GenerateSlots(b.StartTime, b.EndTime, s.slotMinutes)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", b.ID, err)
		}
		lists = append(lists, slots)
	}
	return timegrid.MergeSlots(lists...), nil
}

func (ix *Index) BlocksFor(ctx context.Context, doctorID uuid.UUID, date timegrid.Date) ([]appointment.AvailabilityBlock, error) {
	s, err := ix.Load(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return s.BlocksFor(date), nil
}

func (ix *Index) CandidateSlots(ctx context.Context, doctorID uuid.UUID, date timegrid.Date) ([]timegrid.Clock, error) {
	s, err := ix.Load(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return s.CandidateSlots(date)
}
