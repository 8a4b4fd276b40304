package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-booking/internal/timegrid"
)

// MemoryRepository is a process-local Repository. All writes run under one
// mutex, which makes the conditional insert and move trivially atomic.
type MemoryRepository struct {
	mu           sync.RWMutex
	doctors      map[uuid.UUID]Doctor
	blocks       map[uuid.UUID][]AvailabilityBlock
	appointments map[int64]Appointment
	nextID       atomic.Int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:      make(map[uuid.UUID]Doctor),
		blocks:       make(map[uuid.UUID][]AvailabilityBlock),
		appointments: make(map[int64]Appointment),
	}
}

// AddDoctor registers or replaces a doctor.
func (r *MemoryRepository) AddDoctor(d Doctor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putDoctorLocked(d)
}

// InsertDoctor keeps an existing doctor with the same id untouched.
func (r *MemoryRepository) InsertDoctor(_ context.Context, d Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.doctors[d.ID]; !exists {
		r.putDoctorLocked(d)
	}
	return nil
}

func (r *MemoryRepository) putDoctorLocked(d Doctor) {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	r.doctors[d.ID] = d
}

func (r *MemoryRepository) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) ListBlocks(_ context.Context, doctorID uuid.UUID) ([]AvailabilityBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AvailabilityBlock, len(r.blocks[doctorID]))
	copy(out, r.blocks[doctorID])
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *MemoryRepository) GetBlock(_ context.Context, doctorID, blockID uuid.UUID) (*AvailabilityBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.blocks[doctorID] {
		if b.ID == blockID {
			return &b, nil
		}
	}
	return nil, ErrBlockNotFound
}

func (r *MemoryRepository) InsertBlock(_ context.Context, b AvailabilityBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.doctors[b.DoctorID]; !ok {
		return ErrDoctorNotFound
	}
	r.blocks[b.DoctorID] = append(r.blocks[b.DoctorID], b)
	return nil
}

func (r *MemoryRepository) UpdateBlock(_ context.Context, b AvailabilityBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocks := r.blocks[b.DoctorID]
	for i := range blocks {
		if blocks[i].ID == b.ID {
			blocks[i] = b
			return nil
		}
	}
	return ErrBlockNotFound
}

func (r *MemoryRepository) DeleteBlock(_ context.Context, doctorID, blockID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocks := r.blocks[doctorID]
	for i := range blocks {
		if blocks[i].ID == blockID {
			r.blocks[doctorID] = append(blocks[:i:i], blocks[i+1:]...)
			return nil
		}
	}
	return ErrBlockNotFound
}

func (r *MemoryRepository) ListAppointmentsForDay(_ context.Context, doctorID uuid.UUID, date timegrid.Date) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(date) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, filter AppointmentFilter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		if out[i].Time != out[j].Time {
			return out[i].Time > out[j].Time
		}
		return out[i].ID > out[j].ID
	})

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id int64) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) AllocateAppointmentID(_ context.Context) (int64, error) {
	return r.nextID.Add(1), nil
}

// slotHeldLocked must be called with mu held.
func (r *MemoryRepository) slotHeldLocked(doctorID uuid.UUID, date timegrid.Date, at timegrid.Clock, exclude int64) bool {
	for _, a := range r.appointments {
		if a.ID == exclude {
			continue
		}
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.Time == at && a.Status.Active() {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) InsertAppointment(_ context.Context, appt Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.doctors[appt.DoctorID]; !ok {
		return nil, ErrDoctorNotFound
	}
	if _, exists := r.appointments[appt.ID]; exists {
		return nil, fmt.Errorf("insert appointment %d: %w", appt.ID, ErrDuplicateID)
	}
	if r.slotHeldLocked(appt.DoctorID, appt.Date, appt.Time, 0) {
		return nil, ErrSlotTaken
	}

	now := time.Now().UTC()
	appt.Status = StatusPending
	appt.CreatedAt = now
	appt.UpdatedAt = now
	r.appointments[appt.ID] = appt
	return &appt, nil
}

func (r *MemoryRepository) MoveAppointment(_ context.Context, id int64, date timegrid.Date, at timegrid.Clock) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != StatusPending {
		return nil, ErrAppointmentNotFound
	}
	if r.slotHeldLocked(a.DoctorID, date, at, id) {
		return nil, ErrSlotTaken
	}

	a.Date = date
	a.Time = at
	a.UpdatedAt = time.Now().UTC()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id int64, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	r.appointments[id] = a
	return &a, nil
}
