package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-booking/internal/timegrid"
)

var (
	ErrNotFound = errors.New("not found")

	ErrDoctorNotFound      = fmt.Errorf("doctor %w", ErrNotFound)
	ErrBlockNotFound       = fmt.Errorf("availability block %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)

	// ErrSlotTaken is returned by conditional writes when another active
	// appointment already holds the (doctor, date, time) triple.
	ErrSlotTaken = errors.New("slot already has an active appointment")

	// ErrDuplicateID means the id handed to InsertAppointment is already
	// stored. It points at a broken id source, not at a busy slot.
	ErrDuplicateID = errors.New("appointment id already in use")
)

// DoctorFilter narrows ListDoctors. Empty fields match everything; set
// fields are case-insensitive prefix matches.
type DoctorFilter struct {
	Specialty string
	Name      string
}

// AppointmentFilter narrows ListAppointments. Zero-valued fields are ignored.
// Results are ordered most recent slot first.
type AppointmentFilter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    AppointmentStatus
	Date      timegrid.Date
	Limit     int
	Offset    int
}

// Matches reports whether a satisfies every set field of the filter.
func (f AppointmentFilter) Matches(a Appointment) bool {
	if f.PatientID != uuid.Nil && a.PatientID != f.PatientID {
		return false
	}
	if f.DoctorID != uuid.Nil && a.DoctorID != f.DoctorID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if !f.Date.IsZero() && !a.Date.Equal(f.Date) {
		return false
	}
	return true
}

// Repository contains all store interactions needed by availability and booking.
type Repository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// Availability blocks
	ListBlocks(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityBlock, error)
	GetBlock(ctx context.Context, doctorID, blockID uuid.UUID) (*AvailabilityBlock, error)
	InsertBlock(ctx context.Context, block AvailabilityBlock) error
	UpdateBlock(ctx context.Context, block AvailabilityBlock) error
	DeleteBlock(ctx context.Context, doctorID, blockID uuid.UUID) error

	// Reads for occupancy and history
	ListAppointmentsForDay(ctx context.Context, doctorID uuid.UUID, date timegrid.Date) ([]Appointment, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, error)
	GetAppointment(ctx context.Context, id int64) (*Appointment, error)

	// AllocateAppointmentID hands out a fresh id without scanning existing rows.
	AllocateAppointmentID(ctx context.Context) (int64, error)

	// InsertAppointment stores a pending appointment unless an active one
	// already exists for the same doctor, date and time (ErrSlotTaken).
	// An id that is already stored yields ErrDuplicateID.
	InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	// MoveAppointment changes date and time of a pending appointment, under
	// the same uniqueness rule as InsertAppointment with the appointment
	// itself excluded. Returns ErrAppointmentNotFound when no pending row matches.
	MoveAppointment(ctx context.Context, id int64, date timegrid.Date, at timegrid.Clock) (*Appointment, error)
	// UpdateAppointmentStatus is conditional on the current status being from.
	UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus) (*Appointment, error)
}

// DoctorDirectory is the doctor registry behind the directory endpoints.
type DoctorDirectory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	InsertDoctor(ctx context.Context, d Doctor) error
	ListDoctors(ctx context.Context, filter DoctorFilter) ([]Doctor, error)
}

// IDAllocator can replace the repository's own id source.
type IDAllocator interface {
	AllocateAppointmentID(ctx context.Context) (int64, error)
}
