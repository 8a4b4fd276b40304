package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-booking/internal/timegrid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Active reports whether an appointment in this status occupies its slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusCompleted
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityBlock is a window a doctor publishes on one exact calendar date.
type AvailabilityBlock struct {
	ID        uuid.UUID      `json:"id"`
	DoctorID  uuid.UUID      `json:"doctor_id"`
	Date      timegrid.Date  `json:"date"`
	StartTime timegrid.Clock `json:"start_time"`
	EndTime   timegrid.Clock `json:"end_time"`
}

func (b AvailabilityBlock) Interval() timegrid.Interval {
	return timegrid.Interval{Start: b.StartTime, End: b.EndTime}
}

type Appointment struct {
	ID        int64
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      timegrid.Date
	Time      timegrid.Clock
	Status    AppointmentStatus
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot returns the (date, time) the appointment occupies while active.
func (a Appointment) Slot() timegrid.Slot {
	return timegrid.Slot{Date: a.Date, Time: a.Time}
}
