package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/timegrid"
)

type CreateAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Notes     string `json:"notes,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type CreateDoctorRequest struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

type DoctorResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DoctorListResponse struct {
	Doctors []DoctorResponse `json:"doctors"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type BlockRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type AppointmentResponse struct {
	ID        int64          `json:"id"`
	PatientID uuid.UUID      `json:"patient_id"`
	DoctorID  uuid.UUID      `json:"doctor_id"`
	Date      timegrid.Date  `json:"date"`
	Time      timegrid.Clock `json:"time"`
	Status    string         `json:"status"`
	Notes     string         `json:"notes,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type TimeRange struct {
	Start timegrid.Clock `json:"start"`
	End   timegrid.Clock `json:"end"`
}

type DaySlotsResponse struct {
	DoctorID  uuid.UUID        `json:"doctor_id"`
	Date      timegrid.Date    `json:"date"`
	Available bool             `json:"available"`
	Slots     []timegrid.Clock `json:"slots"`
	Blocks    []TimeRange      `json:"blocks"`
}

type HorizonResponse struct {
	DoctorID uuid.UUID       `json:"doctor_id"`
	From     timegrid.Date   `json:"from"`
	Days     int             `json:"days"`
	Slots    []timegrid.Slot `json:"slots"`
}

type BlockListResponse struct {
	Blocks []appointment.AvailabilityBlock `json:"blocks"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      a.Date,
		Time:      a.Time,
		Status:    string(a.Status),
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toDoctorResponse(d *appointment.Doctor) DoctorResponse {
	resp := DoctorResponse{
		ID:        d.ID,
		Name:      d.Name,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.Specialty != nil {
		resp.Specialty = *d.Specialty
	}
	return resp
}

func toDaySlotsResponse(day *availability.DayAvailability) DaySlotsResponse {
	resp := DaySlotsResponse{
		DoctorID:  day.DoctorID,
		Date:      day.Date,
		Available: day.Available,
		Slots:     day.Slots,
		Blocks:    make([]TimeRange, 0, len(day.Blocks)),
	}
	if resp.Slots == nil {
		resp.Slots = []timegrid.Clock{}
	}
	for _, b := range day.Blocks {
		resp.Blocks = append(resp.Blocks, TimeRange{Start: b.Start, End: b.End})
	}
	return resp
}
