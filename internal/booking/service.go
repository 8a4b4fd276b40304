// Package booking commits, moves and closes appointments so that no two
// active appointments ever share a (doctor, date, time) slot.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/metrics"
	redisclient "github.com/hackgods/doctor-booking/internal/redis"
	"github.com/hackgods/doctor-booking/internal/timegrid"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrSlotUnavailable        = errors.New("slot is not available")
	ErrInvalidStateTransition = errors.New("invalid appointment status transition")
	ErrAlreadyCancelled       = errors.New("appointment already cancelled")
	ErrAlreadyCompleted       = errors.New("appointment already completed")
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var tracer = otel.Tracer("doctorbooking.internal.booking")

type CreateRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      string
	Time      string
	Notes     string
	// Reason is stored as notes when Notes is empty.
	Reason string
}

type Service struct {
	repo     appointment.Repository
	resolver *availability.Resolver
	locker   redisclient.Locker
	ids      appointment.IDAllocator
	metrics  *metrics.BookingMetrics
	logger   *zap.Logger
}

type Option func(*Service)

// WithIDAllocator replaces the repository as the source of appointment ids.
func WithIDAllocator(ids appointment.IDAllocator) Option {
	return func(s *Service) {
		if ids != nil {
			s.ids = ids
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(repo appointment.Repository, resolver *availability.Resolver, locker redisclient.Locker, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		resolver: resolver,
		locker:   locker,
		ids:      repo,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("booking")
	return s
}

// Create books a pending appointment on a free slot. Of several concurrent
// creates for the same slot exactly one succeeds; the rest get ErrSlotUnavailable.
func (s *Service) Create(ctx context.Context, req CreateRequest) (appt *appointment.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.create")
	defer s.finish(span, "create", time.Now(), &err)

	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if req.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor_id is required", ErrValidation)
	}
	date, at, err := parseSlot(req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(slotAttributes(req.DoctorID, date, at)...)

	if err := s.ensureFree(ctx, req.DoctorID, date, at, 0); err != nil {
		return nil, err
	}

	notes := req.Notes
	if notes == "" {
		notes = req.Reason
	}

	err = s.commit(ctx, req.DoctorID, date, at, func(lockCtx context.Context) error {
		// the first check ran outside the lock
		if err := s.ensureFree(lockCtx, req.DoctorID, date, at, 0); err != nil {
			return err
		}

		id, err := s.ids.AllocateAppointmentID(lockCtx)
		if err != nil {
			return fmt.Errorf("allocate appointment id: %w", err)
		}

		appt, err = s.repo.InsertAppointment(lockCtx, appointment.Appointment{
			ID:        id,
			PatientID: req.PatientID,
			DoctorID:  req.DoctorID,
			Date:      date,
			Time:      at,
			Notes:     notes,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("booking.appointment_id", appt.ID))
	s.logger.Info("appointment booked",
		zap.Int64("appointment_id", appt.ID),
		zap.Stringer("doctor_id", appt.DoctorID),
		zap.Stringer("patient_id", appt.PatientID),
		zap.Stringer("date", appt.Date),
		zap.Stringer("time", appt.Time),
	)
	return appt, nil
}

// Reschedule moves a pending appointment to a new slot. The slot it
// currently holds counts as free for this move.
func (s *Service) Reschedule(ctx context.Context, id int64, newDate, newTime string) (appt *appointment.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.reschedule")
	defer s.finish(span, "reschedule", time.Now(), &err)
	span.SetAttributes(attribute.Int64("booking.appointment_id", id))

	date, at, err := parseSlot(newDate, newTime)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != appointment.StatusPending {
		return nil, fmt.Errorf("%w: cannot reschedule %s appointment", ErrInvalidStateTransition, current.Status)
	}
	span.SetAttributes(slotAttributes(current.DoctorID, date, at)...)

	if err := s.ensureFree(ctx, current.DoctorID, date, at, id); err != nil {
		return nil, err
	}

	err = s.commit(ctx, current.DoctorID, date, at, func(lockCtx context.Context) error {
		if err := s.ensureFree(lockCtx, current.DoctorID, date, at, id); err != nil {
			return err
		}

		appt, err = s.repo.MoveAppointment(lockCtx, id, date, at)
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			// the appointment left pending after we read it
			return fmt.Errorf("%w: appointment %d is no longer pending", ErrInvalidStateTransition, id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment rescheduled",
		zap.Int64("appointment_id", id),
		zap.Stringer("from_date", current.Date),
		zap.Stringer("from_time", current.Time),
		zap.Stringer("date", date),
		zap.Stringer("time", at),
	)
	return appt, nil
}

func (s *Service) Cancel(ctx context.Context, id int64) (*appointment.Appointment, error) {
	return s.transition(ctx, "cancel", id, appointment.StatusCancelled)
}

func (s *Service) Complete(ctx context.Context, id int64) (*appointment.Appointment, error) {
	return s.transition(ctx, "complete", id, appointment.StatusCompleted)
}

func (s *Service) Get(ctx context.Context, id int64) (*appointment.Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

// ListQuery selects appointments for List. At least one of PatientID and
// DoctorID is required; Status and Date narrow further when set.
type ListQuery struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    string
	Date      string
	Limit     int
	Offset    int
}

// List returns matching appointments, most recent slot first.
// Limit defaults to DefaultListLimit and is capped at MaxListLimit.
func (s *Service) List(ctx context.Context, q ListQuery) ([]appointment.Appointment, error) {
	if q.PatientID == uuid.Nil && q.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id or doctor_id is required", ErrValidation)
	}

	filter := appointment.AppointmentFilter{
		PatientID: q.PatientID,
		DoctorID:  q.DoctorID,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.Status != "" {
		filter.Status = appointment.AppointmentStatus(q.Status)
		if !filter.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, q.Status)
		}
	}
	if q.Date != "" {
		date, err := timegrid.ParseDate(q.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		filter.Date = date
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	appts, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	if appts == nil {
		appts = []appointment.Appointment{}
	}
	return appts, nil
}

func (s *Service) transition(ctx context.Context, operation string, id int64, to appointment.AppointmentStatus) (appt *appointment.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking."+operation)
	defer s.finish(span, operation, time.Now(), &err)
	span.SetAttributes(attribute.Int64("booking.appointment_id", id))

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(current.Status, to); err != nil {
		return nil, err
	}

	appt, err = s.repo.UpdateAppointmentStatus(ctx, id, appointment.StatusPending, to)
	if errors.Is(err, appointment.ErrAppointmentNotFound) {
		// lost to a concurrent transition; report against the state that won
		latest, getErr := s.repo.GetAppointment(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if terr := checkTransition(latest.Status, to); terr != nil {
			return nil, terr
		}
		return nil, fmt.Errorf("%w: appointment %d changed concurrently", ErrInvalidStateTransition, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s appointment %d: %w", operation, id, err)
	}

	s.logger.Info("appointment status changed",
		zap.Int64("appointment_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)),
	)
	return appt, nil
}

// checkTransition allows only pending -> cancelled and pending -> completed.
func checkTransition(from, to appointment.AppointmentStatus) error {
	switch {
	case from == appointment.StatusPending:
		return nil
	case from == to && to == appointment.StatusCancelled:
		return ErrAlreadyCancelled
	case from == to && to == appointment.StatusCompleted:
		return ErrAlreadyCompleted
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
}

func (s *Service) ensureFree(ctx context.Context, doctorID uuid.UUID, date timegrid.Date, at timegrid.Clock, excludeID int64) error {
	free, err := s.resolver.IsFreeExcluding(ctx, doctorID, date, at, excludeID)
	if err != nil {
		return err
	}
	if !free {
		return fmt.Errorf("%w: %s %s", ErrSlotUnavailable, date, at)
	}
	return nil
}

// commit runs fn under the slot lock. A held lock and a failed conditional
// write both mean another writer got the slot first.
func (s *Service) commit(ctx context.Context, doctorID uuid.UUID, date timegrid.Date, at timegrid.Clock, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, redisclient.SlotKey(doctorID, date, at), fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redisclient.ErrLockNotAcquired), errors.Is(err, appointment.ErrSlotTaken):
		s.logger.Warn("slot race lost",
			zap.Stringer("doctor_id", doctorID),
			zap.Stringer("date", date),
			zap.Stringer("time", at),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s %s", ErrSlotUnavailable, date, at)
	default:
		return err
	}
}

func (s *Service) finish(span trace.Span, operation string, start time.Time, errp *error) {
	err := *errp
	outcome := Outcome(err)
	s.metrics.ObserveOperation(operation, outcome, time.Since(start).Seconds())

	span.SetAttributes(attribute.String("booking.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		if outcome == "error" {
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("booking operation failed", zap.String("operation", operation), zap.Error(err))
		}
	}
	span.End()
}

// Outcome classifies err into the label used for metrics and spans.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, appointment.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSlotUnavailable),
		errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrAlreadyCompleted):
		return "conflict"
	default:
		return "error"
	}
}

func parseSlot(dateStr, timeStr string) (timegrid.Date, timegrid.Clock, error) {
	if dateStr == "" || timeStr == "" {
		return timegrid.Date{}, 0, fmt.Errorf("%w: date and time are required", ErrValidation)
	}
	date, err := timegrid.ParseDate(dateStr)
	if err != nil {
		return timegrid.Date{}, 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	at, err := timegrid.ParseClock(timeStr)
	if err != nil {
		return timegrid.Date{}, 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return date, at, nil
}

func slotAttributes(doctorID uuid.UUID, date timegrid.Date, at timegrid.Clock) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("booking.doctor_id", doctorID.String()),
		attribute.String("booking.date", date.String()),
		attribute.String("booking.time", at.String()),
	}
}
