// Package directory registers doctors and finds them by name or specialty.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/appointment"
	redisclient "github.com/hackgods/doctor-booking/internal/redis"
)

var (
	ErrValidation = errors.New("invalid doctor")
	ErrNameTaken  = errors.New("a doctor with this name already exists")
	ErrBusy       = errors.New("a doctor with this name is being registered, please retry")
)

const minFieldLength = 2

type CreateRequest struct {
	Name      string
	Specialty string
}

type Service struct {
	store  appointment.DoctorDirectory
	locker redisclient.Locker
	logger *zap.Logger
}

func NewService(store appointment.DoctorDirectory, locker redisclient.Locker, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		locker: locker,
		logger: logger.Named("directory"),
	}
}

// Create registers a doctor. Names are unique regardless of case.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*appointment.Doctor, error) {
	name := strings.TrimSpace(req.Name)
	specialty := strings.TrimSpace(req.Specialty)
	if len(name) < minFieldLength {
		return nil, fmt.Errorf("%w: name must have at least %d characters", ErrValidation, minFieldLength)
	}
	if len(specialty) < minFieldLength {
		return nil, fmt.Errorf("%w: specialty must have at least %d characters", ErrValidation, minFieldLength)
	}

	doctor := appointment.Doctor{ID: uuid.New(), Name: name, Specialty: &specialty}

	err := s.locker.WithLock(ctx, redisclient.DoctorNameKey(name), func(lockCtx context.Context) error {
		taken, err := s.nameTaken(lockCtx, name)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %q", ErrNameTaken, name)
		}
		return s.store.InsertDoctor(lockCtx, doctor)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, err
	}

	created, err := s.store.GetDoctor(ctx, doctor.ID)
	if err != nil {
		return nil, fmt.Errorf("read back doctor %s: %w", doctor.ID, err)
	}

	s.logger.Info("doctor registered",
		zap.Stringer("doctor_id", created.ID),
		zap.String("name", created.Name),
		zap.String("specialty", specialty),
	)
	return created, nil
}

func (s *Service) nameTaken(ctx context.Context, name string) (bool, error) {
	matches, err := s.store.ListDoctors(ctx, appointment.DoctorFilter{Name: name})
	if err != nil {
		return false, fmt.Errorf("look up doctor name: %w", err)
	}
	for _, d := range matches {
		if strings.EqualFold(d.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*appointment.Doctor, error) {
	return s.store.GetDoctor(ctx, id)
}

// List returns doctors whose name and specialty start with the given
// prefixes, ignoring case. Empty prefixes match everyone.
func (s *Service) List(ctx context.Context, filter appointment.DoctorFilter) ([]appointment.Doctor, error) {
	filter.Name = strings.TrimSpace(filter.Name)
	filter.Specialty = strings.TrimSpace(filter.Specialty)

	doctors, err := s.store.ListDoctors(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	if doctors == nil {
		doctors = []appointment.Doctor{}
	}
	return doctors, nil
}
