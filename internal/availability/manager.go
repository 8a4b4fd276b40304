package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/appointment"
	redisclient "github.com/hackgods/doctor-booking/internal/redis"
	"github.com/hackgods/doctor-booking/internal/timegrid"
)

var (
	ErrInvalidBlock = errors.New("availability block start must be before end")
	ErrBlockOverlap = errors.New("availability block overlaps an existing block")
	ErrBlocksBusy   = errors.New("availability for this date is being edited, please retry")
)

// BlockStore is the write side of the block store.
type BlockStore interface {
	BlockReader
	GetBlock(ctx context.Context, doctorID, blockID uuid.UUID) (*appointment.AvailabilityBlock, error)
	InsertBlock(ctx context.Context, block appointment.AvailabilityBlock) error
	UpdateBlock(ctx context.Context, block appointment.AvailabilityBlock) error
	DeleteBlock(ctx context.Context, doctorID, blockID uuid.UUID) error
}

type BlockInput struct {
	Date      timegrid.Date
	StartTime timegrid.Clock
	EndTime   timegrid.Clock
}

func (in BlockInput) interval() timegrid.Interval {
	return timegrid.Interval{Start: in.StartTime, End: in.EndTime}
}

// Manager publishes, edits and removes a doctor's availability blocks while
// keeping blocks on the same date disjoint.
type Manager struct {
	store  BlockStore
	locker redisclient.Locker
	logger *zap.Logger
}

func NewManager(store BlockStore, locker redisclient.Locker, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		locker: locker,
		logger: logger.Named("availability"),
	}
}

func (m *Manager) ListBlocks(ctx context.Context, doctorID uuid.UUID) ([]appointment.AvailabilityBlock, error) {
	if _, err := m.store.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return m.store.ListBlocks(ctx, doctorID)
}

func (m *Manager) AddBlock(ctx context.Context, doctorID uuid.UUID, in BlockInput) (*appointment.AvailabilityBlock, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if _, err := m.store.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	block := appointment.AvailabilityBlock{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		Date:      in.Date,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
	}

	err := m.withDateLock(ctx, doctorID, in.Date, func(lockCtx context.Context) error {
		if err := m.checkOverlap(lockCtx, doctorID, in, uuid.Nil); err != nil {
			return err
		}
		return m.store.InsertBlock(lockCtx, block)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("availability block added",
		zap.Stringer("doctor_id", doctorID),
		zap.Stringer("block_id", block.ID),
		zap.Stringer("date", block.Date),
		zap.Stringer("start", block.StartTime),
		zap.Stringer("end", block.EndTime),
	)
	return &block, nil
}

func (m *Manager) UpdateBlock(ctx context.Context, doctorID, blockID uuid.UUID, in BlockInput) (*appointment.AvailabilityBlock, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if _, err := m.store.GetBlock(ctx, doctorID, blockID); err != nil {
		return nil, err
	}

	block := appointment.AvailabilityBlock{
		ID:        blockID,
		DoctorID:  doctorID,
		Date:      in.Date,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
	}

	err := m.withDateLock(ctx, doctorID, in.Date, func(lockCtx context.Context) error {
		if err := m.checkOverlap(lockCtx, doctorID, in, blockID); err != nil {
			return err
		}
		return m.store.UpdateBlock(lockCtx, block)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("availability block updated",
		zap.Stringer("doctor_id", doctorID),
		zap.Stringer("block_id", blockID),
		zap.Stringer("date", block.Date),
	)
	return &block, nil
}

func (m *Manager) DeleteBlock(ctx context.Context, doctorID, blockID uuid.UUID) error {
	if err := m.store.DeleteBlock(ctx, doctorID, blockID); err != nil {
		return err
	}
	m.logger.Info("availability block deleted",
		zap.Stringer("doctor_id", doctorID),
		zap.Stringer("block_id", blockID),
	)
	return nil
}

func validateInput(in BlockInput) error {
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidBlock)
	}
	if !in.interval().Valid() {
		return fmt.Errorf("%w: %s-%s", ErrInvalidBlock, in.StartTime, in.EndTime)
	}
	return nil
}

// checkOverlap compares in against the doctor's other blocks on the same
// date; skip is the block being edited.
func (m *Manager) checkOverlap(ctx context.Context, doctorID uuid.UUID, in BlockInput, skip uuid.UUID) error {
	existing, err := m.store.ListBlocks(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("list availability blocks: %w", err)
	}

	var sameDay []timegrid.Interval
	for _, b := range existing {
		if b.ID == skip || !b.Date.Equal(in.Date) {
			continue
		}
		sameDay = append(sameDay, b.Interval())
	}
	if timegrid.NewIntervalSet(sameDay...).Overlaps(in.interval()) {
		return fmt.Errorf("%w on %s: %s-%s", ErrBlockOverlap, in.Date, in.StartTime, in.EndTime)
	}
	return nil
}

func (m *Manager) withDateLock(ctx context.Context, doctorID uuid.UUID, date timegrid.Date, fn func(ctx context.Context) error) error {
	err := m.locker.WithLock(ctx, redisclient.BlocksKey(doctorID, date), fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrBlocksBusy
	}
	return err
}
