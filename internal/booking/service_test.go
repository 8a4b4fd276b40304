package booking

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-booking/internal/appointment"
	"github.com/hackgods/doctor-booking/internal/availability"
	"github.com/hackgods/doctor-booking/internal/metrics"
	redisclient "github.com/hackgods/doctor-booking/internal/redis"
	"github.com/hackgods/doctor-booking/internal/timegrid"
	"github.com/hackgods/doctor-booking/pkg/logging"
)

var june10 = timegrid.NewDate(2024, time.June, 10)

type harness struct {
	repo     *appointment.MemoryRepository
	svc      *Service
	doctorID uuid.UUID
}

func newHarness(t *testing.T, locker redisclient.Locker, opts ...Option) *harness {
	t.Helper()
	repo := appointment.NewMemoryRepository()
	doctorID := uuid.New()
	repo.AddDoctor(appointment.Doctor{ID: doctorID, Name: "Dr. Haddad"})

	resolver := availability.NewResolver(
		availability.NewIndex(repo, timegrid.DefaultSlotMinutes),
		availability.NewOccupancy(repo),
		nil,
	)
	if locker == nil {
		locker = redisclient.NewLocalLocker(5 * time.Second)
	}
	opts = append([]Option{WithLogger(logging.Nop())}, opts...)
	return &harness{
		repo:     repo,
		svc:      NewService(repo, resolver, locker, opts...),
		doctorID: doctorID,
	}
}

func (h *harness) block(t *testing.T, date timegrid.Date, start, end string) {
	t.Helper()
	require.NoError(t, h.repo.InsertBlock(context.Background(), appointment.AvailabilityBlock{
		ID:        uuid.New(),
		DoctorID:  h.doctorID,
		Date:      date,
		StartTime: timegrid.MustParseClock(start),
		EndTime:   timegrid.MustParseClock(end),
	}))
}

func (h *harness) request(at string) CreateRequest {
	return CreateRequest{PatientID: uuid.New(), DoctorID: h.doctorID, Date: june10.String(), Time: at}
}

func TestCreateThenSlotDisappears(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.block(t, june10, "09:00", "10:00")

	req := h.request("09:00")
	req.Reason = "annual check-up"
	appt, err := h.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, appt.Status)
	assert.Equal(t, "annual check-up", appt.Notes)
	assert.Positive(t, appt.ID)

	_, err = h.svc.Create(ctx, h.request("09:00"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	second, err := h.svc.Create(ctx, h.request("09:30"))
	require.NoError(t, err)
	assert.Greater(t, second.ID, appt.ID)
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.block(t, june10, "09:00", "10:00")

	cases := map[string]CreateRequest{
		"missing patient": {DoctorID: h.doctorID, Date: "2024-06-10", Time: "09:00"},
		"missing doctor":  {PatientID: uuid.New(), Date: "2024-06-10", Time: "09:00"},
		"missing date":    {PatientID: uuid.New(), DoctorID: h.doctorID, Time: "09:00"},
		"bad date":        {PatientID: uuid.New(), DoctorID: h.doctorID, Date: "10/06/2024", Time: "09:00"},
		"bad time":        {PatientID: uuid.New(), DoctorID: h.doctorID, Date: "2024-06-10", Time: "9am"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.Create(ctx, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateOutsideAvailability(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.block(t, june10, "09:00", "10:00")

	// 10:00 is the block end, not a slot start
	_, err := h.svc.Create(ctx, h.request("10:00"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// misaligned with the grid
	_, err = h.svc.Create(ctx, h.request("09:15"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	req := h.request("09:00")
	req.Date = june10.AddDays(1).String()
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	req = h.request("09:00")
	req.DoctorID = uuid.New()
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, appointment.ErrDoctorNotFound)
}

func TestConcurrentCreateHasOneWinner(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	for name, locker := range map[string]redisclient.Locker{
		"redis lock": redisclient.NewRedisLocker(client, 5*time.Second),
		"local lock": redisclient.NewLocalLocker(5 * time.Second),
		"no-op lock": passThroughLocker{},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, locker)
			h.block(t, june10, "09:00", "10:00")

			const callers = 32
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				wins      int
				conflicts int
			)
			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := h.svc.Create(context.Background(), h.request("09:00"))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case errors.Is(err, ErrSlotUnavailable):
						conflicts++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, 1, wins)
			assert.Equal(t, callers-1, conflicts)
			assert.Empty(t, mr.Keys(), "locks must be released")

			appts, err := h.repo.ListAppointmentsForDay(context.Background(), h.doctorID, june10)
			require.NoError(t, err)
			assert.Len(t, appts, 1)
		})
	}
}

// passThroughLocker leaves the repository's conditional write as the only guard.
type passThroughLocker struct{}

func (passThroughLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestCreateWhileSlotLockedIsUnavailable(t *testing.T) {
	h := newHarness(t, busyLocker{})
	h.block(t, june10, "09:00", "10:00")

	_, err := h.svc.Create(context.Background(), h.request("09:00"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestCancelFreesSlot(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.block(t, june10, "09:00", "10:00")

	appt, err := h.svc.Create(ctx, h.request("09:00"))
	require.NoError(t, err)

	cancelled, err := h.svc.Cancel(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)

	again, err := h.svc.Create(ctx, h.request("09:00"))
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, again.ID)

	got, err := h.svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
}

func TestTerminalStates(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.block(t, june10, "09:00", "11:00")

	done, err := h.svc.Create(ctx, h.request("09:00"))
	require.NoError(t, err)
	_, err = h.svc.Complete(ctx, done.ID)
	require.NoError(t, err)

	gone, err := h.svc.Create(ctx, h.request("09:30"))
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, gone.ID)
	require.NoError(t, err)

	_, err = h.svc.Complete(ctx, done.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	_, err = h.svc.Cancel(ctx, done.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = h.svc.Reschedule(ctx, done.ID, "2024-06-10", "10:00")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = h.svc.Cancel(ctx, gone.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	_, err = h.svc.Complete(ctx, gone.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = h.svc.Reschedule(ctx, gone.ID, "2024-06-10", "10:00")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	// completed appointments keep their slot
	_, err = h.svc.Create(ctx, h.request("09:00"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	_, err = h.svc.Cancel(ctx, 9999)
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
	_, err = h.svc.Reschedule(ctx, 9999, "2024-06-10", "10:00")
	assert.ErrorIs(t, err, appointment.ErrNotFound)
}

func TestReschedule(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.block(t, june10, "09:00", "10:30")

	a, err := h.svc.Create(ctx, h.request("09:00"))
	require.NoError(t, err)
	b, err := h.svc.Create(ctx, h.request("09:30"))
	require.NoError(t, err)

	_, err = h.svc.Reschedule(ctx, a.ID, "2024-06-10", "09:30")
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// its own slot is free for itself
	same, err := h.svc.Reschedule(ctx, a.ID, "2024-06-10", "09:00")
	require.NoError(t, err)
	assert.Equal(t, a.ID, same.ID)

	moved, err := h.svc.Reschedule(ctx, a.ID, "2024-06-10", "10:00")
	require.NoError(t, err)
	assert.Equal(t, a.ID, moved.ID)
	assert.Equal(t, "10:00", moved.Time.String())

	// old slot is released
	_, err = h.svc.Reschedule(ctx, b.ID, "2024-06-10", "09:00")
	require.NoError(t, err)

	_, err = h.svc.Reschedule(ctx, a.ID, "2024-06-10", "25:00")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListClampsLimit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.block(t, june10, "08:00", "12:00")
	patientID := uuid.New()

	for _, at := range []string{"08:00", "08:30", "09:00"} {
		req := h.request(at)
		req.PatientID = patientID
		_, err := h.svc.Create(ctx, req)
		require.NoError(t, err)
	}

	all, err := h.svc.List(ctx, ListQuery{PatientID: patientID, Limit: 0, Offset: -5})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "09:00", all[0].Time.String())

	page, err := h.svc.List(ctx, ListQuery{PatientID: patientID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "08:30", page[0].Time.String())

	none, err := h.svc.List(ctx, ListQuery{PatientID: uuid.New(), Limit: 500})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = h.svc.List(ctx, ListQuery{Limit: 10})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListFiltersDoctorAgenda(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.block(t, june10, "08:00", "12:00")
	h.block(t, june10.AddDays(1), "08:00", "12:00")

	var booked []*appointment.Appointment
	for _, at := range []string{"08:00", "08:30", "09:00"} {
		a, err := h.svc.Create(ctx, h.request(at))
		require.NoError(t, err)
		booked = append(booked, a)
	}
	next := h.request("10:00")
	next.Date = june10.AddDays(1).String()
	_, err := h.svc.Create(ctx, next)
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, booked[1].ID)
	require.NoError(t, err)

	agenda, err := h.svc.List(ctx, ListQuery{DoctorID: h.doctorID})
	require.NoError(t, err)
	assert.Len(t, agenda, 4)

	day, err := h.svc.List(ctx, ListQuery{DoctorID: h.doctorID, Date: "2024-06-10"})
	require.NoError(t, err)
	assert.Len(t, day, 3)

	pending, err := h.svc.List(ctx, ListQuery{DoctorID: h.doctorID, Date: "2024-06-10", Status: "pending"})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "09:00", pending[0].Time.String())
	assert.Equal(t, "08:00", pending[1].Time.String())

	_, err = h.svc.List(ctx, ListQuery{Status: "pending"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.svc.List(ctx, ListQuery{DoctorID: h.doctorID, Status: "confirmed"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.svc.List(ctx, ListQuery{DoctorID: h.doctorID, Date: "2024-6-10"})
	assert.ErrorIs(t, err, ErrValidation)
}

// racingRepository loses every conditional status update, as if another
// request changed the row between our read and our write.
type racingRepository struct {
	*appointment.MemoryRepository
}

func (racingRepository) UpdateAppointmentStatus(context.Context, int64, appointment.AppointmentStatus, appointment.AppointmentStatus) (*appointment.Appointment, error) {
	return nil, appointment.ErrAppointmentNotFound
}

func TestTransitionLostUpdateIsConflict(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.block(t, june10, "09:00", "10:00")
	appt, err := h.svc.Create(ctx, h.request("09:00"))
	require.NoError(t, err)

	resolver := availability.NewResolver(
		availability.NewIndex(h.repo, timegrid.DefaultSlotMinutes),
		availability.NewOccupancy(h.repo),
		nil,
	)
	svc := NewService(racingRepository{h.repo}, resolver, passThroughLocker{}, WithLogger(logging.Nop()))

	_, err = svc.Cancel(ctx, appt.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.NotErrorIs(t, err, appointment.ErrNotFound)
	assert.Equal(t, "conflict", Outcome(err))

	_, err = svc.Complete(ctx, appt.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

type fixedAllocator struct{ id int64 }

func (f fixedAllocator) AllocateAppointmentID(context.Context) (int64, error) {
	return f.id, nil
}

func TestCreateWithReusedIDIsNotASlotConflict(t *testing.T) {
	h := newHarness(t, nil, WithIDAllocator(fixedAllocator{id: 5}))
	ctx := context.Background()
	h.block(t, june10, "09:00", "10:00")

	_, err := h.svc.Create(ctx, h.request("09:00"))
	require.NoError(t, err)

	_, err = h.svc.Create(ctx, h.request("09:30"))
	require.ErrorIs(t, err, appointment.ErrDuplicateID)
	assert.NotErrorIs(t, err, ErrSlotUnavailable)
	assert.Equal(t, "error", Outcome(err))

	free, err := h.svc.resolver.IsFreeExcluding(ctx, h.doctorID, june10, timegrid.MustParseClock("09:30"), 0)
	require.NoError(t, err)
	assert.True(t, free)
}

type countingAllocator struct{ next int64 }

func (c *countingAllocator) AllocateAppointmentID(context.Context) (int64, error) {
	c.next += 100
	return c.next, nil
}

func TestCreateUsesInjectedAllocatorAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ids := &countingAllocator{}
	h := newHarness(t, nil, WithIDAllocator(ids), WithMetrics(metrics.NewBookingMetrics(reg)))
	h.block(t, june10, "09:00", "10:00")

	appt, err := h.svc.Create(context.Background(), h.request("09:00"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), appt.ID)

	_, err = h.svc.Create(context.Background(), h.request("09:00"))
	require.ErrorIs(t, err, ErrSlotUnavailable)

	families, err := reg.Gather()
	require.NoError(t, err)
	outcomes := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "booking_appointments_operations_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					outcomes[l.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"ok": 1, "conflict": 1}, outcomes)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "invalid", Outcome(ErrValidation))
	assert.Equal(t, "not_found", Outcome(appointment.ErrDoctorNotFound))
	assert.Equal(t, "conflict", Outcome(ErrAlreadyCancelled))
	assert.Equal(t, "error", Outcome(errors.New("connection reset")))
}

// Random create/reschedule/cancel/complete sequences never leave two
// active appointments on one slot.
func TestNoOverlapUnderRandomOperations(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	days := []timegrid.Date{june10, june10.AddDays(1)}
	for _, d := range days {
		h.block(t, d, "09:00", "11:00")
	}
	times := []string{"09:00", "09:30", "10:00", "10:30"}

	rng := rand.New(rand.NewSource(42))
	var ids []int64
	var wg sync.WaitGroup
	var mu sync.Mutex

	for worker := 0; worker < 8; worker++ {
		seed := rng.Int63()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for step := 0; step < 100; step++ {
				date := days[r.Intn(len(days))].String()
				at := times[r.Intn(len(times))]

				mu.Lock()
				var id int64
				if len(ids) > 0 {
					id = ids[r.Intn(len(ids))]
				}
				mu.Unlock()

				switch op := r.Intn(4); {
				case op == 0 || id == 0:
					appt, err := h.svc.Create(ctx, CreateRequest{PatientID: uuid.New(), DoctorID: h.doctorID, Date: date, Time: at})
					if err == nil {
						mu.Lock()
						ids = append(ids, appt.ID)
						mu.Unlock()
					}
				case op == 1:
					_, _ = h.svc.Reschedule(ctx, id, date, at)
				case op == 2:
					_, _ = h.svc.Cancel(ctx, id)
				default:
					_, _ = h.svc.Complete(ctx, id)
				}
			}
		}()
	}
	wg.Wait()

	for _, d := range days {
		appts, err := h.repo.ListAppointmentsForDay(ctx, h.doctorID, d)
		require.NoError(t, err)
		seen := map[timegrid.Clock]int64{}
		for _, a := range appts {
			if !a.Status.Active() {
				continue
			}
			if other, dup := seen[a.Time]; dup {
				t.Fatalf("appointments %d and %d both hold %s %s", other, a.ID, d, a.Time)
			}
			seen[a.Time] = a.ID
		}
	}
}
