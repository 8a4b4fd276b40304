package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-booking/internal/api"
	"github.com/hackgods/doctor-booking/internal/timegrid"
	"github.com/hackgods/doctor-booking/pkg/logging"
)

type SimConfig struct {
	APIBaseURL string        `env:"SIM_API_BASE_URL" envDefault:"http://localhost:8080"`
	Duration   time.Duration `env:"SIM_DURATION" envDefault:"30s"`
	Workers    int           `env:"SIM_WORKERS" envDefault:"10"`
	DoctorIDs  []string      `env:"SIM_DOCTOR_IDS" envSeparator:","`
	From       string        `env:"SIM_FROM"`
	Days       int           `env:"SIM_DAYS" envDefault:"7"`
	Patients   int           `env:"SIM_PATIENTS" envDefault:"500"`

	BookingRatio float64 `env:"SIM_BOOKING_RATIO" envDefault:"0.5"`
	ChangeRatio  float64 `env:"SIM_CHANGE_RATIO" envDefault:"0.2"`
	ReadRatio    float64 `env:"SIM_READ_RATIO" envDefault:"0.3"`

	// racers fire at one slot together before the timed run starts
	RaceSlots   int `env:"SIM_RACE_SLOTS" envDefault:"5"`
	RaceCallers int `env:"SIM_RACE_CALLERS" envDefault:"20"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

type DataPool struct {
	Doctors  []uuid.UUID
	Patients []uuid.UUID
	Slots    []poolSlot

	mu           sync.RWMutex
	appointments []int64
}

type poolSlot struct {
	DoctorID uuid.UUID
	Slot     timegrid.Slot
}

func (dp *DataPool) AddAppointment(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return 0, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking       OperationMetrics
	Reschedule    OperationMetrics
	Cancel        OperationMetrics
	Complete      OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
	DoctorAgenda  OperationMetrics
	DaySlots      OperationMetrics
}

// RaceResult is the outcome of RaceCallers simultaneous creates on one slot.
type RaceResult struct {
	Slot      poolSlot
	Winners   int
	Conflicts int
	Errors    int
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	races   []RaceResult
	logger  *zap.Logger
}

func main() {
	_ = godotenv.Load()

	var cfg SimConfig
	if err := env.Parse(&cfg); err != nil {
		_, _ = os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logging.New("dev", cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateConfig(cfg); err != nil {
		os.Exit(logging.Fail(logger, "invalid config", err))
	}
	normalizeRatios(&cfg)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sim.pool, err = sim.loadDataPool(ctx)
	if err != nil {
		cancel()
		os.Exit(logging.Fail(logger, "load data pool", err))
	}
	logger.Info("data pool loaded",
		zap.Int("doctors", len(sim.pool.Doctors)),
		zap.Int("free_slots", len(sim.pool.Slots)),
		zap.Int("patients", len(sim.pool.Patients)),
	)

	sim.RunRaces()
	sim.Run()
	sim.PrintReport()
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 {
		return fmt.Errorf("SIM_PATIENTS must be > 0")
	}
	return nil
}

func normalizeRatios(cfg *SimConfig) {
	total := cfg.BookingRatio + cfg.ChangeRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ChangeRatio /= total
		cfg.ReadRatio /= total
	}
}

// loadDataPool asks the API for each doctor's free slots over the horizon.
// Without SIM_DOCTOR_IDS every doctor in the directory takes part.
func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	pool := &DataPool{}

	from := s.config.From
	if from == "" {
		from = timegrid.DateOf(time.Now()).String()
	}

	ids := s.config.DoctorIDs
	if len(ids) == 0 {
		var directory api.DoctorListResponse
		url := s.config.APIBaseURL + "/doctors"
		if status, err := s.getJSON(ctx, url, &directory); err != nil || status != http.StatusOK {
			return nil, fmt.Errorf("list doctors: status=%d err=%v", status, err)
		}
		for _, d := range directory.Doctors {
			ids = append(ids, d.ID.String())
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("no doctors registered; seed some or set SIM_DOCTOR_IDS")
		}
	}

	for _, raw := range ids {
		doctorID, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("doctor id %q: %w", raw, err)
		}
		pool.Doctors = append(pool.Doctors, doctorID)

		url := fmt.Sprintf("%s/doctors/%s/slots/horizon?from=%s&days=%d", s.config.APIBaseURL, doctorID, from, s.config.Days)
		var horizon api.HorizonResponse
		if status, err := s.getJSON(ctx, url, &horizon); err != nil || status != http.StatusOK {
			return nil, fmt.Errorf("horizon for %s: status=%d err=%v", doctorID, status, err)
		}
		for _, slot := range horizon.Slots {
			pool.Slots = append(pool.Slots, poolSlot{DoctorID: doctorID, Slot: slot})
		}
	}

	for i := 0; i < s.config.Patients; i++ {
		pool.Patients = append(pool.Patients, uuid.New())
	}

	if len(pool.Slots) == 0 {
		return nil, fmt.Errorf("no free slots in the next %d days", s.config.Days)
	}
	return pool, nil
}

// RunRaces fires RaceCallers concurrent creates at each of RaceSlots free
// slots. Exactly one of them should win every time.
func (s *Simulator) RunRaces() {
	n := s.config.RaceSlots
	if n > len(s.pool.Slots) {
		n = len(s.pool.Slots)
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	picks := rng.Perm(len(s.pool.Slots))[:n]

	for _, idx := range picks {
		target := s.pool.Slots[idx]
		result := RaceResult{Slot: target}

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			start = make(chan struct{})
		)
		for i := 0; i < s.config.RaceCallers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				status, id := s.createAppointment(context.Background(), target, uuid.New())

				mu.Lock()
				defer mu.Unlock()
				switch status {
				case http.StatusCreated:
					result.Winners++
					s.pool.AddAppointment(id)
				case http.StatusConflict:
					result.Conflicts++
				default:
					result.Errors++
				}
			}()
		}
		close(start)
		wg.Wait()

		if result.Winners != 1 {
			s.logger.Error("race produced wrong number of winners",
				zap.Stringer("doctor_id", target.DoctorID),
				zap.Stringer("date", target.Slot.Date),
				zap.Stringer("time", target.Slot.Time),
				zap.Int("winners", result.Winners),
			)
		}
		s.races = append(s.races, result)
	}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.ChangeRatio:
			switch rng.Intn(3) {
			case 0:
				s.doReschedule(ctx, rng)
			case 1:
				s.doTransition(ctx, rng, "cancel", &s.metrics.Cancel)
			case 2:
				s.doTransition(ctx, rng, "complete", &s.metrics.Complete)
			}
		default:
			switch rng.Intn(4) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListByPatient(ctx, rng)
			case 2:
				s.doDoctorAgenda(ctx, rng)
			case 3:
				s.doDaySlots(ctx, rng)
			}
		}
	}
}

func (s *Simulator) randomSlot(rng *rand.Rand) poolSlot {
	return s.pool.Slots[rng.Intn(len(s.pool.Slots))]
}

func (s *Simulator) randomPatient(rng *rand.Rand) uuid.UUID {
	return s.pool.Patients[rng.Intn(len(s.pool.Patients))]
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	status, id := s.createAppointment(ctx, s.randomSlot(rng), s.randomPatient(rng))
	if status == http.StatusCreated {
		s.pool.AddAppointment(id)
	}
	s.metrics.Booking.Record(time.Since(start), status)
}

func (s *Simulator) createAppointment(ctx context.Context, target poolSlot, patientID uuid.UUID) (int, int64) {
	body := api.CreateAppointmentRequest{
		PatientID: patientID.String(),
		DoctorID:  target.DoctorID.String(),
		Date:      target.Slot.Date.String(),
		Time:      target.Slot.Time.String(),
		Reason:    "load test",
	}
	var created api.AppointmentResponse
	status, err := s.postJSON(ctx, s.config.APIBaseURL+"/appointments", body, &created)
	if err != nil {
		return 0, 0
	}
	return status, created.ID
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	target := s.randomSlot(rng)

	start := time.Now()
	status, _ := s.postJSON(ctx, fmt.Sprintf("%s/appointments/%d/reschedule", s.config.APIBaseURL, id),
		api.RescheduleRequest{Date: target.Slot.Date.String(), Time: target.Slot.Time.String()}, nil)
	s.metrics.Reschedule.Record(time.Since(start), status)
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _ := s.postJSON(ctx, fmt.Sprintf("%s/appointments/%d/%s", s.config.APIBaseURL, id, action), nil, nil)
	om.Record(time.Since(start), status)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, _ := s.getJSON(ctx, fmt.Sprintf("%s/appointments/%d", s.config.APIBaseURL, id), nil)
	s.metrics.ReadByID.Record(time.Since(start), status)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	status, _ := s.getJSON(ctx, fmt.Sprintf("%s/appointments?patient_id=%s&limit=20&offset=0",
		s.config.APIBaseURL, s.randomPatient(rng)), nil)
	s.metrics.ListByPatient.Record(time.Since(start), status)
}

// doDoctorAgenda reads one doctor's pending appointments for one day.
func (s *Simulator) doDoctorAgenda(ctx context.Context, rng *rand.Rand) {
	target := s.randomSlot(rng)
	start := time.Now()
	status, _ := s.getJSON(ctx, fmt.Sprintf("%s/appointments?doctor_id=%s&date=%s&status=pending",
		s.config.APIBaseURL, target.DoctorID, target.Slot.Date), nil)
	s.metrics.DoctorAgenda.Record(time.Since(start), status)
}

func (s *Simulator) doDaySlots(ctx context.Context, rng *rand.Rand) {
	target := s.randomSlot(rng)

	start := time.Now()
	status, _ := s.getJSON(ctx, fmt.Sprintf("%s/doctors/%s/slots?date=%s",
		s.config.APIBaseURL, target.DoctorID, target.Slot.Date), nil)
	s.metrics.DaySlots.Record(time.Since(start), status)
}

func (s *Simulator) postJSON(ctx context.Context, url string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *Simulator) getJSON(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	return s.do(req, out)
}

func (s *Simulator) do(req *http.Request, out any) (int, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	if len(s.races) > 0 {
		fmt.Println("Slot races:")
		clean := 0
		for _, r := range s.races {
			fmt.Printf("  %s %s %s: winners=%d conflicts=%d errors=%d\n",
				r.Slot.DoctorID, r.Slot.Slot.Date, r.Slot.Slot.Time, r.Winners, r.Conflicts, r.Errors)
			if r.Winners == 1 {
				clean++
			}
		}
		fmt.Printf("  %d/%d races had exactly one winner\n\n", clean, len(s.races))
	}

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Complete", &s.metrics.Complete)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("Doctor Agenda", &s.metrics.DoctorAgenda)
	printOperationReport("Day slots", &s.metrics.DaySlots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}
