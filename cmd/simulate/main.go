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
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/medtest-appointment-scheduling/internal/api"
	"github.com/hackgods/medtest-appointment-scheduling/internal/config"
	"github.com/hackgods/medtest-appointment-scheduling/internal/db"
	"github.com/hackgods/medtest-appointment-scheduling/internal/logging"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	ReadRatio     float64
	PatientLimit  int
	HospitalLimit int
	Days          int
	PostgresDSN   string
	JWTSecret     string
	Policy        scheduling.Policy
}

type patient struct {
	identity api.Identity
	token    string
}

type bookable struct {
	HospitalID uuid.UUID
	TestID     uuid.UUID
}

type DataPool struct {
	Patients []patient
	Tests    []bookable
	Dates    []string
}

// Outcomes of a booking request, as reported in the summary.
const (
	outcomeCreated    = "created"
	outcomeConflict   = "conflict"
	outcomeInProgress = "in_progress"
	outcomeRejected   = "rejected"
	outcomeError      = "error"
)

type OperationMetrics struct {
	Total     int64
	mu        sync.Mutex
	outcomes  map[string]int64
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, outcome string) {
	atomic.AddInt64(&om.Total, 1)

	om.mu.Lock()
	defer om.mu.Unlock()
	if om.outcomes == nil {
		om.outcomes = make(map[string]int64)
	}
	om.outcomes[outcome]++
	om.latencies = append(om.latencies, latency)
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	max = latencies[len(latencies)-1]
	return avg, p50, p95, max
}

type Metrics struct {
	Booking      OperationMetrics
	Availability OperationMetrics
	ListMine     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.Component(logging.New(baseCfg.LogLevel, baseCfg.Env), "simulate")

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking_ratio", cfg.BookingRatio).
		Float64("read_ratio", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, baseCfg.DBMaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg, time.Now())
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("tests", len(dataPool.Tests)).
		Strs("dates", dataPool.Dates).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	verifyCtx, verifyCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer verifyCancel()
	violations, err := verifyNoOverlaps(verifyCtx, pgPool, dataPool.Dates, cfg.Policy.DefaultDuration)
	if err != nil {
		logger.Fatal().Err(err).Msg("verify bookings")
	}
	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Println("  OVERLAP:", v)
		}
		logger.Fatal().Int("violations", len(violations)).Msg("double booking detected")
	}
	fmt.Println("Verification: no overlapping active bookings")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 20),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.7),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 500),
		HospitalLimit: getInt("SIM_HOSPITAL_LIMIT", 3),
		Days:          getInt("SIM_DAYS", 2),
		PostgresDSN:   base.PostgresDSN,
		JWTSecret:     base.JWTSecret,
		Policy:        base.Policy,
	}

	total := cfg.BookingRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required to sign patient tokens")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

// upcomingDates returns the next n dates after from that fall on an allowed weekday.
func upcomingDates(policy scheduling.Policy, from time.Time, n int) []string {
	allowed := make(map[time.Weekday]bool, len(policy.AllowedDays))
	for _, d := range policy.AllowedDays {
		allowed[d] = true
	}

	var dates []string
	day := from.AddDate(0, 0, 1)
	for len(dates) < n && len(allowed) > 0 {
		if allowed[day.Weekday()] && day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
			dates = append(dates, day.Format(time.DateOnly))
		}
		day = day.AddDate(0, 0, 1)
	}
	return dates
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, now time.Time) (*DataPool, error) {
	dataPool := &DataPool{Dates: upcomingDates(cfg.Policy, now, cfg.Days)}
	if len(dataPool.Dates) == 0 {
		return nil, fmt.Errorf("no bookable weekdays in policy")
	}

	auth := api.NewAuthenticator(cfg.JWTSecret)

	rows, err := pool.Query(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, '')
		FROM users
		WHERE role = 'patient'
		LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		id := api.Identity{Role: api.RolePatient}
		if err := rows.Scan(&id.UserID, &id.Name, &id.Phone, &id.Email); err != nil {
			rows.Close()
			return nil, err
		}
		token, err := auth.SignToken(id, cfg.Duration+time.Hour)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sign token: %w", err)
		}
		dataPool.Patients = append(dataPool.Patients, patient{identity: id, token: token})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// A handful of hospitals keeps contention high, which is the point.
	rows, err = pool.Query(ctx, `
		SELECT t.hospital_id, t.id
		FROM medical_tests t
		WHERE t.is_available
		  AND t.hospital_id IN (
			SELECT id FROM hospitals WHERE is_active ORDER BY name LIMIT $1
		  )
	`, cfg.HospitalLimit)
	if err != nil {
		return nil, fmt.Errorf("load tests: %w", err)
	}
	for rows.Next() {
		var b bookable
		if err := rows.Scan(&b.HospitalID, &b.TestID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Tests = append(dataPool.Tests, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Tests) == 0 {
		return nil, fmt.Errorf("no medical tests loaded")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if rng.Float64() < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if rng.Intn(2) == 0 {
				s.doAvailability(ctx, rng)
			} else {
				s.doListMine(ctx, rng)
			}
		}
	}
}

func (s *Simulator) randomSlot(rng *rand.Rand) string {
	p := s.config.Policy
	steps := (p.Close - p.Open) / p.Step
	return scheduling.FormatSlot(p.Open + rng.Intn(steps)*p.Step)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	pt := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	target := s.pool.Tests[rng.Intn(len(s.pool.Tests))]

	body, _ := json.Marshal(api.CreateAppointmentRequest{
		HospitalID:      target.HospitalID.String(),
		TestID:          target.TestID.String(),
		AppointmentDate: s.pool.Dates[rng.Intn(len(s.pool.Dates))],
		TimeSlot:        s.randomSlot(rng),
	})

	start := time.Now()
	status, code, err := s.call(ctx, http.MethodPost, "/appointments", pt.token, body)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	outcome := outcomeError
	switch {
	case err != nil:
	case status == http.StatusCreated:
		outcome = outcomeCreated
	case status == http.StatusConflict && code == "booking_in_progress":
		outcome = outcomeInProgress
	case status == http.StatusConflict:
		outcome = outcomeConflict
	case status == http.StatusBadRequest:
		outcome = outcomeRejected
	}
	s.metrics.Booking.Record(latency, outcome)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	pt := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	target := s.pool.Tests[rng.Intn(len(s.pool.Tests))]
	path := fmt.Sprintf("/appointments/availability?hospital_id=%s&test_id=%s&date=%s",
		target.HospitalID, target.TestID, s.pool.Dates[rng.Intn(len(s.pool.Dates))])

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet, path, pt.token, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Availability.Record(time.Since(start), readOutcome(status, err))
}

func (s *Simulator) doListMine(ctx context.Context, rng *rand.Rand) {
	pt := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet, "/appointments/my", pt.token, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ListMine.Record(time.Since(start), readOutcome(status, err))
}

func readOutcome(status int, err error) string {
	if err == nil && status == http.StatusOK {
		return "ok"
	}
	return outcomeError
}

// call returns the HTTP status and, for error responses, the error code from the body.
func (s *Simulator) call(ctx context.Context, method, path, token string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		return resp.StatusCode, "", nil
	}
	var errResp api.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	return resp.StatusCode, errResp.Error, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Dates: %s\n\n", strings.Join(s.pool.Dates, ", "))

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("My appointments", &s.metrics.ListMine)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	om.mu.Lock()
	keys := make([]string, 0, len(om.outcomes))
	for k := range om.outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	counts := make([]int64, len(keys))
	for i, k := range keys {
		counts[i] = om.outcomes[k]
	}
	om.mu.Unlock()

	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	for i, k := range keys {
		fmt.Printf("  %s: %d (%.1f%%)\n", k, counts[i], float64(counts[i])/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
