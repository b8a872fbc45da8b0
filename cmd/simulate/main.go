package main

import (
	"context"
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
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/dental-practice-portal/internal/api"
	"github.com/hackgods/dental-practice-portal/internal/billing"
	"github.com/hackgods/dental-practice-portal/internal/client"
	"github.com/hackgods/dental-practice-portal/internal/config"
	"github.com/hackgods/dental-practice-portal/internal/db"
	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/portal"
)

type SimConfig struct {
	APIBaseURL     string
	OrganizationID uuid.UUID
	Duration       time.Duration
	Workers        int
	BookingRatio   float64
	LifecycleRatio float64
	CancelRatio    float64
	ReadRatio      float64
	PatientLimit   int
	LogLevel       string
	PostgresDSN    string
}

type provider struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
}

type booked struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	PatientID uuid.UUID
	Start     time.Time
}

type DataPool struct {
	Providers []provider
	Locations map[uuid.UUID][]uuid.UUID // by clinic
	Patients  map[uuid.UUID][]uuid.UUID // by clinic

	mu           sync.Mutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

// TakeAppointment removes a random appointment so only one worker drives it.
func (dp *DataPool) TakeAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	idx := rng.Intn(len(dp.appointments))
	b := dp.appointments[idx]
	dp.appointments[idx] = dp.appointments[len(dp.appointments)-1]
	dp.appointments = dp.appointments[:len(dp.appointments)-1]
	return b, true
}

func (dp *DataPool) PeekAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
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

func (om *OperationMetrics) Record(latency time.Duration, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil:
		atomic.AddInt64(&om.Success, 1)
	case client.IsStatus(err, http.StatusConflict):
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, lo, hi, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	lo = latencies[0]
	hi = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, lo, hi, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking  OperationMetrics
	Confirm  OperationMetrics
	CheckIn  OperationMetrics
	Start    OperationMetrics
	Complete OperationMetrics
	Invoice  OperationMetrics
	Payment  OperationMetrics
	Cancel   OperationMetrics
	NoShow   OperationMetrics
	ReadByID OperationMetrics
	DayList  OperationMetrics
	History  OperationMetrics
}

// lastError captures what the dispatcher reported for the most recent action.
type lastError struct {
	err error
}

func (n *lastError) Success(string) { n.err = nil }

func (n *lastError) Error(_ string, err error) { n.err = err }

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *client.Client
	log     *logrus.Entry
	metrics Metrics
}

func main() {
	cfg := loadConfig()
	logger := logging.New(cfg.LogLevel)
	log := logger.WithComponent("simulate")

	if err := validateConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.WithFields(logrus.Fields{
		"duration":  cfg.Duration.String(),
		"workers":   cfg.Workers,
		"booking":   cfg.BookingRatio,
		"lifecycle": cfg.LifecycleRatio,
		"cancel":    cfg.CancelRatio,
		"read":      cfg.ReadRatio,
	}).Info("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pgPool.Close()

	if cfg.OrganizationID == uuid.Nil {
		if err := pgPool.QueryRow(ctx, `SELECT id FROM organizations ORDER BY created_at LIMIT 1`).Scan(&cfg.OrganizationID); err != nil {
			log.WithError(err).Fatal("no organization to simulate against")
		}
	}

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.WithError(err).Fatal("load data pool")
	}

	log.WithField("organization_id", cfg.OrganizationID).
		WithField("providers", len(dataPool.Providers)).
		WithField("clinics", len(dataPool.Patients)).
		Info("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: client.NewClient(cfg.APIBaseURL, cfg.OrganizationID,
			client.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
			client.WithLogger(logger)),
		log: log,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		logging.Default().WithError(err).Fatal("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", baseCfg.APIBaseURL),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.4),
		LifecycleRatio: getFloat("SIM_LIFECYCLE_RATIO", 0.25),
		CancelRatio:    getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.25),
		PatientLimit:   getInt("SIM_PATIENT_LIMIT", 4000),
		LogLevel:       getEnv("SIM_LOG_LEVEL", "info"),
		PostgresDSN:    baseCfg.PostgresDSN,
	}
	if v := os.Getenv("SIM_ORGANIZATION_ID"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			cfg.OrganizationID = id
		}
	}

	total := cfg.BookingRatio + cfg.LifecycleRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.LifecycleRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{
		Locations: make(map[uuid.UUID][]uuid.UUID),
		Patients:  make(map[uuid.UUID][]uuid.UUID),
	}

	rows, err := pool.Query(ctx, `
		SELECT id, clinic_id FROM providers
		WHERE organization_id = $1 AND active
	`, cfg.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	for rows.Next() {
		var p provider
		if err := rows.Scan(&p.ID, &p.ClinicID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Providers = append(dataPool.Providers, p)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `
		SELECT l.id, l.clinic_id FROM locations l
		JOIN clinics c ON c.id = l.clinic_id
		WHERE c.organization_id = $1
	`, cfg.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}
	for rows.Next() {
		var id, clinicID uuid.UUID
		if err := rows.Scan(&id, &clinicID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Locations[clinicID] = append(dataPool.Locations[clinicID], id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `
		SELECT id, clinic_id FROM patients
		WHERE organization_id = $1 AND deleted_at IS NULL
		LIMIT $2
	`, cfg.OrganizationID, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id, clinicID uuid.UUID
		if err := rows.Scan(&id, &clinicID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients[clinicID] = append(dataPool.Patients[clinicID], id)
	}
	rows.Close()

	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers loaded")
	}
	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.WithField("workers", s.config.Workers).Info("simulation running")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	notes := &lastError{}
	d := portal.NewDispatcher(s.client, notes, nil,
		portal.WithStockClient(s.client), portal.WithPaymentClient(s.client))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.LifecycleRatio:
				s.doLifecycle(ctx, rng, d, notes)
			case r < s.config.BookingRatio+s.config.LifecycleRatio+s.config.CancelRatio:
				s.doCancelOrNoShow(ctx, rng, d, notes)
			default:
				s.doRead(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	p := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
	patients := s.pool.Patients[p.ClinicID]
	locations := s.pool.Locations[p.ClinicID]
	if len(patients) == 0 || len(locations) == 0 {
		return
	}

	day := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(14))
	slots, err := s.client.AvailableSlots(ctx, p.ID, day, 30*time.Minute)
	if err != nil || len(slots) == 0 {
		return
	}
	slot := slots[rng.Intn(len(slots))]
	patientID := patients[rng.Intn(len(patients))]

	start := time.Now()
	appt, err := s.client.BookAppointment(ctx, api.BookAppointmentRequest{
		ClinicID:    p.ClinicID,
		PatientID:   patientID,
		ProviderID:  p.ID,
		LocationID:  locations[rng.Intn(len(locations))],
		Start:       slot.Start,
		End:         slot.End,
		ServiceCode: "D1110",
	})
	s.metrics.Booking.Record(time.Since(start), err)
	if err == nil {
		s.pool.AddAppointment(booked{ID: appt.ID, ClinicID: appt.ClinicID, PatientID: appt.PatientID, Start: appt.Start})
	}
}

// doLifecycle walks one appointment through its visit and bills it.
func (s *Simulator) doLifecycle(ctx context.Context, rng *rand.Rand, d *portal.Dispatcher, notes *lastError) {
	b, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}

	steps := []struct {
		om  *OperationMetrics
		act func(context.Context, uuid.UUID) error
	}{
		{&s.metrics.Confirm, d.Confirm},
		{&s.metrics.CheckIn, d.CheckIn},
		{&s.metrics.Start, d.Start},
	}
	for _, step := range steps {
		start := time.Now()
		notes.err = nil
		err := step.act(ctx, b.ID)
		if err == nil {
			err = notes.err
		}
		step.om.Record(time.Since(start), err)
		if err != nil {
			return
		}
	}

	price := decimal.NewFromInt(int64(80 + rng.Intn(120)))
	start := time.Now()
	err := d.Complete(ctx, b.ID, api.CompleteAppointmentRequest{
		Procedures: []api.ProcedureRequest{{Code: "D1110", Description: "Adult prophylaxis", Price: price, Quantity: 1}},
	})
	s.metrics.Complete.Record(time.Since(start), err)
	if err != nil {
		return
	}

	start = time.Now()
	inv, err := s.client.CreateInvoice(ctx, api.CreateInvoiceRequest{
		ClinicID:      b.ClinicID,
		PatientID:     b.PatientID,
		AppointmentID: &b.ID,
		Items: []api.LineItemRequest{{
			ItemType:    string(billing.ItemTreatment),
			Code:        "D1110",
			Description: "Adult prophylaxis",
			Quantity:    1,
			UnitPrice:   price,
			TaxRate:     decimal.NewFromInt(8),
		}},
	})
	s.metrics.Invoice.Record(time.Since(start), err)
	if err != nil {
		return
	}

	alloc := billing.NewAllocator(inv.Balance)
	if rng.Intn(2) == 0 {
		half := inv.Balance.Div(decimal.NewFromInt(2)).Round(2)
		_ = alloc.SetAmount(0, half)
		alloc.Add()
		_ = alloc.SetAmount(1, inv.Balance.Sub(half))
		_ = alloc.SetMethod(1, billing.MethodCard)
		_ = alloc.SetReference(1, fmt.Sprintf("AUTH-%06d", rng.Intn(1000000)))
	}

	start = time.Now()
	notes.err = nil
	err = d.SubmitPayment(ctx, inv.ID, alloc)
	if err == nil {
		err = notes.err
	}
	s.metrics.Payment.Record(time.Since(start), err)
}

var cancelReasons = []string{"patient_request", "clinic_request", "illness", "scheduling_conflict", "other"}

func (s *Simulator) doCancelOrNoShow(ctx context.Context, rng *rand.Rand, d *portal.Dispatcher, notes *lastError) {
	b, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}

	notes.err = nil
	start := time.Now()
	if rng.Intn(4) == 0 {
		err := d.NoShow(ctx, b.ID)
		if err == nil {
			err = notes.err
		}
		s.metrics.NoShow.Record(time.Since(start), err)
		return
	}

	req := api.CancelAppointmentRequest{Reason: cancelReasons[rng.Intn(len(cancelReasons))]}
	if req.Reason == "other" {
		req.Notes = "simulated cancellation"
	}
	err := d.Cancel(ctx, b.ID, req)
	if err == nil {
		err = notes.err
	}
	s.metrics.Cancel.Record(time.Since(start), err)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.PeekAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	switch rng.Intn(3) {
	case 0:
		_, err := s.client.GetAppointment(ctx, b.ID)
		s.metrics.ReadByID.Record(time.Since(start), err)
	case 1:
		_, err := s.client.ListAppointments(ctx, b.ClinicID, b.Start)
		s.metrics.DayList.Record(time.Since(start), err)
	case 2:
		_, err := s.client.ListPatientAppointments(ctx, b.PatientID, 20, 0)
		s.metrics.History.Record(time.Since(start), err)
	}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Organization: %s\n", s.config.OrganizationID)
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Check in", &s.metrics.CheckIn)
	printOperationReport("Start", &s.metrics.Start)
	printOperationReport("Complete", &s.metrics.Complete)
	printOperationReport("Create invoice", &s.metrics.Invoice)
	printOperationReport("Payment", &s.metrics.Payment)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("No-show", &s.metrics.NoShow)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Day list", &s.metrics.DayList)
	printOperationReport("Patient history", &s.metrics.History)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, lo, hi, p50, p95 := om.Stats()

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
		avg.Round(time.Millisecond), lo.Round(time.Millisecond), hi.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

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
