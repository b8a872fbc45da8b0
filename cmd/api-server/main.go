package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hackgods/dental-practice-portal/internal/api"
	"github.com/hackgods/dental-practice-portal/internal/appointment"
	"github.com/hackgods/dental-practice-portal/internal/billing"
	"github.com/hackgods/dental-practice-portal/internal/config"
	"github.com/hackgods/dental-practice-portal/internal/db"
	"github.com/hackgods/dental-practice-portal/internal/events"
	"github.com/hackgods/dental-practice-portal/internal/inventory"
	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/metrics"
	"github.com/hackgods/dental-practice-portal/internal/mfa"
	"github.com/hackgods/dental-practice-portal/internal/patient"
	redisclient "github.com/hackgods/dental-practice-portal/internal/redis"
	"github.com/hackgods/dental-practice-portal/internal/scheduling"
)

var version = "dev"

// backupExportTTL bounds how long a generated code sheet can still be downloaded.
const backupExportTTL = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().WithError(err).Fatal("config load error")
	}

	logger := logging.New(cfg.LogLevel)
	log := logger.WithComponent("api-server")
	log.WithField("env", cfg.Env).WithField("http_port", cfg.HTTPPort).Info("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.WithError(err).Fatal("postgres connection error")
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		log.WithError(err).Fatal("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("error closing redis")
		}
	}()
	log.Info("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	outbox := events.NewOutboxStore(pgPool)

	appointments := appointment.NewService(appointment.NewPgRepository(pgPool), locker, outbox, m, logger, cfg)
	slots, err := scheduling.NewService(appointments, cfg, time.UTC)
	if err != nil {
		log.WithError(err).Fatal("scheduling config error")
	}

	router := api.NewRouter(api.RouterConfig{
		Appointments: appointments,
		Patients:     patient.NewService(patient.NewPgRepository(pgPool), outbox, logger),
		Slots:        slots,
		Billing:      billing.NewService(billing.NewPgRepository(pgPool), locker, m, logger),
		Inventory:    inventory.NewService(inventory.NewPgRepository(pgPool), m, logger, cfg.LowStockThreshold),
		MFA:          mfa.NewService(mfa.NewPgRepository(pgPool), mfa.NewRedisPendingExports(rdb, backupExportTTL), logger, cfg.BackupCodeCount),
		Metrics:      m,
		Logger:       logger,
		Postgres:     pgPool,
		Redis:        api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("http server failed")
			os.Exit(1)
		}
	}

	log.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
