package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hackgods/dental-practice-portal/internal/appointment"
	"github.com/hackgods/dental-practice-portal/internal/config"
	"github.com/hackgods/dental-practice-portal/internal/db"
	"github.com/hackgods/dental-practice-portal/internal/events"
	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/metrics"
	redisclient "github.com/hackgods/dental-practice-portal/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().WithError(err).Fatal("config load error")
	}

	logger := logging.New(cfg.LogLevel)
	log := logger.WithComponent("noshow-worker")
	log.WithFields(logrus.Fields{
		"env":      cfg.Env,
		"interval": cfg.WorkerInterval.String(),
		"grace":    cfg.NoShowGrace.String(),
	}).Info("noshow-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.WithError(err).Fatal("postgres connection error")
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		log.WithError(err).Fatal("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("error closing redis")
		}
	}()

	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		events.NewOutboxStore(pgPool),
		metrics.New(nil),
		logger,
		cfg,
	)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping noshow worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, log *logrus.Entry) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.SweepNoShows(runCtx)
	if err != nil {
		log.WithError(err).Error("no-show sweep failed")
		return
	}
	log.WithField("marked", n).WithField("duration_ms", time.Since(start).Milliseconds()).Info("no-show sweep complete")
}
