package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackgods/dental-practice-portal/internal/config"
	"github.com/hackgods/dental-practice-portal/internal/db"
	"github.com/hackgods/dental-practice-portal/internal/events"
	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().WithError(err).Fatal("config load error")
	}

	logger := logging.New(cfg.LogLevel)
	log := logger.WithComponent("event-relay")
	log.WithField("brokers", cfg.KafkaBrokers).WithField("topic", cfg.KafkaTopic).Info("event-relay starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.WithError(err).Fatal("postgres connection error")
	}
	defer pgPool.Close()

	publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.WithError(err).Warn("error closing kafka writer")
		}
	}()

	m := metrics.New(prometheus.NewRegistry())
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("metrics listener stopped")
		}
	}()

	relay := events.NewRelay(events.NewOutboxStore(pgPool), publisher, logger, m, cfg.RelayBatchSize)
	relay.Run(rootCtx, cfg.WorkerInterval)

	log.Info("shutting down event-relay")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
