package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-practice-portal/internal/logging"
	"github.com/hackgods/dental-practice-portal/internal/metrics"
)

type relayStore interface {
	FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// Relay drains the outbox into a Publisher.
type Relay struct {
	store     relayStore
	publisher Publisher
	logger    *logging.Logger
	metrics   *metrics.Metrics
	batchSize int32
}

func NewRelay(store relayStore, publisher Publisher, logger *logging.Logger, m *metrics.Metrics, batchSize int) *Relay {
	if logger == nil {
		logger = logging.Default()
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		batchSize: int32(batchSize),
	}
}

// RunOnce publishes one batch and returns how many entries were delivered.
// A failed publish is counted on the row and retried on the next run.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	entries, err := r.store.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox: %w", err)
	}

	delivered := 0
	for _, entry := range entries {
		err := r.publisher.Publish(ctx, entry.Envelope)
		r.metrics.ObserveRelay(entry.Envelope.EventType, err)
		if err != nil {
			r.logger.WithError(err).WithField("outbox_id", entry.ID).Warn("publish failed")
			if mErr := r.store.MarkFailed(ctx, entry.ID); mErr != nil {
				r.logger.WithError(mErr).WithField("outbox_id", entry.ID).Error("mark failed")
			}
			// keep per-aggregate order: stop at the first failure
			break
		}
		if _, err := r.store.MarkDelivered(ctx, entry.ID); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.WithError(err).Error("relay run failed")
		} else if n > 0 {
			r.logger.WithField("delivered", n).Info("relayed outbox batch")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
