package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andreasstove999/agroflow-system/internal/contracts"
)

type RelayConfig struct {
	Interval time.Duration
	// Grace leaves fresh entries to the request path that created them.
	Grace time.Duration
	Batch int
}

// OutboxRelay republishes harvest-created events whose publication after
// commit did not complete.
type OutboxRelay struct {
	store     OutboxStore
	publisher EventPublisher
	cfg       RelayConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewOutboxRelay(store OutboxStore, publisher EventPublisher, cfg RelayConfig, logger *zap.Logger) *OutboxRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	return &OutboxRelay{store: store, publisher: publisher, cfg: cfg, logger: logger, now: time.Now}
}

// Run flushes the outbox every interval until ctx is done.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox flush", zap.Error(err))
			}
		}
	}
}

// Flush publishes one batch of pending entries, oldest first, and returns how
// many were published. It stops at the first publish failure so ordering is
// preserved for the next round.
func (r *OutboxRelay) Flush(ctx context.Context) (int, error) {
	entries, err := r.store.PendingOutbox(ctx, r.now().Add(-r.cfg.Grace), r.cfg.Batch)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, e := range entries {
		log := r.logger.With(zap.Int64("outbox_id", e.ID), zap.Int64("harvest_id", e.HarvestID), zap.Int("attempts", e.Attempts))

		ev, err := contracts.DecodeHarvestCreated(e.Payload)
		if err != nil {
			// Unpublishable; mark it so it stops blocking the queue.
			log.Error("drop invalid outbox payload", zap.Error(err))
			if err := r.store.MarkOutboxPublished(ctx, e.ID); err != nil {
				return published, err
			}
			continue
		}

		if err := r.publisher.PublishHarvestCreated(ctx, ev); err != nil {
			log.Warn("republish harvest created", zap.Error(err))
			if rerr := r.store.RecordOutboxFailure(ctx, e.ID, err.Error()); rerr != nil {
				log.Warn("record outbox failure", zap.Error(rerr))
			}
			return published, nil
		}
		if err := r.store.MarkOutboxPublished(ctx, e.ID); err != nil {
			return published, err
		}
		published++
		log.Info("outbox entry republished")
	}
	return published, nil
}
