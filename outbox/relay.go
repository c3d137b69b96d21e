package outbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultBatchSize   = 100
	DefaultMaxAttempts = 10
)

// Relay drains the outbox into a Publisher on a fixed interval.
type Relay struct {
	store       Store
	publisher   Publisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      *zap.Logger
}

func NewRelay(store Store, publisher Publisher, interval time.Duration, batchSize, maxAttempts int, logger *zap.Logger) *Relay {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		store:       store,
		publisher:   publisher,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Run processes batches until ctx is done. A full batch is followed
// immediately by another pass.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		stats, err := r.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("outbox pass failed", zap.Error(err))
		}
		if err == nil && stats.Claimed == r.batchSize {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Relay) RunOnce(ctx context.Context) (Stats, error) {
	stats, err := r.store.Process(ctx, r.batchSize, r.maxAttempts, func(ctx context.Context, msg Message) error {
		if err := r.publisher.Publish(ctx, msg); err != nil {
			r.logger.Warn("outbox publish failed",
				zap.String("outbox_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	if stats.Dead > 0 {
		r.logger.Error("outbox messages dead-lettered", zap.Int("count", stats.Dead))
	}
	if stats.Claimed > 0 {
		r.logger.Debug("outbox pass",
			zap.Int("claimed", stats.Claimed),
			zap.Int("published", stats.Published),
			zap.Int("failed", stats.Failed))
	}
	return stats, nil
}
