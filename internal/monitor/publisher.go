package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/couchcryptid/tsunami-playback-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second

	// finalFlushTimeout bounds the last write attempted during shutdown.
	finalFlushTimeout = 2 * time.Second
)

// BatchLoader writes multiple station statuses to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, statuses []domain.StationStatus) error
}

// Publisher batches status changes from the monitor into a BatchLoader.
// A batch is written when it reaches batchSize or when the flush interval
// elapses, whichever comes first. Failed writes are retried with exponential
// backoff.
type Publisher struct {
	in            <-chan domain.StationStatus
	loader        BatchLoader
	logger        *slog.Logger
	metrics       *observability.Metrics
	clock         clockwork.Clock
	batchSize     int
	flushInterval time.Duration

	running  atomic.Bool
	degraded atomic.Bool
}

// NewPublisher creates a Publisher reading from in.
func NewPublisher(in <-chan domain.StationStatus, loader BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, flushInterval time.Duration, clock clockwork.Clock) *Publisher {
	if batchSize <= 0 {
		batchSize = 1
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Publisher{
		in:            in,
		loader:        loader,
		logger:        logger,
		metrics:       metrics,
		clock:         clock,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// CheckReadiness returns nil while the publisher is running and its last
// write succeeded.
func (p *Publisher) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("status publisher is not running")
	}
	if p.degraded.Load() {
		return errors.New("status publisher cannot reach its sink")
	}
	return nil
}

// Run consumes status changes until ctx is cancelled or the input channel
// is closed. Pending statuses get one final write attempt on the way out.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("status publisher started", "batch_size", p.batchSize, "flush_interval", p.flushInterval)
	p.running.Store(true)
	defer p.running.Store(false)

	ticker := p.clock.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.StationStatus, 0, p.batchSize)
	for {
		select {
		case <-ctx.Done():
			p.finalFlush(ctx, batch)
			p.logger.Info("status publisher stopping", "reason", ctx.Err())
			return nil
		case s, ok := <-p.in:
			if !ok {
				p.finalFlush(ctx, batch)
				return nil
			}
			batch = append(batch, s)
			if len(batch) < p.batchSize {
				continue
			}
		case <-ticker.Chan():
			if len(batch) == 0 {
				continue
			}
		}

		if !p.publish(ctx, batch) {
			p.finalFlush(ctx, batch)
			return nil
		}
		batch = make([]domain.StationStatus, 0, p.batchSize)
	}
}

// publish writes batch, retrying with backoff until it succeeds. Returns
// false if ctx was cancelled first.
func (p *Publisher) publish(ctx context.Context, batch []domain.StationStatus) bool {
	backoff := initialBackoff
	for {
		err := p.loader.LoadBatch(ctx, batch)
		if err == nil {
			p.metrics.StatusesPublished.Add(float64(len(batch)))
			p.metrics.PublishBatchSize.Observe(float64(len(batch)))
			if p.degraded.Swap(false) {
				p.logger.Info("status publishing recovered")
			}
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		p.metrics.PublishErrors.Inc()
		p.degraded.Store(true)
		p.logger.Error("publish status batch failed", "error", err, "batch_size", len(batch), "retry_in", backoff)

		if !sleepWithContext(ctx, p.clock, backoff) {
			return false
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func (p *Publisher) finalFlush(ctx context.Context, batch []domain.StationStatus) {
	if len(batch) == 0 {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
	defer cancel()
	if err := p.loader.LoadBatch(flushCtx, batch); err != nil {
		p.metrics.PublishErrors.Inc()
		p.logger.Warn("final status flush failed", "error", err, "batch_size", len(batch))
		return
	}
	p.metrics.StatusesPublished.Add(float64(len(batch)))
	p.metrics.PublishBatchSize.Observe(float64(len(batch)))
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
