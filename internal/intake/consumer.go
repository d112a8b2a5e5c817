// Package intake consumes confirmed purchase events from a Redis list.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"matrix/internal/domain"
	"matrix/internal/metrics"
	"matrix/internal/purchase"
	pkgerrors "matrix/pkg/errors"
	"matrix/pkg/logger"
)

// Queue is the part of the go-redis client the consumer uses.
type Queue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Locker guards an event id while one worker processes it.
type Locker interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Increment(ctx context.Context, key string, expiration time.Duration) (int64, error)
}

type Processor interface {
	Purchase(ctx context.Context, event *domain.PurchaseEvent) (*purchase.Result, error)
}

type Options struct {
	Queue            string
	DeadLetterQueue  string
	PollTimeout      time.Duration
	ClaimTTL         time.Duration
	MaxRetryAttempts int
	RetryDelay       time.Duration
}

// deadLetter wraps the raw payload with the reason it was parked.
type deadLetter struct {
	Payload  json.RawMessage `json:"payload"`
	Reason   string          `json:"reason"`
	Attempts int64           `json:"attempts,omitempty"`
	FailedAt time.Time       `json:"failed_at"`
}

type Consumer struct {
	queue     Queue
	locker    Locker
	processor Processor
	metrics   *metrics.EngineMetrics
	logger    logger.Logger
	opts      Options
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewConsumer(queue Queue, locker Locker, processor Processor, m *metrics.EngineMetrics, log logger.Logger, opts Options) *Consumer {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 2 * time.Minute
	}
	if opts.MaxRetryAttempts <= 0 {
		opts.MaxRetryAttempts = 1
	}
	return &Consumer{
		queue:     queue,
		locker:    locker,
		processor: processor,
		metrics:   m,
		logger:    log,
		opts:      opts,
		stop:      make(chan struct{}),
	}
}

// Run pops events until ctx is cancelled or Stop is called.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Purchase intake started", map[string]interface{}{
		"queue": c.opts.Queue,
	})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			c.logger.Info("Purchase intake stopped", nil)
			return nil
		default:
		}

		if err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("Intake poll failed", map[string]interface{}{"error": err.Error()})
			select {
			case <-time.After(c.opts.PollTimeout):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Poll waits up to the poll timeout for one event and handles it.
func (c *Consumer) Poll(ctx context.Context) error {
	res, err := c.queue.BLPop(ctx, c.opts.PollTimeout, c.opts.Queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pop %s: %w", c.opts.Queue, err)
	}
	if len(res) != 2 {
		return fmt.Errorf("unexpected BLPOP reply of %d elements", len(res))
	}
	return c.Handle(ctx, []byte(res[1]))
}

// Handle processes one raw event payload.
func (c *Consumer) Handle(ctx context.Context, payload []byte) error {
	var event domain.PurchaseEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.metrics.RecordIntake("malformed")
		return c.park(ctx, payload, fmt.Sprintf("decode: %v", err), 0)
	}

	if event.EventID == uuid.Nil {
		c.metrics.RecordIntake("malformed")
		return c.park(ctx, payload, "missing event_id", 0)
	}

	claimKey := "matrix:inflight:" + event.EventID.String()
	claimed, err := c.locker.Claim(ctx, claimKey, c.opts.ClaimTTL)
	if err != nil {
		return fmt.Errorf("claim event %s: %w", event.EventID, err)
	}
	if !claimed {
		// Held by another worker. The copy is acked as a duplicate once that one commits.
		c.metrics.RecordIntake("in_flight")
		c.logger.Warn("Event already in flight, requeueing", map[string]interface{}{
			"event_id": event.EventID.String(),
		})
		return c.requeue(ctx, payload)
	}
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			if err := c.locker.Release(context.WithoutCancel(ctx), claimKey); err != nil {
				c.logger.Warn("Failed to release event claim", map[string]interface{}{
					"event_id": event.EventID.String(),
					"error":    err.Error(),
				})
			}
		})
	}
	defer release()

	_, err = c.processor.Purchase(ctx, &event)
	switch {
	case err == nil:
		c.metrics.RecordIntake("processed")
		return nil
	case pkgerrors.Is(err, pkgerrors.ErrEventAlreadyProcessed):
		c.metrics.RecordIntake("duplicate")
		return nil
	case pkgerrors.IsFatal(err):
		c.metrics.RecordIntake("fatal")
		c.logger.Error("Fatal placement error, event parked", map[string]interface{}{
			"event_id": event.EventID.String(),
			"error":    err.Error(),
		})
		return c.park(ctx, payload, err.Error(), 0)
	case isRejection(err):
		c.metrics.RecordIntake("rejected")
		return c.park(ctx, payload, err.Error(), 0)
	default:
		return c.retry(ctx, &event, payload, err, release)
	}
}

// isRejection reports errors that will not go away by retrying the same event.
func isRejection(err error) bool {
	for _, target := range []error{
		pkgerrors.ErrInvalidTier,
		pkgerrors.ErrInvalidAmount,
		pkgerrors.ErrParticipantNotFound,
		pkgerrors.ErrTierAlreadyOwned,
		pkgerrors.ErrPreviousTierRequired,
		pkgerrors.ErrInsufficientBalance,
	} {
		if pkgerrors.Is(err, target) {
			return true
		}
	}
	return false
}

// retry requeues a transiently failed event, or parks it once attempts run
// out. The claim is released before the push so the next worker can take it.
func (c *Consumer) retry(ctx context.Context, event *domain.PurchaseEvent, payload []byte, cause error, release func()) error {
	attempts, err := c.locker.Increment(ctx, "matrix:attempts:"+event.EventID.String(), 24*time.Hour)
	if err != nil {
		return fmt.Errorf("count attempts for %s: %w", event.EventID, err)
	}
	if attempts >= int64(c.opts.MaxRetryAttempts) {
		c.metrics.RecordIntake("exhausted")
		return c.park(ctx, payload, cause.Error(), attempts)
	}

	c.metrics.RecordIntake("retried")
	c.logger.Warn("Purchase failed, requeueing", map[string]interface{}{
		"event_id": event.EventID.String(),
		"attempt":  attempts,
		"error":    cause.Error(),
	})
	release()
	return c.requeue(ctx, payload)
}

// requeue pushes payload back onto the intake queue after the retry delay.
func (c *Consumer) requeue(ctx context.Context, payload []byte) error {
	select {
	case <-time.After(c.opts.RetryDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.queue.RPush(ctx, c.opts.Queue, payload).Err()
}

func (c *Consumer) park(ctx context.Context, payload []byte, reason string, attempts int64) error {
	raw := json.RawMessage(payload)
	if !json.Valid(payload) {
		raw, _ = json.Marshal(string(payload))
	}
	data, err := json.Marshal(deadLetter{
		Payload:  raw,
		Reason:   reason,
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	c.logger.Warn("Event moved to dead-letter queue", map[string]interface{}{
		"queue":  c.opts.DeadLetterQueue,
		"reason": reason,
	})
	return c.queue.RPush(ctx, c.opts.DeadLetterQueue, data).Err()
}
