package drain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shifohub/patient-comms/internal/outbound"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type queuedStore interface {
	ListQueued(ctx context.Context) ([]outbound.Message, error)
	Claim(ctx context.Context, id string) (bool, error)
}

type deliveryExecutor interface {
	Execute(ctx context.Context, msg *outbound.Message) error
}

type failureAlerter interface {
	DeliveryFailures(ctx context.Context, failed []string)
}

// Consumer flushes due scheduled outbound messages. Every tick it lists
// QUEUED messages (status filter only, no compound index needed), keeps
// the due ones, claims each and hands it to the delivery executor.
type Consumer struct {
	store    queuedStore
	executor deliveryExecutor
	alerter  failureAlerter
	logger   *logging.Logger
	interval time.Duration
	now      func() time.Time
}

// NewConsumer builds the drain consumer.
func NewConsumer(store queuedStore, executor deliveryExecutor, alerter failureAlerter, logger *logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Consumer{
		store:    store,
		executor: executor,
		alerter:  alerter,
		logger:   logger,
		interval: time.Minute,
		now:      time.Now,
	}
}

func (c *Consumer) WithInterval(d time.Duration) *Consumer {
	if d > 0 {
		c.interval = d
	}
	return c
}

func (c *Consumer) WithClock(now func() time.Time) *Consumer {
	c.now = now
	return c
}

// Run drains immediately, then on every interval tick until ctx ends.
func (c *Consumer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	c.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Drain(ctx)
		}
	}
}

// Drain runs one pass. Non-due messages are left for the next tick.
func (c *Consumer) Drain(ctx context.Context) {
	if c.store == nil || c.executor == nil {
		return
	}
	queued, err := c.store.ListQueued(ctx)
	if err != nil {
		c.logger.Error("queued fetch failed", "error", err)
		return
	}

	now := c.now()

	// Messages are independent of each other, so one slow chat must not hold
	// the rest of the pass past the next tick.
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
		failed    []string
	)
	for i := range queued {
		msg := &queued[i]
		if !msg.Due(now) {
			continue
		}
		claimed, err := c.store.Claim(ctx, msg.ID)
		if err != nil {
			c.logger.Error("claim failed", "error", err, "message_id", msg.ID)
			continue
		}
		if !claimed {
			// Another drain instance got there first.
			continue
		}
		wg.Add(1)
		go func(msg *outbound.Message) {
			defer wg.Done()
			if err := c.executor.Execute(ctx, msg); err != nil {
				c.logger.Error("scheduled delivery failed", "error", err, "message_id", msg.ID)
				mu.Lock()
				failed = append(failed, fmt.Sprintf("%s: %v", msg.ID, err))
				mu.Unlock()
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(msg)
	}
	wg.Wait()

	if delivered > 0 || len(failed) > 0 {
		c.logger.Info("drain pass finished", "delivered", delivered, "failed", len(failed))
	}
	if len(failed) > 0 && c.alerter != nil {
		c.alerter.DeliveryFailures(ctx, failed)
	}
}
