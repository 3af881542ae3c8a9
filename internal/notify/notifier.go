// Package notify delivers deployment CloudEvents to a webhook asynchronously.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"flinkctl/internal/apperrors"
	"flinkctl/pkg/backoff"
	"flinkctl/pkg/circuitbreaker"
	"flinkctl/pkg/cloudevent"
)

// ErrBufferFull is returned when the queue is full and the event is dropped.
var ErrBufferFull = errors.New("notification buffer full, event dropped")

// ErrClosed is returned by Notify after Close.
var ErrClosed = errors.New("notifier is closed")

// Config holds notifier settings. Zero values use defaults.
type Config struct {
	URL        string        // webhook destination (required)
	SigningKey string        // HMAC key, empty = unsigned
	Timeout    time.Duration // per request (default: 10s)
	BufferSize int           // pending events (default: 100)
	Workers    int           // delivery goroutines (default: 2)
	MaxRetries int           // retries after the first attempt (default: 3)

	Backoff backoff.Config
	Breaker circuitbreaker.Config
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 100
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	return c
}

// MetricsRecorder is an optional interface for recording delivery metrics.
type MetricsRecorder interface {
	RecordNotifyDelivered(ctx context.Context, durationSeconds float64)
	RecordNotifyFailed(ctx context.Context)
	RecordNotifyDropped(ctx context.Context)
	RecordNotifyQueueSize(ctx context.Context, size int64)
}

// Stats holds delivery counters.
type Stats struct {
	QueueDepth   int
	Queued       int64
	Delivered    int64
	Failed       int64
	Dropped      int64
	RetriesTotal int64
	BreakersOpen int
}

// Notifier queues events in a bounded channel and delivers them from a
// worker pool with retries and a circuit breaker per destination host.
type Notifier struct {
	cfg      Config
	host     string
	queue    chan *cloudevent.CloudEvent
	sender   *cloudevent.Sender
	breakers *circuitbreaker.Registry
	logger   *zap.Logger
	metrics  MetricsRecorder

	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	retriesTotal atomic.Int64

	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	shutdown chan struct{}
}

// New validates cfg and starts the workers.
func New(cfg Config, logger *zap.Logger, metrics MetricsRecorder) (*Notifier, error) {
	cfg = cfg.withDefaults()
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.Validation("notify.url", fmt.Sprintf("invalid notification url %q", cfg.URL))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	n := &Notifier{
		cfg:      cfg,
		host:     u.Host,
		queue:    make(chan *cloudevent.CloudEvent, cfg.BufferSize),
		sender:   cloudevent.NewSender(cfg.Timeout),
		breakers: circuitbreaker.NewRegistry(cfg.Breaker),
		logger:   logger.With(zap.String("component", "notify"), zap.String("destination", u.Host)),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	n.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go n.worker()
	}
	if metrics != nil {
		go n.reportQueueSize()
	}

	n.logger.Debug("Notifier started", zap.Int("workers", cfg.Workers), zap.Int("buffer", cfg.BufferSize))
	return n, nil
}

// Notify queues event for delivery without blocking.
func (n *Notifier) Notify(event *cloudevent.CloudEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}

	select {
	case n.queue <- event:
		n.queued.Add(1)
		return nil
	default:
		n.drop(event, "buffer full")
		return ErrBufferFull
	}
}

// Stats returns current counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		QueueDepth:   len(n.queue),
		Queued:       n.queued.Load(),
		Delivered:    n.delivered.Load(),
		Failed:       n.failed.Load(),
		Dropped:      n.dropped.Load(),
		RetriesTotal: n.retriesTotal.Load(),
		BreakersOpen: n.breakers.Open(),
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
// The context deadline bounds the drain.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.shutdown)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Debug("Notifier drained",
			zap.Int64("delivered", n.delivered.Load()),
			zap.Int64("failed", n.failed.Load()),
			zap.Int64("dropped", n.dropped.Load()),
		)
		return nil
	case <-ctx.Done():
		n.logger.Warn("Notifier drain timed out", zap.Int("remaining", len(n.queue)))
		return ctx.Err()
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.shutdown:
			n.drainQueue()
			return
		case event := <-n.queue:
			n.deliver(event)
		}
	}
}

func (n *Notifier) drainQueue() {
	for {
		select {
		case event := <-n.queue:
			n.deliver(event)
		default:
			return
		}
	}
}

func (n *Notifier) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.shutdown:
			return
		case <-ticker.C:
			n.metrics.RecordNotifyQueueSize(context.Background(), int64(len(n.queue)))
		}
	}
}

func (n *Notifier) deliver(event *cloudevent.CloudEvent) {
	breaker := n.breakers.Get(n.host)
	if !breaker.Allow() {
		n.drop(event, "circuit open")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*n.cfg.Timeout*time.Duration(n.cfg.MaxRetries+1))
	defer cancel()

	start := time.Now()
	if err := n.sendWithRetry(ctx, event); err != nil {
		breaker.Failure()
		n.failed.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyFailed(ctx)
		}
		n.logger.Warn("Notification failed", zap.String("type", event.Type), zap.String("id", event.ID), zap.Error(err))
		return
	}

	breaker.Success()
	n.delivered.Add(1)
	if n.metrics != nil {
		n.metrics.RecordNotifyDelivered(ctx, time.Since(start).Seconds())
	}
	n.logger.Debug("Notification delivered", zap.String("type", event.Type), zap.String("id", event.ID))
}

func (n *Notifier) sendWithRetry(ctx context.Context, event *cloudevent.CloudEvent) error {
	var lastErr error
	for attempt := range n.cfg.MaxRetries + 1 {
		if attempt > 0 {
			n.retriesTotal.Add(1)
			t := time.NewTimer(backoff.Exponential(attempt, &n.cfg.Backoff))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		lastErr = n.sender.Send(ctx, n.cfg.URL, event, n.cfg.SigningKey)
		if lastErr == nil {
			return nil
		}
		if cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (n *Notifier) drop(event *cloudevent.CloudEvent, reason string) {
	n.dropped.Add(1)
	if n.metrics != nil {
		n.metrics.RecordNotifyDropped(context.Background())
	}
	n.logger.Warn("Notification dropped", zap.String("reason", reason), zap.String("type", event.Type))
}
