package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/marketbot/core/logger"
	"github.com/m3rciful/marketbot/core/telegram/netutil"

	"github.com/sethvargo/go-retry"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned by Enqueue when no slot is free.
	ErrQueueFull = errors.New("telegram sender: queue full")

	errNilCall = errors.New("telegram sender: nil call")
)

// Options tunes the dispatcher. Zero values pick the defaults.
type Options struct {
	QueueSize int
	Workers   int
	// MaxRetries counts retries after the first attempt.
	MaxRetries int
	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration
	// MaxDuration caps one call including its retries.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// call is one outbound Bot API request.
type call struct {
	ctx      context.Context
	action   string
	endpoint string
	fn       func() error
}

// Dispatcher runs Bot API calls with a shared retry policy, either on a
// worker pool (Enqueue) or on the caller's goroutine (Do).
type Dispatcher struct {
	opts  Options
	queue chan call
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	failures atomic.Uint64
}

// NewDispatcher starts the worker pool.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, queue: make(chan call, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer d.wg.Done()
			for c := range d.queue {
				_ = d.run(c)
			}
		}()
	}
	return d
}

// Enqueue hands fn to the pool without waiting. fn may run more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, fn func() error) error {
	if fn == nil {
		return errNilCall
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queue <- call{ctx: ctx, action: action, endpoint: endpoint, fn: fn}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Do runs fn on the caller's goroutine and returns its final error.
func (d *Dispatcher) Do(ctx context.Context, action, endpoint string, fn func() error) error {
	if fn == nil {
		return errNilCall
	}
	return d.run(call{ctx: ctx, action: action, endpoint: endpoint, fn: fn})
}

// ErrorCount returns how many calls failed after all retries.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.failures.Load()
}

// Close rejects new work, drains the queue and waits for the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run(c call) error {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	bounded, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attrs := []slog.Attr{slog.String("op", c.action)}
	if c.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", c.endpoint))
	}

	var (
		attempt int
		lastErr error
	)
	policy := retry.WithMaxRetries(uint64(d.opts.MaxRetries), retry.BackoffFunc(func() (time.Duration, bool) {
		wait := d.backoff(lastErr, attempt)
		logger.Debug(ctx, "tg.sender", "send.retry", append(attrs,
			slog.Int("attempts", attempt),
			slog.Duration("backoff", wait),
			slog.String("cause", classifyError(lastErr)),
		)...)
		return wait, false
	}))
	err := retry.Do(bounded, policy, func(context.Context) error {
		attempt++
		lastErr = c.fn()
		if lastErr != nil && netutil.ShouldRetry(lastErr) {
			return retry.RetryableError(lastErr)
		}
		return lastErr
	})
	if err == nil {
		lvl := logger.Debug
		if attempt > 1 {
			lvl = logger.Info
		}
		lvl(ctx, "tg.sender", "send.ok", append(attrs,
			slog.Int("attempts", attempt),
			slog.Duration("duration", time.Since(start)),
		)...)
		return nil
	}
	if bounded.Err() != nil && lastErr != nil && !errors.Is(err, lastErr) {
		err = errors.Join(lastErr, err)
	}

	d.failures.Add(1)
	logger.Error(ctx, "tg.sender", "send.fail", append(attrs,
		slog.Int("attempts", attempt),
		slog.String("err", redactToken(err.Error())),
		slog.String("cause", classifyError(err)),
		slog.Bool("retryable", netutil.ShouldRetry(err)),
		slog.Duration("duration", time.Since(start)),
	)...)
	return err
}

// backoff grows linearly with the attempt. Flood replies wait at least as
// long as Telegram asked.
func (d *Dispatcher) backoff(err error, attempt int) time.Duration {
	wait := d.opts.RetryBackoff * time.Duration(attempt)
	if after := retryAfter(err); after > wait {
		wait = after
	}
	return wait
}
