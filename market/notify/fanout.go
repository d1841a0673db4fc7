// Package notify delivers one logical event to many recipients, isolating
// failures per recipient and pacing deliveries through a limiter.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/m3rciful/marketbot/core/logger"
	"github.com/m3rciful/marketbot/market"
)

// Limiter paces sequential deliveries. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewRateLimiter returns a token bucket allowing one delivery per interval
// with the given burst. A non-positive interval disables pacing.
func NewRateLimiter(interval time.Duration, burst int) Limiter {
	if interval <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(interval), burst)
}

// Render builds the message for one recipient.
type Render func(recipient int64) market.Message

// Result aggregates a fan-out. Skipped counts recipients never attempted
// because the context was cancelled.
type Result struct {
	BatchID string
	Sent    int
	Failed  int
	Skipped int
	Errors  []error
}

// Attempted returns the number of recipients a delivery was tried for.
func (r Result) Attempted() int { return r.Sent + r.Failed }

// Fanout sends messages through a Transport.
type Fanout struct {
	transport market.Transport
	limiter   Limiter
}

// New builds a Fanout. A nil limiter sends without pauses.
func New(t market.Transport, l Limiter) *Fanout {
	return &Fanout{transport: t, limiter: l}
}

// Send delivers a single message. Transport failures come back as *market.DeliveryError.
func (f *Fanout) Send(ctx context.Context, recipient int64, msg market.Message) error {
	if err := market.Deliver(ctx, f.transport, recipient, msg); err != nil {
		return &market.DeliveryError{Recipient: recipient, Err: err}
	}
	return nil
}

// deliver sends msg and, when a media message is refused, resends it once
// as plain text. Captions are capped well below text messages, and a stale
// file id fails only the media part.
func (f *Fanout) deliver(ctx context.Context, recipient int64, msg market.Message) error {
	err := f.Send(ctx, recipient, msg)
	if err == nil || msg.MediaRef == "" {
		return err
	}
	logger.Debug(ctx, "service.notify", "media.fallback",
		slog.Int64("recipient", recipient),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
	msg.MediaRef = ""
	return f.Send(ctx, recipient, msg)
}

// Notify delivers render(r) to every recipient in order. A failure for one
// recipient is counted and never stops the remaining deliveries. A media
// message that fails is resent once as plain text. Cancelling ctx stops
// scheduling; the rest are reported as skipped.
func (f *Fanout) Notify(ctx context.Context, recipients []int64, render Render) Result {
	res := Result{BatchID: uuid.NewString()}
	ctx = logger.WithBatch(ctx, res.BatchID)
	start := time.Now()

	for i, rcpt := range recipients {
		if err := f.wait(ctx, i); err != nil {
			res.Skipped = len(recipients) - i
			logger.Warn(ctx, "service.notify", "fanout.cancelled",
				slog.Int("skipped", res.Skipped),
				slog.String("err", err.Error()),
			)
			break
		}
		if err := f.deliver(ctx, rcpt, render(rcpt)); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			logger.Warn(ctx, "service.notify", "fanout.delivery_failed",
				slog.Int64("recipient", rcpt),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			continue
		}
		res.Sent++
	}

	logger.Info(ctx, "service.notify", "fanout.done",
		slog.Int("count", len(recipients)),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return res
}

// Sequence delivers several messages to one recipient with the same pacing
// as Notify. A media message that fails is resent once as plain text.
func (f *Fanout) Sequence(ctx context.Context, recipient int64, msgs []market.Message) Result {
	res := Result{BatchID: uuid.NewString()}
	ctx = logger.WithBatch(ctx, res.BatchID)
	for i, msg := range msgs {
		if err := f.wait(ctx, i); err != nil {
			res.Skipped = len(msgs) - i
			break
		}
		if err := f.deliver(ctx, recipient, msg); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Sent++
	}
	logger.Debug(ctx, "service.notify", "sequence.done",
		slog.Int64("recipient", recipient),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
	)
	return res
}

func (f *Fanout) wait(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The first delivery goes out immediately.
	if i == 0 || f.limiter == nil {
		return nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.Join(context.Canceled, err)
	}
	return nil
}
