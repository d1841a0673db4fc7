package helpers

import (
	"context"
	"sync/atomic"

	"github.com/m3rciful/marketbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const ctxSlot = "request_ctx"

// UpdateIDs returns the update, chat and sender ids of c. Missing parts are zero.
func UpdateIDs(c tele.Context) (updateID int, chatID, userID int64) {
	if c == nil {
		return 0, 0, 0
	}
	updateID = c.Update().ID
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	return updateID, chatID, userID
}

// StoreContext caches ctx on c for later handlers in the chain.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxSlot, ctx)
	}
}

// ContextFrom returns the context cached on c, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxSlot).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the request context for c, creating and caching it
// on first use. It carries the rid and update/user/chat ids.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	updateID, chatID, userID := UpdateIDs(c)
	ctx := logger.WithRID(context.Background(), logger.BuildRID(updateID, chatID, userID))
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the request context of c with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" || logger.HandlerFrom(ctx) == handler {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}

type repliesKey struct{}

// replies counts outbound messages sent while serving one update.
type replies struct {
	count    atomic.Int32
	keyboard atomic.Bool
}

// WithReplyCounter returns ctx carrying a fresh reply counter.
func WithReplyCounter(ctx context.Context) context.Context {
	return context.WithValue(ctx, repliesKey{}, &replies{})
}

// NoteReply records one delivered message on the counter in ctx, if any.
func NoteReply(ctx context.Context, withKeyboard bool) {
	if ctx == nil {
		return
	}
	if r, ok := ctx.Value(repliesKey{}).(*replies); ok {
		r.count.Add(1)
		if withKeyboard {
			r.keyboard.Store(true)
		}
	}
}

// Replies reports how many messages were noted in ctx and whether any
// carried a keyboard.
func Replies(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	r, ok := ctx.Value(repliesKey{}).(*replies)
	if !ok {
		return 0, false
	}
	return int(r.count.Load()), r.keyboard.Load()
}
