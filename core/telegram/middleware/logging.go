package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/marketbot/core/logger"
	"github.com/m3rciful/marketbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/marketbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenUpdates remembers recently logged update ids. LoggerMiddleware runs
// both globally and per route, so each update would otherwise log twice.
type seenUpdates struct {
	mu     sync.Mutex
	ttl    time.Duration
	at     map[int]time.Time
	pruned time.Time
}

var receipts = &seenUpdates{ttl: 10 * time.Second, at: make(map[int]time.Time)}

// first reports whether id has not been seen within the ttl and records it.
func (s *seenUpdates) first(id int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.pruned) > s.ttl {
		for k, ts := range s.at {
			if now.Sub(ts) > s.ttl {
				delete(s.at, k)
			}
		}
		s.pruned = now
	}
	if ts, ok := s.at[id]; ok && now.Sub(ts) <= s.ttl {
		return false
	}
	s.at[id] = now
	return true
}

// LoggerMiddleware prepares the request context and writes one sampled
// update.received line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		updateID := logger.UpdateIDFrom(ctx)
		if logger.ShouldSampleDebug() && receipts.first(updateID, time.Now()) {
			logger.Debug(ctx, "tg", "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil && user.Username != "" {
		attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
	}
	upd := c.Update()
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		attrs = append(attrs,
			slog.String("cb_key", logger.SanitizeLimit(key, 128)),
			slog.String("payload", logger.SanitizeLimit(payload, 256)),
		)
	case upd.Message != nil:
		payload := c.Text()
		if payload == "" && upd.Message.Photo != nil {
			payload = "[photo]"
		}
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
	}
	return attrs
}
