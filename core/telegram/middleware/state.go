package middleware

import (
	"log/slog"

	"github.com/m3rciful/marketbot/core/logger"
	tghelpers "github.com/m3rciful/marketbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// StateGate reports whether the user is in a conversation step that accepts the update.
type StateGate func(userID int64) bool

// State passes updates through only while gate accepts the sender; others are dropped.
func State(gate StateGate, name string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			ctx := tghelpers.BuildContext(c)
			if gate != nil && gate(sender.ID) {
				logger.Debug(ctx, "tg", "fsm.match",
					slog.Int64("user_id", sender.ID),
					slog.String("state", name),
				)
				return next(c)
			}
			logger.Debug(ctx, "tg", "fsm.skip",
				slog.Int64("user_id", sender.ID),
				slog.String("expected", name),
			)
			return nil
		}
	}
}
