package middleware

import (
	tghelpers "github.com/m3rciful/marketbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// countingContext notes replies made through tele.Context itself. Replies
// sent by other code note themselves on the request context.
type countingContext struct{ tele.Context }

func (c countingContext) note(err error, opts []interface{}) error {
	if err == nil {
		tghelpers.NoteReply(tghelpers.BuildContext(c.Context), carriesMarkup(opts))
	}
	return err
}

func carriesMarkup(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			return v != nil
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		}
	}
	return false
}

func (c countingContext) Send(what interface{}, opts ...interface{}) error {
	return c.note(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Reply(what interface{}, opts ...interface{}) error {
	return c.note(c.Context.Reply(what, opts...), opts)
}

func (c countingContext) Edit(what interface{}, opts ...interface{}) error {
	return c.note(c.Context.Edit(what, opts...), opts)
}

func (c countingContext) EditOrSend(what interface{}, opts ...interface{}) error {
	return c.note(c.Context.EditOrSend(what, opts...), opts)
}

// MessageMetricsMiddleware gives each update a reply counter that the
// handler summary reads back through GetCounters.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		tghelpers.StoreContext(c, tghelpers.WithReplyCounter(tghelpers.BuildContext(c)))
		return next(countingContext{Context: c})
	}
}

// GetCounters returns the reply count and keyboard flag for the update.
func GetCounters(c tele.Context) (int, bool) {
	ctx, ok := tghelpers.ContextFrom(c)
	if !ok {
		return 0, false
	}
	return tghelpers.Replies(ctx)
}
