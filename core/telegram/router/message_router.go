package router

import (
	"time"

	tg "github.com/m3rciful/marketbot/core/telegram"
	"github.com/m3rciful/marketbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

var timeNow = time.Now

// TextOptions controls fallback behaviour for text and photo updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
	// Photo handles photos while PhotoGate accepts the sender.
	Photo     tele.HandlerFunc
	PhotoGate middleware.StateGate
}

// TextRoutes builds handlers for free text and photos. Text matching a
// registered command or alias runs that command; anything else goes to the
// registry text fallback.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		text := c.Text()

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return summarize(handlerName(key)).run(c, func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return summarize("text").run(c, func() error {
					return fb(c)
				})
			}
		}

		var fallback func() error
		if opts.UnknownText != nil {
			fallback = func() error { return opts.UnknownText(c) }
		}
		return summarize("unknown_text").run(c, fallback)
	}

	routes := []tg.Route{{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}}

	if opts.Photo != nil {
		photo := func(c tele.Context) error {
			return summarize("photo").run(c, func() error {
				return opts.Photo(c)
			})
		}
		h := middleware.State(opts.PhotoGate, "photo")(photo)
		routes = append(routes, tg.Route{
			Endpoint: tele.OnPhoto,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(h)),
		})
	}
	return routes
}
