package telegram

import (
	"context"

	tg "github.com/m3rciful/marketbot/core/telegram"
	"github.com/m3rciful/marketbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/marketbot/core/telegram/helpers"
	"github.com/m3rciful/marketbot/core/telegram/middleware"
	"github.com/m3rciful/marketbot/core/telegram/router"
	"github.com/m3rciful/marketbot/market"
	"github.com/m3rciful/marketbot/market/engine"

	tele "gopkg.in/telebot.v4"
)

// Handler consumes inbound marketplace events.
type Handler interface {
	Handle(ctx context.Context, ev market.Event) error
}

// RouteOptions wires the engine into the Telegram runtime.
type RouteOptions struct {
	Commands   []engine.CommandInfo
	ChoiceKeys []string
	IsAdmin    func(userID int64) bool
	// AcceptsPhoto gates photo updates, typically to users inside the sell flow.
	AcceptsPhoto middleware.StateGate
}

// Register adds commands, menu labels and button keys to reg, all forwarding to h.
func Register(reg *tg.Registry, h Handler, opts RouteOptions) error {
	text := TextHandler(h)
	for _, c := range opts.Commands {
		err := reg.RegisterCommand(c.Name, commands.Command{
			Handler:     text,
			Description: c.Description,
			AdminOnly:   c.Admin,
			Aliases:     c.Labels,
		})
		if err != nil {
			return err
		}
	}
	choice := ChoiceHandler(h)
	for _, key := range opts.ChoiceKeys {
		if err := reg.RegisterCallback(key, choice); err != nil {
			return err
		}
	}
	// Unknown keys still reach the engine so the press gets answered.
	reg.SetCallbackNotFound(choice)
	reg.SetTextFallback(text)
	return nil
}

// Routes builds the Telegram routes for a registry prepared by Register.
func Routes(reg *tg.Registry, h Handler, opts RouteOptions) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		IsAdmin: opts.IsAdmin,
		OnAdminReject: func(c tele.Context) error {
			return tghelpers.SendText(c, "This command is for admins only.")
		},
	})
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{
		Photo:     PhotoHandler(h),
		PhotoGate: opts.AcceptsPhoto,
	})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	return routes
}

// TextHandler forwards text messages and commands.
func TextHandler(h Handler) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev, ok := textEvent(c.Message())
		if !ok {
			return nil
		}
		return h.Handle(tghelpers.BuildContext(c), ev)
	}
}

// PhotoHandler forwards photos.
func PhotoHandler(h Handler) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev, ok := photoEvent(c.Message())
		if !ok {
			return nil
		}
		return h.Handle(tghelpers.BuildContext(c), ev)
	}
}

// ChoiceHandler forwards inline button presses. The engine answers the callback.
func ChoiceHandler(h Handler) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev, ok := choiceEvent(c.Callback())
		if !ok {
			return nil
		}
		return h.Handle(tghelpers.BuildContext(c), ev)
	}
}
