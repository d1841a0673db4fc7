// Package app wires the marketplace engine into the Telegram runtime.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/marketbot/core/bootstrap"
	"github.com/m3rciful/marketbot/core/cmd"
	"github.com/m3rciful/marketbot/core/logger"
	coretelegram "github.com/m3rciful/marketbot/core/telegram"
	"github.com/m3rciful/marketbot/core/telegram/sender"
	"github.com/m3rciful/marketbot/market/engine"
	"github.com/m3rciful/marketbot/market/moderation"
	"github.com/m3rciful/marketbot/market/notify"
	"github.com/m3rciful/marketbot/market/session"
	"github.com/m3rciful/marketbot/market/store"
	mtg "github.com/m3rciful/marketbot/market/telegram"
	"github.com/m3rciful/marketbot/market/wizard"
)

// App owns the marketplace components for one bot process.
type App struct {
	cfg        *Config
	store      store.Store
	sessions   session.Manager
	dispatcher *sender.Dispatcher
	transport  *mtg.Transport
	engine     *engine.Engine
}

var _ cmd.TelegramApp = (*App)(nil)

// Bootstrap initializes logging, seeds the store and builds the App.
func Bootstrap(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	st := store.NewMemory()
	_, err := bootstrap.Run(context.Background(), bootstrap.Options{
		Config:  &cfg.Config,
		Storage: st,
		Seeders: []bootstrap.Seeder{AdminSeeder(cfg.Telegram.AdminIDs, nil)},
	})
	if err != nil {
		return nil, err
	}
	return New(cfg, st), nil
}

// New builds the App over st without touching global state.
func New(cfg *Config, st store.Store) *App {
	sessions := session.NewMemoryManager()
	disp := sender.NewDispatcher(coretelegram.SenderOptions(cfg.Sender))
	transport := mtg.NewTransport(disp)

	fanout := notify.New(transport, notify.NewRateLimiter(cfg.Market.PacingInterval(), cfg.Market.BroadcastBurst))

	mod := moderation.New(st, fanout, transport, moderation.Config{
		Admins:    cfg.Telegram.AdminIDs,
		ChannelID: cfg.Market.ChannelID,
		Currency:  cfg.Market.Currency,
	})
	eng := engine.New(engine.Deps{
		Store:      st,
		Sessions:   sessions,
		Wizard:     wizard.New(sessions, st),
		Moderation: mod,
		Fanout:     fanout,
		Transport:  transport,
	}, engine.Config{
		BrowseLimit: cfg.Market.BrowseLimit,
		Maintenance: cfg.Market.Maintenance,
		Currency:    cfg.Market.Currency,
	})

	return &App{
		cfg:        cfg,
		store:      st,
		sessions:   sessions,
		dispatcher: disp,
		transport:  transport,
		engine:     eng,
	}
}

// Engine exposes the marketplace engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// RouteOptions describes how Telegram updates reach the engine.
func (a *App) RouteOptions() mtg.RouteOptions {
	return mtg.RouteOptions{
		Commands:   a.engine.Commands(),
		ChoiceKeys: engine.ChoiceKeys(),
		IsAdmin:    a.cfg.IsAdmin,
		AcceptsPhoto: func(userID int64) bool {
			return wizard.Owns(a.sessions.GetState(userID))
		},
	}
}

// TelegramRunOptions builds the runtime options: registry, routes, middleware
// and lifecycle hooks that bind the transport and drain broadcasts.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	ro := a.RouteOptions()
	if err := mtg.Register(reg, a.engine, ro); err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("app: register routes: %w", err)
	}

	return coretelegram.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    reg,
		Dispatcher:  a.dispatcher,
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Config, nil),
		Routes:      mtg.Routes(reg, a.engine, ro),
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			if rt.Bot == nil {
				return fmt.Errorf("app: runtime has no bot")
			}
			a.transport.Attach(rt.Bot)
			logger.Info(ctx, "app", "market.ready",
				slog.Int("admins", len(a.cfg.Telegram.AdminIDs)),
				slog.Int64("channel_id", a.cfg.Market.ChannelID),
				slog.Bool("maintenance", a.engine.Maintenance()),
			)
			return nil
		},
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			a.engine.Close()
			logger.Info(ctx, "app", "market.stopped",
				slog.Int("users", a.store.CountUsers()),
				slog.Int("sessions", a.sessions.Count()),
			)
			return nil
		},
	}, nil
}
