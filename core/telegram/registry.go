package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/marketbot/core/logger"
	"github.com/m3rciful/marketbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry is the routing table the routers read: slash commands with
// their label aliases, callback keys and the two fallbacks.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]commands.Command
	labels    map[string]string // alias -> command key
	callbacks map[string]tele.HandlerFunc

	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry returns an empty registry whose unknown-callback fallback
// just answers the press.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		labels:    make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

func commandKey(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

// RegisterCommand adds cmd under "/name". Aliases must not collide with
// another command or alias.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	key := commandKey(name)
	if key == "" || key == "/" || cmd.Handler == nil || cmd.Description == "" {
		return fmt.Errorf("telegram: invalid command %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[key]; dup {
		return fmt.Errorf("telegram: command %s already registered", key)
	}
	for _, alias := range cmd.Aliases {
		if owner, dup := r.labels[alias]; dup {
			return fmt.Errorf("telegram: alias %q of %s already used by %s", alias, key, owner)
		}
	}
	r.commands[key] = cmd
	for _, alias := range cmd.Aliases {
		r.labels[alias] = key
	}
	logger.Debug(context.Background(), "tg.wire", "register.command",
		slog.String("op", key),
		slog.Int("count", len(cmd.Aliases)),
	)
	return nil
}

// LookupCommand resolves a slash command, a bare command name or an alias.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	text = strings.TrimSpace(text)
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.labels[text]
	if !ok {
		key = commandKey(text)
	}
	cmd, ok := r.commands[key]
	if !ok {
		return "", commands.Command{}, false
	}
	return key, cmd, true
}

// ListCommands returns the menu entries sorted by command. With
// publicOnly, hidden and admin commands are left out.
func (r *Registry) ListCommands(publicOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for _, key := range slices.Sorted(maps.Keys(r.commands)) {
		cmd := r.commands[key]
		if cmd.Hidden || (publicOnly && !cmd.Public()) {
			continue
		}
		list = append(list, tele.Command{Text: key, Description: cmd.Description})
	}
	return list
}

// Commands returns a snapshot of the registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.commands)
}

// RegisterCallback binds a callback unique key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return fmt.Errorf("telegram: invalid callback %q", key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.callbacks[key]; dup {
		return fmt.Errorf("telegram: callback %s already registered", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler bound to key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys in order.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.callbacks))
}

// SetCallbackNotFound replaces the unknown-callback fallback. nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text no command or alias matched.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// menuSetter is the part of *tele.Bot SetupCommands needs.
type menuSetter interface {
	SetCommands(opts ...interface{}) error
}

// SetupCommands publishes the public menu to everyone and the full menu
// to each admin's private chat. Admin failures are logged and skipped.
func SetupCommands(bot menuSetter, reg *Registry, adminIDs ...int64) {
	ctx := context.Background()
	if err := bot.SetCommands(reg.ListCommands(true)); err != nil {
		logger.Error(ctx, "tg.wire", "register.commands.set_failed", slog.String("err", err.Error()))
		return
	}
	full := reg.ListCommands(false)
	for _, id := range adminIDs {
		scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: id}
		if err := bot.SetCommands(full, scope); err != nil {
			logger.Warn(ctx, "tg.wire", "register.commands.admin_failed",
				slog.Int64("admin_id", id),
				slog.String("err", err.Error()),
			)
		}
	}
}
