// Package engine routes inbound chat events to the sell wizard, the contact
// flows and the admin panel, and turns their results into outbound messages.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/marketbot/core/logger"
	"github.com/m3rciful/marketbot/market"
	"github.com/m3rciful/marketbot/market/moderation"
	"github.com/m3rciful/marketbot/market/notify"
	"github.com/m3rciful/marketbot/market/session"
	"github.com/m3rciful/marketbot/market/store"
	"github.com/m3rciful/marketbot/market/wizard"
)

// MaintenanceNotice is sent instead of running any entry point while the
// maintenance flag is set.
const MaintenanceNotice = "*Maintenance in Progress*\nWe're improving the marketplace. Back soon!"

// Config tunes user-facing behaviour.
type Config struct {
	// BrowseLimit caps the number of products shown by browse.
	BrowseLimit int
	Maintenance bool
	Currency    string
}

// Deps are the collaborators the engine drives.
type Deps struct {
	Store      store.Store
	Sessions   session.Manager
	Wizard     *wizard.Wizard
	Moderation *moderation.Workflow
	Fanout     *notify.Fanout
	Transport  market.Transport
}

// Engine handles one inbound event at a time per user.
type Engine struct {
	store      store.Store
	sessions   session.Manager
	wizard     *wizard.Wizard
	moderation *moderation.Workflow
	fanout     *notify.Fanout
	transport  market.Transport

	cfg         Config
	maintenance atomic.Bool
	locks       *keyLock
	commands    *commandTable
	states      map[session.State]stateHandler
	now         func() time.Time

	bgMu       sync.Mutex
	broadcasts map[int64]context.CancelFunc
	bg         sync.WaitGroup
}

type stateHandler func(e *Engine, ctx context.Context, ev market.TextMessage, s session.Session) error

// New wires an Engine.
func New(deps Deps, cfg Config) *Engine {
	if cfg.BrowseLimit <= 0 {
		cfg.BrowseLimit = 10
	}
	if cfg.Currency == "" {
		cfg.Currency = "ETB"
	}
	e := &Engine{
		store:      deps.Store,
		sessions:   deps.Sessions,
		wizard:     deps.Wizard,
		moderation: deps.Moderation,
		fanout:     deps.Fanout,
		transport:  deps.Transport,
		cfg:        cfg,
		locks:      newKeyLock(),
		now:        time.Now,
		broadcasts: make(map[int64]context.CancelFunc),
	}
	e.maintenance.Store(cfg.Maintenance)
	e.commands = defaultCommands()
	e.states = map[session.State]stateHandler{
		session.StateContactAdmin:  (*Engine).onContactAdminText,
		session.StateContactSeller: (*Engine).onContactSellerText,
		session.StateMessageTarget: (*Engine).onMessageTarget,
		session.StateMessageText:   (*Engine).onMessageText,
		session.StateBroadcastText: (*Engine).onBroadcastText,
	}
	return e
}

// Maintenance reports whether the maintenance flag is set.
func (e *Engine) Maintenance() bool { return e.maintenance.Load() }

// Commands describes the recognized commands, for transport menus.
func (e *Engine) Commands() []CommandInfo { return e.commands.info() }

// Wait blocks until background broadcasts have finished.
func (e *Engine) Wait() { e.bg.Wait() }

// Close cancels running broadcasts and waits for them.
func (e *Engine) Close() {
	e.bgMu.Lock()
	for id, cancel := range e.broadcasts {
		cancel()
		delete(e.broadcasts, id)
	}
	e.bgMu.Unlock()
	e.bg.Wait()
}

// Handle processes one inbound event. Domain failures are reported to the
// user and swallowed; only unexpected errors are returned.
func (e *Engine) Handle(ctx context.Context, ev market.Event) error {
	unlock := e.locks.Lock(ev.Sender())
	defer unlock()

	e.touchUser(ev)

	var err error
	switch v := ev.(type) {
	case market.TextMessage:
		err = e.handleText(ctx, v)
	case market.MediaMessage:
		err = e.handleMedia(ctx, v)
	case market.Choice:
		err = e.handleChoice(ctx, v)
	default:
		return nil
	}
	return e.settle(ctx, err)
}

func (e *Engine) settle(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case market.IsValidation(err):
		logger.Debug(ctx, "service.engine", "input.invalid", slog.String("err", err.Error()))
		return nil
	case errors.Is(err, market.ErrNoActiveSession):
		return nil
	case errors.Is(err, market.ErrNotFound),
		errors.Is(err, market.ErrAlreadyDecided),
		errors.Is(err, market.ErrForbidden):
		logger.Info(ctx, "service.engine", "request.rejected",
			slog.String("status", "skip"),
			slog.String("err", err.Error()),
		)
		return nil
	}
	var de *market.DeliveryError
	if errors.As(err, &de) {
		logger.Warn(ctx, "service.engine", "reply.failed",
			slog.Int64("recipient", de.Recipient),
			slog.String("err", err.Error()),
		)
		return nil
	}
	return err
}

func (e *Engine) touchUser(ev market.Event) {
	var first, handle string
	switch v := ev.(type) {
	case market.TextMessage:
		first, handle = v.FirstName, v.Username
	case market.MediaMessage:
		first, handle = v.FirstName, v.Username
	case market.Choice:
		first, handle = v.FirstName, v.Username
	}
	if u, err := e.store.GetUser(ev.Sender()); err == nil {
		if (first != "" && first != u.FirstName) || (handle != "" && handle != u.Username) {
			if first != "" {
				u.FirstName = first
			}
			if handle != "" {
				u.Username = handle
			}
			e.store.PutUser(u)
		}
		return
	}
	e.store.PutUser(market.User{
		ID:        ev.Sender(),
		FirstName: first,
		Username:  handle,
		JoinedAt:  e.now(),
	})
}

func (e *Engine) isAdmin(id int64) bool {
	return e.moderation != nil && e.moderation.IsAdmin(id)
}

// blocked sends the maintenance notice when the flag is set.
func (e *Engine) blocked(ctx context.Context, chatID int64) bool {
	if !e.maintenance.Load() {
		return false
	}
	_ = e.reply(ctx, chatID, mdMsg(MaintenanceNotice))
	return true
}

func (e *Engine) handleText(ctx context.Context, ev market.TextMessage) error {
	if cmd, ok := e.commands.lookup(ev.Text); ok {
		if cmd.admin && !e.isAdmin(ev.UserID) {
			return e.reply(ctx, ev.ChatID, market.Message{Text: "This command is for admins only."})
		}
		if cmd.entry && e.blocked(ctx, ev.ChatID) {
			return nil
		}
		logger.Debug(ctx, "service.engine", "command",
			slog.String("handler", cmd.name),
			slog.Int64("user_id", ev.UserID),
		)
		return cmd.run(e, ctx, ev)
	}

	s, ok := e.sessions.Get(ev.UserID)
	if !ok {
		return e.reply(ctx, ev.ChatID, market.Message{
			Text:    "Please choose an option from the menu.",
			Options: market.Options{Menu: e.mainMenu(ev.UserID)},
		})
	}
	if wizard.Owns(s.State) {
		return e.wizardStep(ctx, ev.UserID, ev.ChatID, wizard.Input{Text: ev.Text}, "")
	}
	if h, ok := e.states[s.State]; ok {
		return h(e, ctx, ev, s)
	}
	return market.ErrNoActiveSession
}

func (e *Engine) handleMedia(ctx context.Context, ev market.MediaMessage) error {
	if !wizard.Owns(e.sessions.GetState(ev.UserID)) {
		return nil
	}
	return e.wizardStep(ctx, ev.UserID, ev.ChatID, wizard.Input{MediaRef: ev.MediaRef}, "")
}

func (e *Engine) handleChoice(ctx context.Context, ev market.Choice) error {
	switch ev.Key {
	case wizard.KeyCategory, wizard.KeyCancel:
		return e.wizardStep(ctx, ev.UserID, ev.ChatID, wizard.Input{Choice: &ev}, ev.ID)
	case moderation.KeyApprove, moderation.KeyReject:
		return e.onDecide(ctx, ev)
	case KeyBuy:
		return e.onBuy(ctx, ev)
	case KeyDetails:
		return e.onDetails(ctx, ev)
	case KeyReply:
		return e.onAdminReply(ctx, ev)
	}
	e.ack(ctx, ev.ID, "Unsupported action")
	return nil
}

// wizardStep runs one wizard transition. For choices the acknowledgement is
// sent before moderation fan-out starts.
func (e *Engine) wizardStep(ctx context.Context, userID, chatID int64, in wizard.Input, choiceID string) error {
	res, err := e.wizard.Step(ctx, userID, in)
	if choiceID != "" {
		feedback := res.Ack
		if errors.Is(err, market.ErrNoActiveSession) {
			feedback = "This listing is no longer active"
		}
		e.ack(ctx, choiceID, feedback)
	}
	for _, msg := range res.Replies {
		if rerr := e.reply(ctx, chatID, msg); rerr != nil {
			_ = e.settle(ctx, rerr)
		}
	}
	if err != nil {
		return err
	}
	if res.Submitted != nil && e.moderation != nil {
		e.moderation.Submit(ctx, *res.Submitted)
	}
	return nil
}

func (e *Engine) onDecide(ctx context.Context, ev market.Choice) error {
	id, err := parseID(ev.Payload)
	if err != nil {
		e.ack(ctx, ev.ID, "Unsupported action")
		return nil
	}
	_, err = e.moderation.Decide(ctx, moderation.Request{
		ProductID: id,
		AdminID:   ev.UserID,
		Approve:   ev.Key == moderation.KeyApprove,
		ChoiceID:  ev.ID,
		ChatID:    ev.ChatID,
		MessageID: ev.MessageID,
	})
	if errors.Is(err, market.ErrAlreadyDecided) {
		_ = e.reply(ctx, ev.ChatID, market.Message{Text: "This product has already been reviewed."})
	}
	return err
}

// reply delivers a message to the acting user's chat.
func (e *Engine) reply(ctx context.Context, chatID int64, msg market.Message) error {
	if err := e.fanout.Send(ctx, chatID, msg); err != nil {
		return err
	}
	return nil
}

func (e *Engine) ack(ctx context.Context, choiceID, feedback string) {
	if choiceID == "" {
		return
	}
	if err := e.transport.AcknowledgeChoice(ctx, choiceID, feedback); err != nil {
		logger.Debug(ctx, "service.engine", "choice.ack_failed", slog.String("err", err.Error()))
	}
}

func mdMsg(text string) market.Message {
	return market.Message{Text: text, Options: market.Options{Markdown: true}}
}
