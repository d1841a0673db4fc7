package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/m3rciful/marketbot/core/logger"
	"github.com/m3rciful/marketbot/core/telegram/format"
	"github.com/m3rciful/marketbot/market"
	"github.com/m3rciful/marketbot/market/session"
	"github.com/m3rciful/marketbot/market/store"
)

// Choice keys handled by the engine itself.
const (
	KeyBuy     = "buy"
	KeyDetails = "details"
	KeyReply   = "reply"
)

func (e *Engine) cmdStart(ctx context.Context, ev market.TextMessage) error {
	name := ev.FirstName
	if u, err := e.store.GetUser(ev.UserID); err == nil {
		name = u.DisplayName()
	}
	text := fmt.Sprintf("*Welcome to the Campus Marketplace, %s!*\n\n"+
		"Buy and sell with fellow students. Every listing is reviewed before it goes live.",
		format.MD(name))
	msg := mdMsg(text)
	msg.Options.Menu = e.mainMenu(ev.UserID)
	return e.reply(ctx, ev.ChatID, msg)
}

func (e *Engine) cmdHelp(ctx context.Context, ev market.TextMessage) error {
	text := "*How it works*\n" +
		"• *Sell Item*: send 1-5 photos, a title, a price, a description and a category.\n" +
		"• Admins review every listing before it is published.\n" +
		"• *Browse Products*: see approved items and contact sellers.\n" +
		"• *Contact Admin*: send a message to the admins.\n" +
		"• /cancel stops whatever you are doing."
	return e.reply(ctx, ev.ChatID, mdMsg(text))
}

func (e *Engine) cmdSell(ctx context.Context, ev market.TextMessage) error {
	return e.reply(ctx, ev.ChatID, e.wizard.Start(ev.UserID))
}

func (e *Engine) cmdBrowse(ctx context.Context, ev market.TextMessage) error {
	products := e.store.ListProducts(store.ByStatus(market.StatusApproved))
	if len(products) == 0 {
		return e.reply(ctx, ev.ChatID, market.Message{Text: "No products available yet. Check back soon!"})
	}
	// Newest first.
	sort.SliceStable(products, func(i, j int) bool { return products[i].ID > products[j].ID })
	if len(products) > e.cfg.BrowseLimit {
		products = products[:e.cfg.BrowseLimit]
	}
	msgs := make([]market.Message, 0, len(products))
	for _, p := range products {
		msgs = append(msgs, e.productCard(p))
	}
	res := e.fanout.Sequence(ctx, ev.ChatID, msgs)
	if res.Sent == 0 && len(res.Errors) > 0 {
		return res.Errors[0]
	}
	return nil
}

func (e *Engine) cmdMyProducts(ctx context.Context, ev market.TextMessage) error {
	products := e.store.ListProducts(store.BySeller(ev.UserID))
	if len(products) == 0 {
		return e.reply(ctx, ev.ChatID, market.Message{Text: "You haven't listed any products yet."})
	}
	var b strings.Builder
	b.WriteString("*Your Products*\n")
	for _, p := range products {
		fmt.Fprintf(&b, "\n#%d %s: %d %s (%s)", p.ID, format.MD(p.Title), p.Price, e.cfg.Currency, p.Status)
	}
	return e.reply(ctx, ev.ChatID, mdMsg(b.String()))
}

func (e *Engine) cmdContact(ctx context.Context, ev market.TextMessage) error {
	e.sessions.Start(ev.UserID, session.StateContactAdmin, session.ContactDraft{})
	return e.reply(ctx, ev.ChatID, market.Message{Text: "Type your message for the admins, or /cancel."})
}

func (e *Engine) cmdCancel(ctx context.Context, ev market.TextMessage) error {
	active := e.sessions.InProgress(ev.UserID)
	e.sessions.End(ev.UserID)
	if e.cancelBroadcast(ev.UserID) {
		active = true
	}
	text := "Nothing to cancel."
	if active {
		text = "Cancelled."
	}
	return e.reply(ctx, ev.ChatID, market.Message{
		Text:    text,
		Options: market.Options{Menu: e.mainMenu(ev.UserID)},
	})
}

func (e *Engine) cmdAdmin(ctx context.Context, ev market.TextMessage) error {
	return e.reply(ctx, ev.ChatID, market.Message{
		Text:    "*Admin Panel*",
		Options: market.Options{Markdown: true, Menu: adminMenu()},
	})
}

func (e *Engine) cmdExitAdmin(ctx context.Context, ev market.TextMessage) error {
	return e.reply(ctx, ev.ChatID, market.Message{
		Text:    "Back to the main menu.",
		Options: market.Options{Menu: e.mainMenu(ev.UserID)},
	})
}

func (e *Engine) cmdPending(ctx context.Context, ev market.TextMessage) error {
	pending := e.moderation.Pending()
	if len(pending) == 0 {
		return e.reply(ctx, ev.ChatID, market.Message{Text: "No pending products."})
	}
	msgs := make([]market.Message, 0, len(pending))
	for _, p := range pending {
		msgs = append(msgs, e.moderation.ReviewCard(p))
	}
	e.fanout.Sequence(ctx, ev.ChatID, msgs)
	return nil
}

func (e *Engine) cmdStats(ctx context.Context, ev market.TextMessage) error {
	all := e.store.ListProducts(nil)
	counts := map[market.Status]int{}
	for _, p := range all {
		counts[p.Status]++
	}
	mode := "off"
	if e.maintenance.Load() {
		mode = "on"
	}
	text := fmt.Sprintf("*Stats*\nUsers: %d\nProducts: %d\nPending: %d\nApproved: %d\nRejected: %d\nActive sessions: %d\nMaintenance: %s",
		e.store.CountUsers(), len(all),
		counts[market.StatusPending], counts[market.StatusApproved], counts[market.StatusRejected],
		e.sessions.Count(), mode)
	return e.reply(ctx, ev.ChatID, mdMsg(text))
}

func (e *Engine) cmdMessage(ctx context.Context, ev market.TextMessage) error {
	e.sessions.Start(ev.UserID, session.StateMessageTarget, session.MessageDraft{})
	return e.reply(ctx, ev.ChatID, market.Message{Text: "Send the user ID to message, or /cancel."})
}

func (e *Engine) cmdBroadcast(ctx context.Context, ev market.TextMessage) error {
	if e.broadcasting(ev.UserID) {
		return e.reply(ctx, ev.ChatID, market.Message{Text: "A broadcast is already running. Use /cancel to stop it."})
	}
	e.sessions.Start(ev.UserID, session.StateBroadcastText, session.BroadcastDraft{})
	return e.reply(ctx, ev.ChatID, market.Message{Text: "Send the broadcast text, or /cancel."})
}

func (e *Engine) cmdMaintenance(ctx context.Context, ev market.TextMessage) error {
	on := !e.maintenance.Load()
	e.maintenance.Store(on)
	logger.Info(ctx, "service.engine", "maintenance.toggle",
		slog.Int64("admin_id", ev.UserID),
		slog.Bool("enabled", on),
	)
	text := "Maintenance mode disabled."
	if on {
		text = "Maintenance mode enabled."
	}
	return e.reply(ctx, ev.ChatID, market.Message{Text: text})
}

func (e *Engine) onContactAdminText(ctx context.Context, ev market.TextMessage, _ session.Session) error {
	e.sessions.End(ev.UserID)
	sender := e.describeUser(ev.UserID)
	uid := strconv.FormatInt(ev.UserID, 10)
	msg := market.Message{
		Text: fmt.Sprintf("*Message from %s* (ID %d)\n\n%s", format.MD(sender), ev.UserID, format.MD(ev.Text)),
		Options: market.Options{
			Markdown: true,
			Inline:   [][]market.Button{{{Text: "Reply", Key: KeyReply, Payload: uid}}},
		},
	}
	res := e.fanout.Notify(ctx, e.moderation.Admins(), func(int64) market.Message { return msg })
	if res.Sent == 0 {
		return e.reply(ctx, ev.ChatID, market.Message{Text: "Could not reach the admins. Please try again later."})
	}
	return e.reply(ctx, ev.ChatID, market.Message{
		Text:    "Your message has been sent to the admins.",
		Options: market.Options{Menu: e.mainMenu(ev.UserID)},
	})
}

func (e *Engine) onContactSellerText(ctx context.Context, ev market.TextMessage, s session.Session) error {
	e.sessions.End(ev.UserID)
	d, _ := s.Contact()
	title := fmt.Sprintf("#%d", d.ProductID)
	if p, err := e.store.GetProduct(d.ProductID); err == nil {
		title = fmt.Sprintf("#%d %s", p.ID, p.Title)
	}
	buyer := e.describeUser(ev.UserID)
	if ev.Username != "" {
		buyer += " (@" + ev.Username + ")"
	}
	msg := mdMsg(fmt.Sprintf("*Buyer interested in %s*\nFrom: %s\n\n%s",
		format.MD(title), format.MD(buyer), format.MD(ev.Text)))
	if err := e.fanout.Send(ctx, d.RecipientID, msg); err != nil {
		_ = e.settle(ctx, err)
		return e.reply(ctx, ev.ChatID, market.Message{Text: "Could not reach the seller. Please try again later."})
	}
	return e.reply(ctx, ev.ChatID, market.Message{Text: "Message sent to the seller."})
}

func (e *Engine) onMessageTarget(ctx context.Context, ev market.TextMessage, _ session.Session) error {
	id, err := parseID(ev.Text)
	if err != nil {
		_ = e.reply(ctx, ev.ChatID, market.Message{Text: "Invalid user ID. Send digits only."})
		return &market.ValidationError{Field: "user_id", Reason: "not a number"}
	}
	if _, err := e.store.GetUser(id); err != nil {
		_ = e.reply(ctx, ev.ChatID, market.Message{Text: "User not found. Send another ID or /cancel."})
		return fmt.Errorf("message target %d: %w", id, err)
	}
	err = e.sessions.Advance(ev.UserID, session.StateMessageText, func(s *session.Session) error {
		s.Draft = session.MessageDraft{TargetID: id}
		return nil
	})
	if err != nil {
		return err
	}
	return e.reply(ctx, ev.ChatID, market.Message{Text: fmt.Sprintf("Type the message for user %d.", id)})
}

func (e *Engine) onMessageText(ctx context.Context, ev market.TextMessage, s session.Session) error {
	e.sessions.End(ev.UserID)
	d, _ := s.Message()
	msg := mdMsg("*Message from admin*\n\n" + format.MD(ev.Text))
	if err := e.fanout.Send(ctx, d.TargetID, msg); err != nil {
		_ = e.settle(ctx, err)
		return e.reply(ctx, ev.ChatID, market.Message{Text: "Delivery failed: the user is unreachable."})
	}
	return e.reply(ctx, ev.ChatID, market.Message{Text: "Message delivered."})
}

func (e *Engine) onBroadcastText(ctx context.Context, ev market.TextMessage, _ session.Session) error {
	e.sessions.End(ev.UserID)
	if e.broadcasting(ev.UserID) {
		return e.reply(ctx, ev.ChatID, market.Message{Text: "A broadcast is already running. Use /cancel to stop it."})
	}
	var recipients []int64
	for _, u := range e.store.ListUsers() {
		if u.ID != ev.UserID {
			recipients = append(recipients, u.ID)
		}
	}
	if err := e.reply(ctx, ev.ChatID, market.Message{Text: fmt.Sprintf("Broadcast started to %d users.", len(recipients))}); err != nil {
		_ = e.settle(ctx, err)
	}
	msg := market.Message{Text: "Announcement\n\n" + ev.Text}
	e.startBroadcast(ctx, ev.UserID, ev.ChatID, recipients, msg)
	return nil
}

// startBroadcast runs the fan-out outside the user's lock so /cancel can reach it.
func (e *Engine) startBroadcast(parent context.Context, adminID, chatID int64, recipients []int64, msg market.Message) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	e.bgMu.Lock()
	e.broadcasts[adminID] = cancel
	e.bgMu.Unlock()

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		defer cancel()
		res := e.fanout.Notify(ctx, recipients, func(int64) market.Message { return msg })

		e.bgMu.Lock()
		delete(e.broadcasts, adminID)
		e.bgMu.Unlock()

		logger.Info(ctx, "service.engine", "broadcast.done",
			slog.String("batch_id", res.BatchID),
			slog.Int64("admin_id", adminID),
			slog.Int("sent", res.Sent),
			slog.Int("failed", res.Failed),
			slog.Int("skipped", res.Skipped),
		)
		report := fmt.Sprintf("Broadcast finished.\nSent: %d\nFailed: %d", res.Sent, res.Failed)
		if res.Skipped > 0 {
			report += fmt.Sprintf("\nCancelled before: %d", res.Skipped)
		}
		_ = e.fanout.Send(context.WithoutCancel(ctx), chatID, market.Message{Text: report})
	}()
}

func (e *Engine) broadcasting(adminID int64) bool {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	_, ok := e.broadcasts[adminID]
	return ok
}

func (e *Engine) cancelBroadcast(adminID int64) bool {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	cancel, ok := e.broadcasts[adminID]
	if ok {
		cancel()
		delete(e.broadcasts, adminID)
	}
	return ok
}

func (e *Engine) onBuy(ctx context.Context, ev market.Choice) error {
	if e.maintenance.Load() {
		e.ack(ctx, ev.ID, "Maintenance in Progress")
		_ = e.reply(ctx, ev.ChatID, mdMsg(MaintenanceNotice))
		return nil
	}
	p, err := e.visibleProduct(ev.Payload)
	if err != nil {
		e.ack(ctx, ev.ID, "Product not available")
		return err
	}
	if p.SellerID == ev.UserID {
		e.ack(ctx, ev.ID, "This is your own listing")
		return nil
	}
	e.sessions.Start(ev.UserID, session.StateContactSeller, session.ContactDraft{
		ProductID:   p.ID,
		RecipientID: p.SellerID,
	})
	e.ack(ctx, ev.ID, "")
	return e.reply(ctx, ev.ChatID, mdMsg(fmt.Sprintf("Type your message for the seller of *%s*, or /cancel.", format.MD(p.Title))))
}

func (e *Engine) onDetails(ctx context.Context, ev market.Choice) error {
	p, err := e.visibleProduct(ev.Payload)
	if err != nil {
		e.ack(ctx, ev.ID, "Product not available")
		return err
	}
	e.ack(ctx, ev.ID, "")
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", format.MD(p.Title))
	fmt.Fprintf(&b, "Price: %d %s\n", p.Price, e.cfg.Currency)
	fmt.Fprintf(&b, "Category: %s\n", format.MD(p.Category))
	if p.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", format.MD(p.Description))
	}
	fmt.Fprintf(&b, "\nListed: %s", p.CreatedAt.Format("2006-01-02"))
	msg := mdMsg(b.String())
	msg.Options.Inline = [][]market.Button{{{Text: "Buy Now", Key: KeyBuy, Payload: strconv.FormatInt(p.ID, 10)}}}
	return e.reply(ctx, ev.ChatID, msg)
}

func (e *Engine) onAdminReply(ctx context.Context, ev market.Choice) error {
	if !e.isAdmin(ev.UserID) {
		e.ack(ctx, ev.ID, "Admins only")
		return market.ErrForbidden
	}
	id, err := parseID(ev.Payload)
	if err != nil {
		e.ack(ctx, ev.ID, "Unsupported action")
		return nil
	}
	e.sessions.Start(ev.UserID, session.StateMessageText, session.MessageDraft{TargetID: id})
	e.ack(ctx, ev.ID, "")
	return e.reply(ctx, ev.ChatID, market.Message{Text: fmt.Sprintf("Type your reply to user %d, or /cancel.", id)})
}

func (e *Engine) visibleProduct(payload string) (market.Product, error) {
	id, err := parseID(payload)
	if err != nil {
		return market.Product{}, market.ErrNotFound
	}
	p, err := e.store.GetProduct(id)
	if err != nil {
		return market.Product{}, err
	}
	if !p.Visible() {
		return market.Product{}, market.ErrNotFound
	}
	return p, nil
}

func (e *Engine) productCard(p market.Product) market.Message {
	id := strconv.FormatInt(p.ID, 10)
	msg := mdMsg(fmt.Sprintf("*%s*\nPrice: %d %s\nCategory: %s",
		format.MD(p.Title), p.Price, e.cfg.Currency, format.MD(p.Category)))
	msg.Options.Inline = [][]market.Button{{
		{Text: "Buy Now", Key: KeyBuy, Payload: id},
		{Text: "View Details", Key: KeyDetails, Payload: id},
	}}
	if len(p.Images) > 0 {
		msg.MediaRef = p.Images[0]
	}
	return msg
}

func (e *Engine) describeUser(id int64) string {
	if u, err := e.store.GetUser(id); err == nil {
		return u.DisplayName()
	}
	return strconv.FormatInt(id, 10)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
