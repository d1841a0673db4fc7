// Package moderation implements the admin review workflow for submitted
// products: pending → approved | rejected, publication and seller notices.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/marketbot/core/logger"
	"github.com/m3rciful/marketbot/core/telegram/format"
	"github.com/m3rciful/marketbot/market"
	"github.com/m3rciful/marketbot/market/notify"
	"github.com/m3rciful/marketbot/market/store"
)

// Choice keys attached to the admin review card.
const (
	KeyApprove = "approve"
	KeyReject  = "reject"
)

// Config lists the administrators and the public channel.
type Config struct {
	Admins []int64
	// ChannelID receives approved listings. Zero disables publication.
	ChannelID int64
	Currency  string
}

// Workflow drives product moderation.
type Workflow struct {
	store     store.Store
	fanout    *notify.Fanout
	transport market.Transport
	admins    []int64
	adminSet  map[int64]struct{}
	channelID int64
	currency  string
	now       func() time.Time
}

// New builds the workflow. The transport is used for choice acknowledgements
// and card edits; deliveries go through fanout.
func New(st store.Store, fanout *notify.Fanout, t market.Transport, cfg Config) *Workflow {
	set := make(map[int64]struct{}, len(cfg.Admins))
	for _, id := range cfg.Admins {
		set[id] = struct{}{}
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "ETB"
	}
	return &Workflow{
		store:     st,
		fanout:    fanout,
		transport: t,
		admins:    append([]int64(nil), cfg.Admins...),
		adminSet:  set,
		channelID: cfg.ChannelID,
		currency:  currency,
		now:       time.Now,
	}
}

// IsAdmin reports whether id belongs to an administrator.
func (w *Workflow) IsAdmin(id int64) bool {
	_, ok := w.adminSet[id]
	return ok
}

// Admins returns the configured administrator ids.
func (w *Workflow) Admins() []int64 {
	return append([]int64(nil), w.admins...)
}

// Pending lists products awaiting review, oldest first.
func (w *Workflow) Pending() []market.Product {
	return w.store.ListProducts(store.ByStatus(market.StatusPending))
}

// Submit announces a freshly created product to every administrator with
// approve and reject choices attached.
func (w *Workflow) Submit(ctx context.Context, p market.Product) notify.Result {
	card := w.ReviewCard(p)
	res := w.fanout.Notify(ctx, w.admins, func(int64) market.Message { return card })
	logger.Info(ctx, "service.moderation", "product.submitted",
		slog.Int64("product_id", p.ID),
		slog.Int64("user_id", p.SellerID),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
	)
	return res
}

// Request is one admin decision coming from a review card.
type Request struct {
	ProductID int64
	AdminID   int64
	Approve   bool
	// ChoiceID identifies the button press to acknowledge.
	ChoiceID string
	// ChatID and MessageID locate the review card to update, when known.
	ChatID    int64
	MessageID int
}

// Decision reports what a successful Decide did downstream.
type Decision struct {
	Product        market.Product
	Published      bool
	SellerNotified bool
}

// Decide applies an admin decision. The status change is local and atomic;
// the originating choice is acknowledged exactly once right after it, before
// any delivery. Fails with market.ErrNotFound, market.ErrAlreadyDecided or
// market.ErrForbidden without touching the product.
func (w *Workflow) Decide(ctx context.Context, req Request) (Decision, error) {
	p, err := w.transition(req)
	w.acknowledge(ctx, req, p, err)
	if err != nil {
		logger.Info(ctx, "service.moderation", "product.decide",
			slog.String("status", "skip"),
			slog.Int64("product_id", req.ProductID),
			slog.Int64("admin_id", req.AdminID),
			slog.String("err", err.Error()),
		)
		return Decision{Product: p}, err
	}

	w.editCard(ctx, req, p)

	d := Decision{Product: p}
	if p.Status == market.StatusApproved {
		d.Published = w.publish(ctx, p)
	}
	d.SellerNotified = w.notifySeller(ctx, p)

	logger.Info(ctx, "service.moderation", "product.decide",
		slog.String("status", "ok"),
		slog.Int64("product_id", p.ID),
		slog.Int64("admin_id", req.AdminID),
		slog.String("outcome", string(p.Status)),
		slog.Bool("published", d.Published),
		slog.Bool("seller_notified", d.SellerNotified),
	)
	return d, nil
}

func (w *Workflow) transition(req Request) (market.Product, error) {
	if !w.IsAdmin(req.AdminID) {
		return market.Product{}, market.ErrForbidden
	}
	return w.store.UpdateProduct(req.ProductID, func(p *market.Product) error {
		if p.Status.Terminal() {
			return market.ErrAlreadyDecided
		}
		if req.Approve {
			p.Status = market.StatusApproved
			admin := req.AdminID
			p.ApprovedBy = &admin
		} else {
			p.Status = market.StatusRejected
		}
		p.DecidedAt = w.now()
		return nil
	})
}

func (w *Workflow) acknowledge(ctx context.Context, req Request, p market.Product, err error) {
	if req.ChoiceID == "" {
		return
	}
	var feedback string
	switch {
	case err == nil && p.Status == market.StatusApproved:
		feedback = "Approved"
	case err == nil:
		feedback = "Rejected"
	case errors.Is(err, market.ErrAlreadyDecided):
		feedback = "Already " + string(p.Status)
	case errors.Is(err, market.ErrNotFound):
		feedback = "Product not found"
	case errors.Is(err, market.ErrForbidden):
		feedback = "Admins only"
	default:
		feedback = "Failed"
	}
	if ackErr := w.transport.AcknowledgeChoice(ctx, req.ChoiceID, feedback); ackErr != nil {
		logger.Warn(ctx, "service.moderation", "choice.ack_failed",
			slog.String("err", ackErr.Error()),
		)
	}
}

func (w *Workflow) editCard(ctx context.Context, req Request, p market.Product) {
	if req.ChatID == 0 || req.MessageID == 0 {
		return
	}
	verdict := "❌ Rejected"
	if p.Status == market.StatusApproved {
		verdict = "✅ Approved"
	}
	text := fmt.Sprintf("%s\n\n%s by admin %d", w.summary(p), verdict, req.AdminID)
	if err := w.transport.EditText(ctx, req.ChatID, req.MessageID, text); err != nil {
		logger.Debug(ctx, "service.moderation", "card.edit_failed",
			slog.Int64("product_id", p.ID),
			slog.String("err", err.Error()),
		)
	}
}

func (w *Workflow) publish(ctx context.Context, p market.Product) bool {
	if w.channelID == 0 {
		return false
	}
	post := w.ChannelPost(p)
	res := w.fanout.Notify(ctx, []int64{w.channelID}, func(int64) market.Message { return post })
	return res.Sent == 1
}

func (w *Workflow) notifySeller(ctx context.Context, p market.Product) bool {
	var text string
	if p.Status == market.StatusApproved {
		text = fmt.Sprintf("🎉 Your product *%s* has been approved and is now live!", format.MD(p.Title))
	} else {
		text = fmt.Sprintf("Your product *%s* was rejected by the moderators.", format.MD(p.Title))
	}
	err := w.fanout.Send(ctx, p.SellerID, market.Message{Text: text, Options: market.Options{Markdown: true}})
	if err != nil {
		logger.Warn(ctx, "service.moderation", "seller.notify_failed",
			slog.Int64("product_id", p.ID),
			slog.Int64("user_id", p.SellerID),
			slog.String("err", err.Error()),
		)
		return false
	}
	return true
}

// ReviewCard renders the message administrators receive for a new product.
func (w *Workflow) ReviewCard(p market.Product) market.Message {
	id := strconv.FormatInt(p.ID, 10)
	msg := market.Message{
		Text: "*NEW PRODUCT*\n" + w.summary(p),
		Options: market.Options{
			Markdown: true,
			Inline: [][]market.Button{{
				{Text: "✅ Approve", Key: KeyApprove, Payload: id},
				{Text: "❌ Reject", Key: KeyReject, Payload: id},
			}},
		},
	}
	if len(p.Images) > 0 {
		msg.MediaRef = p.Images[0]
	}
	return msg
}

// ChannelPost renders the public announcement of an approved product.
func (w *Workflow) ChannelPost(p market.Product) market.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", format.MD(p.Title))
	fmt.Fprintf(&b, "Price: %d %s\n", p.Price, w.currency)
	fmt.Fprintf(&b, "Category: %s\n", format.MD(p.Category))
	if p.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", format.MD(p.Description))
	}
	if handle := w.sellerHandle(p); handle != "" {
		fmt.Fprintf(&b, "\nSeller: @%s", format.MD(handle))
	}
	msg := market.Message{Text: b.String(), Options: market.Options{Markdown: true}}
	if len(p.Images) > 0 {
		msg.MediaRef = p.Images[0]
	}
	return msg
}

// sellerHandle prefers the seller's current username over the one captured
// at listing time.
func (w *Workflow) sellerHandle(p market.Product) string {
	if u, err := w.store.GetUser(p.SellerID); err == nil && u.Username != "" {
		return u.Username
	}
	return p.SellerUsername
}

func (w *Workflow) summary(p market.Product) string {
	seller := strconv.FormatInt(p.SellerID, 10)
	if u, err := w.store.GetUser(p.SellerID); err == nil {
		seller = format.MD(u.DisplayName())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ID: #%d\n", p.ID)
	fmt.Fprintf(&b, "Title: %s\n", format.MD(p.Title))
	fmt.Fprintf(&b, "Price: %d %s\n", p.Price, w.currency)
	fmt.Fprintf(&b, "Category: %s\n", format.MD(p.Category))
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", format.MD(p.Description))
	}
	fmt.Fprintf(&b, "Photos: %d\n", len(p.Images))
	fmt.Fprintf(&b, "Seller: %s", seller)
	return b.String()
}
