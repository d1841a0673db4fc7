// Package wizard drives the five-step sell flow that turns a draft into a
// pending product.
package wizard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/marketbot/core/logger"
	"github.com/m3rciful/marketbot/market"
	"github.com/m3rciful/marketbot/market/session"
	"github.com/m3rciful/marketbot/market/store"
)

// Choice keys used by the category step.
const (
	KeyCategory = "category"
	KeyCancel   = "cancel_product"
)

var (
	continueTokens = map[string]bool{"next": true, "done": true}
	skipTokens     = map[string]bool{"/skip": true, "skip": true}
)

// Input is one inbound item fed to the current step. Exactly one of Text,
// MediaRef or Choice is meaningful.
type Input struct {
	Text     string
	MediaRef string
	Choice   *market.Choice
}

// Result describes what a step did.
type Result struct {
	From    session.State
	State   session.State
	Replies []market.Message
	// Ack is the feedback for the originating choice, if any.
	Ack string
	// Ignored is set when the input was not meaningful for the step.
	Ignored   bool
	Cancelled bool
	// Submitted is the product created by the final step.
	Submitted *market.Product
}

type stepFunc func(w *Wizard, userID int64, s session.Session, in Input) (Result, error)

var steps = map[session.State]stepFunc{
	session.StateAwaitingImages:      (*Wizard).awaitingImages,
	session.StateAwaitingTitle:       (*Wizard).awaitingTitle,
	session.StateAwaitingPrice:       (*Wizard).awaitingPrice,
	session.StateAwaitingDescription: (*Wizard).awaitingDescription,
	session.StateAwaitingCategory:    (*Wizard).awaitingCategory,
}

// Owns reports whether st is one of the wizard's steps.
func Owns(st session.State) bool {
	_, ok := steps[st]
	return ok
}

// Wizard is the listing state machine.
type Wizard struct {
	sessions session.Manager
	store    store.Store
	now      func() time.Time
}

// New builds a Wizard over the given session manager and store.
func New(sessions session.Manager, st store.Store) *Wizard {
	return &Wizard{sessions: sessions, store: st, now: time.Now}
}

// Start begins a new listing for userID, discarding any other flow.
func (w *Wizard) Start(userID int64) market.Message {
	w.sessions.Start(userID, session.StateAwaitingImages, session.ListingDraft{})
	return md("*Step 1/5: Send 1-5 photos*\nSend photos of your item, then type *next*.")
}

// Step feeds in to the user's current step. It returns market.ErrNoActiveSession
// when the user is not inside the wizard. A *market.ValidationError leaves the
// flow where it was; Result.Replies then carries the message for the user.
func (w *Wizard) Step(ctx context.Context, userID int64, in Input) (Result, error) {
	s, ok := w.sessions.Get(userID)
	if !ok {
		return Result{}, market.ErrNoActiveSession
	}
	fn, ok := steps[s.State]
	if !ok {
		return Result{}, market.ErrNoActiveSession
	}
	res, err := fn(w, userID, s, in)
	res.From = s.State
	if res.State == "" {
		res.State = s.State
	}

	attrs := []slog.Attr{
		slog.Int64("user_id", userID),
		slog.String("state", string(res.State)),
		slog.String("from", string(res.From)),
	}
	if res.Ignored {
		attrs = append(attrs, slog.String("status", "skip"))
	}
	if err != nil {
		attrs = append(attrs, slog.String("status", "fail"), slog.String("err", err.Error()))
	}
	logger.Debug(ctx, "service.wizard", "wizard.step", attrs...)
	return res, err
}

func (w *Wizard) awaitingImages(userID int64, s session.Session, in Input) (Result, error) {
	d, _ := s.Listing()
	switch {
	case in.MediaRef != "":
		if len(d.Images) >= market.MaxImages {
			return Result{Ignored: true}, nil
		}
		next := session.StateAwaitingImages
		if len(d.Images)+1 >= market.MaxImages {
			next = session.StateAwaitingTitle
		}
		err := w.sessions.Advance(userID, next, func(s *session.Session) error {
			d, _ := s.Listing()
			d.Images = append(d.Images, in.MediaRef)
			s.Draft = d
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		if next == session.StateAwaitingTitle {
			return Result{State: next, Replies: []market.Message{
				md(fmt.Sprintf("Photo received! That's %d photos, the maximum.", market.MaxImages)),
				titlePrompt(),
			}}, nil
		}
		return Result{State: next, Replies: []market.Message{
			md("Photo received! Type *next* or send more photos."),
		}}, nil

	case in.Choice == nil && continueTokens[strings.ToLower(strings.TrimSpace(in.Text))]:
		if len(d.Images) == 0 {
			return Result{Ignored: true}, nil
		}
		if err := w.sessions.Advance(userID, session.StateAwaitingTitle, nil); err != nil {
			return Result{}, err
		}
		return Result{State: session.StateAwaitingTitle, Replies: []market.Message{titlePrompt()}}, nil
	}
	return Result{Ignored: true}, nil
}

func (w *Wizard) awaitingTitle(userID int64, _ session.Session, in Input) (Result, error) {
	if in.Choice != nil || in.MediaRef != "" {
		return Result{Ignored: true}, nil
	}
	if strings.TrimSpace(in.Text) == "" {
		return Result{Replies: []market.Message{titlePrompt()}}, nil
	}
	err := w.sessions.Advance(userID, session.StateAwaitingPrice, func(s *session.Session) error {
		d, _ := s.Listing()
		d.Title = in.Text
		s.Draft = d
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{State: session.StateAwaitingPrice, Replies: []market.Message{
		md("*Step 3/5: Enter price in ETB*"),
	}}, nil
}

func (w *Wizard) awaitingPrice(userID int64, _ session.Session, in Input) (Result, error) {
	if in.Choice != nil || in.MediaRef != "" {
		return Result{Ignored: true}, nil
	}
	price, err := ParsePrice(in.Text)
	if err != nil {
		return Result{Replies: []market.Message{{Text: "Invalid price. Use numbers only."}}}, err
	}
	err = w.sessions.Advance(userID, session.StateAwaitingDescription, func(s *session.Session) error {
		d, _ := s.Listing()
		d.Price = price
		s.Draft = d
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{State: session.StateAwaitingDescription, Replies: []market.Message{
		md("*Step 4/5: Description (optional)*\nType /skip to skip"),
	}}, nil
}

func (w *Wizard) awaitingDescription(userID int64, _ session.Session, in Input) (Result, error) {
	if in.Choice != nil || in.MediaRef != "" {
		return Result{Ignored: true}, nil
	}
	desc := in.Text
	if skipTokens[strings.ToLower(strings.TrimSpace(desc))] {
		desc = ""
	}
	err := w.sessions.Advance(userID, session.StateAwaitingCategory, func(s *session.Session) error {
		d, _ := s.Listing()
		d.Description = desc
		s.Draft = d
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{State: session.StateAwaitingCategory, Replies: []market.Message{
		{Text: "*Step 5/5: Select Category*", Options: market.Options{Markdown: true, Inline: CategoryKeyboard()}},
	}}, nil
}

func (w *Wizard) awaitingCategory(userID int64, s session.Session, in Input) (Result, error) {
	if in.Choice == nil {
		return Result{Ignored: true}, nil
	}
	switch in.Choice.Key {
	case KeyCancel:
		w.sessions.End(userID)
		return Result{
			State:     session.StateIdle,
			Cancelled: true,
			Ack:       "Cancelled",
			Replies:   []market.Message{{Text: "Product creation cancelled."}},
		}, nil
	case KeyCategory:
		idx, err := strconv.Atoi(in.Choice.Payload)
		if err != nil {
			return Result{Ignored: true}, nil
		}
		category, ok := market.CategoryByIndex(idx)
		if !ok {
			return Result{Ignored: true}, nil
		}
		return w.finalize(userID, s, category)
	}
	return Result{Ignored: true}, nil
}

func (w *Wizard) finalize(userID int64, s session.Session, category string) (Result, error) {
	d, _ := s.Listing()
	p := market.Product{
		SellerID:    userID,
		Title:       d.Title,
		Price:       d.Price,
		Description: d.Description,
		Category:    category,
		Images:      append([]string(nil), d.Images...),
		Status:      market.StatusPending,
		CreatedAt:   w.now(),
	}
	if u, err := w.store.GetUser(userID); err == nil {
		p.SellerUsername = u.Username
	}
	p.ID = w.store.NextProductID()
	if err := market.ValidateProduct(p); err != nil {
		return Result{Replies: []market.Message{{Text: "Something is wrong with this listing: " + err.Error()}}}, err
	}
	w.store.PutProduct(p)
	w.sessions.End(userID)

	return Result{
		State:     session.StateIdle,
		Ack:       "Submitted for approval!",
		Submitted: &p,
		Replies: []market.Message{
			md(fmt.Sprintf("*Product Submitted!*\nID: #%d\nStatus: Pending Approval", p.ID)),
		},
	}, nil
}

// ParsePrice accepts a positive base-10 integer.
func ParsePrice(text string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, &market.ValidationError{Field: "price", Reason: "not a number"}
	}
	if v <= 0 {
		return 0, &market.ValidationError{Field: "price", Reason: "must be positive"}
	}
	return v, nil
}

// CategoryKeyboard lists every category followed by a cancel button.
func CategoryKeyboard() [][]market.Button {
	rows := make([][]market.Button, 0, len(market.Categories)+1)
	for i, c := range market.Categories {
		rows = append(rows, []market.Button{{Text: c, Key: KeyCategory, Payload: strconv.Itoa(i)}})
	}
	rows = append(rows, []market.Button{{Text: "❌ Cancel", Key: KeyCancel}})
	return rows
}

func titlePrompt() market.Message {
	return md("*Step 2/5: Enter product title*")
}

func md(text string) market.Message {
	return market.Message{Text: text, Options: market.Options{Markdown: true}}
}
