// Package markettest provides an in-memory Transport for tests.
package markettest

import (
	"context"
	"errors"
	"sync"

	"github.com/m3rciful/marketbot/market"
)

// ErrUnreachable is returned for recipients registered with Fail.
var ErrUnreachable = errors.New("markettest: recipient unreachable")

// Sent is one recorded outbound call.
type Sent struct {
	Kind      string // text, media, ack, edit
	ChatID    int64
	Text      string
	MediaRef  string
	ChoiceID  string
	MessageID int
	Options   market.Options
}

// Transport records every call and fails deliveries for selected chats.
type Transport struct {
	mu       sync.Mutex
	calls    []Sent
	failing  map[int64]bool
	badMedia bool
}

// NewTransport returns an empty recording transport.
func NewTransport() *Transport {
	return &Transport{failing: make(map[int64]bool)}
}

// Fail makes every delivery to chatID return ErrUnreachable.
func (t *Transport) Fail(chatIDs ...int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range chatIDs {
		t.failing[id] = true
	}
}

// FailMedia makes every media send fail while text sends still succeed.
func (t *Transport) FailMedia() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.badMedia = true
}

func (t *Transport) record(s Sent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, s)
	if s.Kind != "ack" && t.failing[s.ChatID] {
		return ErrUnreachable
	}
	if s.Kind == "media" && t.badMedia {
		return ErrUnreachable
	}
	return nil
}

func (t *Transport) SendText(_ context.Context, chatID int64, text string, opts market.Options) error {
	return t.record(Sent{Kind: "text", ChatID: chatID, Text: text, Options: opts})
}

func (t *Transport) SendMedia(_ context.Context, chatID int64, mediaRef, caption string, opts market.Options) error {
	return t.record(Sent{Kind: "media", ChatID: chatID, MediaRef: mediaRef, Text: caption, Options: opts})
}

func (t *Transport) AcknowledgeChoice(_ context.Context, choiceID, feedback string) error {
	return t.record(Sent{Kind: "ack", ChoiceID: choiceID, Text: feedback})
}

func (t *Transport) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	return t.record(Sent{Kind: "edit", ChatID: chatID, MessageID: messageID, Text: text})
}

// Calls returns a copy of all recorded calls.
func (t *Transport) Calls() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.calls...)
}

// To returns the recorded deliveries addressed to chatID.
func (t *Transport) To(chatID int64) []Sent {
	var out []Sent
	for _, c := range t.Calls() {
		if c.Kind != "ack" && c.ChatID == chatID {
			out = append(out, c)
		}
	}
	return out
}

// Acks returns the recorded choice acknowledgements.
func (t *Transport) Acks() []Sent {
	var out []Sent
	for _, c := range t.Calls() {
		if c.Kind == "ack" {
			out = append(out, c)
		}
	}
	return out
}

// Last returns the last delivery addressed to chatID.
func (t *Transport) Last(chatID int64) (Sent, bool) {
	to := t.To(chatID)
	if len(to) == 0 {
		return Sent{}, false
	}
	return to[len(to)-1], true
}

// Reset drops recorded calls but keeps failure settings.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

var _ market.Transport = (*Transport)(nil)
