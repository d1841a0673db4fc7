package market

import "context"

// Button is an inline choice attached to a message.
type Button struct {
	Text    string
	Key     string
	Payload string
}

// Options describe how an outbound message is rendered.
type Options struct {
	Markdown bool
	// Inline rows of choice buttons attached to the message.
	Inline [][]Button
	// Menu rows of reply-keyboard labels.
	Menu [][]string
}

// HasKeyboard reports whether the message carries buttons of either kind.
func (o Options) HasKeyboard() bool {
	return len(o.Inline) > 0 || len(o.Menu) > 0
}

// Message is a rendered outbound item. MediaRef, when set, selects a media send
// with Text as caption.
type Message struct {
	Text     string
	MediaRef string
	Options  Options
}

// Transport is the chat client collaborator.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, opts Options) error
	SendMedia(ctx context.Context, chatID int64, mediaRef, caption string, opts Options) error
	AcknowledgeChoice(ctx context.Context, choiceID, feedback string) error
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
}

// Deliver sends msg through t, choosing a media or text send.
func Deliver(ctx context.Context, t Transport, chatID int64, msg Message) error {
	if msg.MediaRef != "" {
		return t.SendMedia(ctx, chatID, msg.MediaRef, msg.Text, msg.Options)
	}
	return t.SendText(ctx, chatID, msg.Text, msg.Options)
}
