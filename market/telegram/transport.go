// Package telegram adapts the marketplace engine to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"sync"

	tghelpers "github.com/m3rciful/marketbot/core/telegram/helpers"
	"github.com/m3rciful/marketbot/core/telegram/keyboard"
	"github.com/m3rciful/marketbot/core/telegram/sender"
	"github.com/m3rciful/marketbot/market"

	tele "gopkg.in/telebot.v4"
)

// ErrDetached is returned by Transport calls made before Attach.
var ErrDetached = errors.New("telegram: transport not attached to a bot")

// Bot is the subset of *tele.Bot used for outbound calls.
type Bot interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error)
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
}

// Transport implements market.Transport over a Telegram bot. Calls run
// synchronously through the dispatcher so retries and send logs are shared
// with the rest of the runtime.
type Transport struct {
	mu   sync.RWMutex
	bot  Bot
	disp *sender.Dispatcher
}

var _ market.Transport = (*Transport)(nil)

// NewTransport builds a detached Transport. A nil dispatcher calls the bot directly.
func NewTransport(d *sender.Dispatcher) *Transport {
	return &Transport{disp: d}
}

// Attach binds the bot once the runtime has created it.
func (t *Transport) Attach(b Bot) {
	t.mu.Lock()
	t.bot = b
	t.mu.Unlock()
}

func (t *Transport) call(ctx context.Context, action, endpoint string, fn func(Bot) error) error {
	t.mu.RLock()
	b := t.bot
	t.mu.RUnlock()
	if b == nil {
		return ErrDetached
	}
	run := func() error { return fn(b) }
	if t.disp == nil {
		return run()
	}
	return t.disp.Do(ctx, action, endpoint, run)
}

// send is call for new messages; successes are counted on the request.
func (t *Transport) send(ctx context.Context, action, endpoint string, fn func(Bot) error, withKB bool) error {
	err := t.call(ctx, action, endpoint, fn)
	if err == nil {
		tghelpers.NoteReply(ctx, withKB)
	}
	return err
}

// SendText sends a text message to chatID.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string, opts market.Options) error {
	return t.send(ctx, "send.text", "sendMessage", func(b Bot) error {
		_, err := b.Send(tele.ChatID(chatID), text, sendOptions(opts))
		return err
	}, opts.HasKeyboard())
}

// SendMedia sends a photo by file id with text as caption.
func (t *Transport) SendMedia(ctx context.Context, chatID int64, mediaRef, caption string, opts market.Options) error {
	return t.send(ctx, "send.photo", "sendPhoto", func(b Bot) error {
		photo := &tele.Photo{File: tele.File{FileID: mediaRef}, Caption: caption}
		_, err := b.Send(tele.ChatID(chatID), photo, sendOptions(opts))
		return err
	}, opts.HasKeyboard())
}

// AcknowledgeChoice answers a callback query with an optional toast.
func (t *Transport) AcknowledgeChoice(ctx context.Context, choiceID, feedback string) error {
	return t.call(ctx, "callback.answer", "answerCallbackQuery", func(b Bot) error {
		return b.Respond(&tele.Callback{ID: choiceID}, &tele.CallbackResponse{Text: feedback})
	})
}

// EditText replaces the text of a sent message and drops its inline keyboard.
// Photo messages have no text, so their caption is edited instead.
func (t *Transport) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	msg := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	return t.call(ctx, "edit.text", "editMessageText", func(b Bot) error {
		_, err := b.Edit(msg, text, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
		if err == nil {
			return nil
		}
		if _, capErr := b.EditCaption(msg, text, &tele.SendOptions{ParseMode: tele.ModeMarkdown}); capErr != nil {
			return errors.Join(err, capErr)
		}
		return nil
	})
}

func sendOptions(opts market.Options) *tele.SendOptions {
	so := &tele.SendOptions{}
	if opts.Markdown {
		so.ParseMode = tele.ModeMarkdown
	}
	switch {
	case len(opts.Inline) > 0:
		rows := make([][]keyboard.InlineBtn, 0, len(opts.Inline))
		for _, row := range opts.Inline {
			r := make([]keyboard.InlineBtn, 0, len(row))
			for _, b := range row {
				r = append(r, keyboard.InlineBtn{Text: b.Text, Unique: b.Key, Data: b.Payload})
			}
			rows = append(rows, r)
		}
		so.ReplyMarkup = keyboard.InlineButtonsRows(rows...)
	case len(opts.Menu) > 0:
		so.ReplyMarkup = keyboard.ReplyButtons(opts.Menu...)
	}
	return so
}
