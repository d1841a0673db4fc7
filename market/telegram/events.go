package telegram

import (
	"github.com/m3rciful/marketbot/core/telegram/callbacks"
	"github.com/m3rciful/marketbot/market"

	tele "gopkg.in/telebot.v4"
)

func textEvent(m *tele.Message) (market.TextMessage, bool) {
	if m == nil || m.Sender == nil || m.Text == "" {
		return market.TextMessage{}, false
	}
	return market.TextMessage{
		UserID:    m.Sender.ID,
		ChatID:    chatOf(m, m.Sender),
		Text:      m.Text,
		FirstName: m.Sender.FirstName,
		Username:  m.Sender.Username,
	}, true
}

// photoEvent uses the file id Telebot picks for Message.Photo, the largest size.
func photoEvent(m *tele.Message) (market.MediaMessage, bool) {
	if m == nil || m.Sender == nil || m.Photo == nil || m.Photo.FileID == "" {
		return market.MediaMessage{}, false
	}
	return market.MediaMessage{
		UserID:    m.Sender.ID,
		ChatID:    chatOf(m, m.Sender),
		MediaRef:  m.Photo.FileID,
		FirstName: m.Sender.FirstName,
		Username:  m.Sender.Username,
	}, true
}

func choiceEvent(cb *tele.Callback) (market.Choice, bool) {
	if cb == nil || cb.Sender == nil {
		return market.Choice{}, false
	}
	key, payload := callbacks.ParseCallbackData(cb)
	ch := market.Choice{
		ID:        cb.ID,
		UserID:    cb.Sender.ID,
		ChatID:    chatOf(cb.Message, cb.Sender),
		Key:       key,
		Payload:   payload,
		FirstName: cb.Sender.FirstName,
		Username:  cb.Sender.Username,
	}
	if cb.Message != nil {
		ch.MessageID = cb.Message.ID
	}
	return ch, true
}

func chatOf(m *tele.Message, u *tele.User) int64 {
	if m != nil && m.Chat != nil {
		return m.Chat.ID
	}
	return u.ID
}
