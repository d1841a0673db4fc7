// Package keyboard builds Telegram reply and inline markups.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn is one inline button. Unique and Data end up in the callback
// as "\f<Unique>|<Data>".
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// ReplyButtons builds a resized reply keyboard, one row per slice.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	m.ReplyKeyboard = make([][]tele.ReplyButton, 0, len(rows))
	for _, labels := range rows {
		row := make([]tele.ReplyButton, 0, len(labels))
		for _, label := range labels {
			row = append(row, tele.ReplyButton{Text: label})
		}
		m.ReplyKeyboard = append(m.ReplyKeyboard, row)
	}
	return m
}

// InlineButtonsRows builds an inline keyboard, one row per slice.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.InlineKeyboard = make([][]tele.InlineButton, 0, len(rows))
	for _, btns := range rows {
		row := make([]tele.InlineButton, 0, len(btns))
		for _, b := range btns {
			row = append(row, *m.Data(b.Text, b.Unique, b.Data).Inline())
		}
		m.InlineKeyboard = append(m.InlineKeyboard, row)
	}
	return m
}
