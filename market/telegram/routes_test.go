package telegram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/marketbot/core/telegram"
	"github.com/m3rciful/marketbot/market"
	"github.com/m3rciful/marketbot/market/engine"
)

type recorder struct {
	events []market.Event
}

func (r *recorder) Handle(_ context.Context, ev market.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func TestEventsFromMessages(t *testing.T) {
	user := &tele.User{ID: 5, FirstName: "Abel", Username: "abel"}
	chat := &tele.Chat{ID: 500}

	text, ok := textEvent(&tele.Message{Sender: user, Chat: chat, Text: "Sell Item"})
	require.True(t, ok)
	assert.Equal(t, market.TextMessage{UserID: 5, ChatID: 500, Text: "Sell Item", FirstName: "Abel", Username: "abel"}, text)

	_, ok = textEvent(&tele.Message{Sender: user, Chat: chat})
	assert.False(t, ok)

	photo, ok := photoEvent(&tele.Message{Sender: user, Chat: chat, Photo: &tele.Photo{File: tele.File{FileID: "big"}}})
	require.True(t, ok)
	assert.Equal(t, "big", photo.MediaRef)

	_, ok = photoEvent(&tele.Message{Sender: user, Chat: chat})
	assert.False(t, ok)
}

func TestChoiceFromCallback(t *testing.T) {
	cb := &tele.Callback{
		ID:      "cb-9",
		Sender:  &tele.User{ID: 1},
		Message: &tele.Message{ID: 31, Chat: &tele.Chat{ID: 100}},
		Data:    "\fapprove|12",
	}
	ch, ok := choiceEvent(cb)
	require.True(t, ok)
	assert.Equal(t, market.Choice{ID: "cb-9", UserID: 1, ChatID: 100, Key: "approve", Payload: "12", MessageID: 31}, ch)

	ch, ok = choiceEvent(&tele.Callback{ID: "x", Sender: &tele.User{ID: 2}, Data: "\fcancel_product"})
	require.True(t, ok)
	assert.Equal(t, int64(2), ch.ChatID)
	assert.Empty(t, ch.Payload)
}

func TestRegisterWiresCommandsAndLabels(t *testing.T) {
	reg := tg.NewRegistry()
	rec := &recorder{}
	opts := RouteOptions{
		Commands: []engine.CommandInfo{
			{Name: "sell", Description: "List an item", Labels: []string{"Sell Item"}},
			{Name: "stats", Description: "Stats", Admin: true},
		},
		ChoiceKeys: []string{"approve", "buy"},
	}
	require.NoError(t, Register(reg, rec, opts))

	key, cmd, ok := reg.LookupCommand("Sell Item")
	require.True(t, ok)
	assert.Equal(t, "/sell", key)
	assert.NotNil(t, cmd.Handler)

	visible := reg.ListCommands(true)
	require.Len(t, visible, 1)
	assert.Equal(t, "/sell", visible[0].Text)
	assert.Len(t, reg.ListCommands(false), 2)

	assert.Equal(t, []string{"approve", "buy"}, reg.ListCallbacks())
	assert.NotNil(t, reg.TextFallback())
	assert.NotNil(t, reg.CallbackNotFound())

	assert.Error(t, Register(reg, rec, RouteOptions{ChoiceKeys: []string{"approve"}}))

	routes := Routes(reg, rec, opts)
	// two commands, text, photo, callback
	assert.Len(t, routes, 5)
}
