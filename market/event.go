package market

// Event is an inbound update consumed by the engine.
type Event interface {
	Sender() int64
	Chat() int64
}

// TextMessage is a free-text message or a command.
type TextMessage struct {
	UserID    int64
	ChatID    int64
	Text      string
	FirstName string
	Username  string
}

// MediaMessage carries an opaque media reference, e.g. a photo file id.
type MediaMessage struct {
	UserID    int64
	ChatID    int64
	MediaRef  string
	FirstName string
	Username  string
}

// Choice is a button press. Key selects the action, Payload carries its argument.
type Choice struct {
	ID        string
	UserID    int64
	ChatID    int64
	Key       string
	Payload   string
	MessageID int
	FirstName string
	Username  string
}

func (m TextMessage) Sender() int64  { return m.UserID }
func (m TextMessage) Chat() int64    { return m.ChatID }
func (m MediaMessage) Sender() int64 { return m.UserID }
func (m MediaMessage) Chat() int64   { return m.ChatID }
func (c Choice) Sender() int64       { return c.UserID }
func (c Choice) Chat() int64         { return c.ChatID }

// Token joins key and payload the way buttons encode them.
func (c Choice) Token() string {
	if c.Payload == "" {
		return c.Key
	}
	return c.Key + "|" + c.Payload
}
