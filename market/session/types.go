package session

import "time"

// State identifies a step of a guided conversation.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"

	StateAwaitingImages      State = "awaiting_product_images"
	StateAwaitingTitle       State = "awaiting_product_title"
	StateAwaitingPrice       State = "awaiting_product_price"
	StateAwaitingDescription State = "awaiting_product_description"
	StateAwaitingCategory    State = "awaiting_product_category"

	StateContactAdmin  State = "awaiting_admin_message"
	StateContactSeller State = "awaiting_seller_message"

	StateMessageTarget State = "awaiting_message_target"
	StateMessageText   State = "awaiting_message_text"
	StateBroadcastText State = "awaiting_broadcast_text"
)

// Draft is the data accumulated by a flow. Implemented by the *Draft types in this package.
type Draft interface {
	clone() Draft
}

// ListingDraft is a product in progress.
type ListingDraft struct {
	Images      []string
	Title       string
	Price       int64
	Description string
}

// ContactDraft is a buyer or user message in progress. RecipientID is zero
// when the message goes to the administrators.
type ContactDraft struct {
	ProductID   int64
	RecipientID int64
}

// MessageDraft is an admin-to-user message in progress.
type MessageDraft struct {
	TargetID int64
}

// BroadcastDraft marks an admin broadcast in progress.
type BroadcastDraft struct{}

func (d ListingDraft) clone() Draft {
	d.Images = append([]string(nil), d.Images...)
	return d
}

func (d ContactDraft) clone() Draft   { return d }
func (d MessageDraft) clone() Draft   { return d }
func (d BroadcastDraft) clone() Draft { return d }

// Session stores conversation state and draft data for a user.
type Session struct {
	State     State
	Draft     Draft
	StartedAt time.Time
}

// Listing returns the listing draft if the session carries one.
func (s Session) Listing() (ListingDraft, bool) {
	d, ok := s.Draft.(ListingDraft)
	return d, ok
}

// Contact returns the contact draft if the session carries one.
func (s Session) Contact() (ContactDraft, bool) {
	d, ok := s.Draft.(ContactDraft)
	return d, ok
}

// Message returns the admin message draft if the session carries one.
func (s Session) Message() (MessageDraft, bool) {
	d, ok := s.Draft.(MessageDraft)
	return d, ok
}

func (s Session) clone() Session {
	if s.Draft != nil {
		s.Draft = s.Draft.clone()
	}
	return s
}

// Manager orchestrates user sessions. A user has at most one session.
type Manager interface {
	// Get returns a copy of the user's session.
	Get(userID int64) (Session, bool)
	// Start replaces any prior session unconditionally.
	Start(userID int64, st State, draft Draft)
	// Advance moves the session to st after mutate succeeds. It returns
	// market.ErrNoActiveSession when the user has no session. An error from
	// mutate leaves the session untouched.
	Advance(userID int64, st State, mutate func(s *Session) error) error
	// End removes the user's session.
	End(userID int64)

	GetState(userID int64) State
	InProgress(userID int64) bool
	Count() int
}
