// Package market holds the domain types shared by the marketplace bot:
// users, products, inbound events and the outbound transport port.
package market

import (
	"fmt"
	"time"
)

// User is a chat participant known to the marketplace.
type User struct {
	ID         int64
	FirstName  string
	Username   string
	JoinedAt   time.Time
	Department string
	Year       string
}

// DisplayName returns the first name, falling back to the handle or the numeric id.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return fmt.Sprintf("user %d", u.ID)
	}
}

// Status is the moderation status of a product.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further moderation transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// MaxImages caps the number of media references attached to a listing.
const MaxImages = 5

// Categories is the closed set of listing categories, in menu order.
var Categories = []string{
	"Academic Books",
	"Electronics",
	"Clothes & Fashion",
	"Furniture & Home",
	"Study Materials",
	"Entertainment",
	"Food & Drinks",
	"Transportation",
	"Accessories",
	"Others",
}

// CategoryByIndex resolves a category from its position in Categories.
func CategoryByIndex(i int) (string, bool) {
	if i < 0 || i >= len(Categories) {
		return "", false
	}
	return Categories[i], true
}

// Product is a listing submitted through the sell wizard.
type Product struct {
	ID             int64 `validate:"gt=0"`
	SellerID       int64 `validate:"required"`
	SellerUsername string
	Title          string    `validate:"required,max=4096"`
	Price          int64     `validate:"gt=0"`
	Description    string    `validate:"max=4096"`
	Category       string    `validate:"required,category"`
	Images         []string  `validate:"min=1,max=5,dive,required"`
	Status         Status    `validate:"oneof=pending approved rejected"`
	CreatedAt      time.Time `validate:"required"`
	ApprovedBy     *int64
	DecidedAt      time.Time
}

// Visible reports whether the product may be shown to buyers.
func (p Product) Visible() bool {
	return p.Status == StatusApproved
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (p Product) Clone() Product {
	out := p
	out.Images = append([]string(nil), p.Images...)
	if p.ApprovedBy != nil {
		id := *p.ApprovedBy
		out.ApprovedBy = &id
	}
	return out
}
