// Package store keeps marketplace users and products in memory.
package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/m3rciful/marketbot/core/logger"
	"github.com/m3rciful/marketbot/market"
)

// Store is the entity store contract used by the workflows.
type Store interface {
	PutUser(u market.User)
	GetUser(id int64) (market.User, error)
	ListUsers() []market.User
	CountUsers() int

	NextProductID() int64
	PutProduct(p market.Product)
	GetProduct(id int64) (market.Product, error)
	ListProducts(pred func(market.Product) bool) []market.Product
	// UpdateProduct applies fn to the stored product atomically. When fn returns
	// an error the product is left unchanged.
	UpdateProduct(id int64, fn func(p *market.Product) error) (market.Product, error)
}

// Memory is a Store backed by maps guarded by a single RWMutex.
// Contents are lost on restart.
type Memory struct {
	mu       sync.RWMutex
	users    map[int64]market.User
	products map[int64]market.Product
	lastID   int64
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[int64]market.User),
		products: make(map[int64]market.Product),
	}
}

var _ Store = (*Memory)(nil)

// PutUser inserts or replaces a user.
func (m *Memory) PutUser(u market.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.users[u.ID]
	m.users[u.ID] = u
	if !existed {
		logger.Debug(context.Background(), "service.store", "user.created",
			slog.Int64("user_id", u.ID),
		)
	}
}

// GetUser returns the user or market.ErrNotFound.
func (m *Memory) GetUser(id int64) (market.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return market.User{}, market.ErrNotFound
	}
	return u, nil
}

// ListUsers returns all users ordered by id.
func (m *Memory) ListUsers() []market.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]market.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountUsers returns the number of known users.
func (m *Memory) CountUsers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// NextProductID reserves the next product id. Ids are never handed out twice.
func (m *Memory) NextProductID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	return m.lastID
}

// PutProduct stores a copy of p.
func (m *Memory) PutProduct(p market.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID > m.lastID {
		m.lastID = p.ID
	}
	m.products[p.ID] = p.Clone()
}

// GetProduct returns a copy of the product or market.ErrNotFound.
func (m *Memory) GetProduct(id int64) (market.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return market.Product{}, market.ErrNotFound
	}
	return p.Clone(), nil
}

// ListProducts returns copies of products matching pred, ordered by id.
// A nil predicate matches everything.
func (m *Memory) ListProducts(pred func(market.Product) bool) []market.Product {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]market.Product, 0)
	for _, p := range m.products {
		if pred == nil || pred(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateProduct runs fn against a working copy under the write lock and
// commits it only when fn succeeds.
func (m *Memory) UpdateProduct(id int64, fn func(p *market.Product) error) (market.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.products[id]
	if !ok {
		return market.Product{}, market.ErrNotFound
	}
	work := cur.Clone()
	if err := fn(&work); err != nil {
		return cur.Clone(), err
	}
	m.products[id] = work
	return work.Clone(), nil
}

// ByStatus is a ListProducts predicate selecting one status.
func ByStatus(s market.Status) func(market.Product) bool {
	return func(p market.Product) bool { return p.Status == s }
}

// BySeller is a ListProducts predicate selecting one seller's products.
func BySeller(id int64) func(market.Product) bool {
	return func(p market.Product) bool { return p.SellerID == id }
}
