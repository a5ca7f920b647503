// Package order
package order

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/withinboredom/open-handshake/internal/exchange"
	"github.com/withinboredom/open-handshake/internal/utils"
)

// Change records one observed status transition of a managed order.
type Change struct {
	Order    exchange.Order
	Previous string
	New      string
}

// Managed wraps one resting exchange order and its lifecycle: it can be
// refreshed against the exchange, or replaced in a cancel-then-create step.
// A managed order with no live counterpart on the exchange is "deleted"; it
// stays in its ladder as a placeholder so rung positions remain stable.
type Managed struct {
	mu      sync.Mutex
	gateway exchange.Gateway
	current exchange.Order
	deleted bool
}

// New wraps a live exchange order.
func New(gw exchange.Gateway, o exchange.Order) *Managed {
	return &Managed{gateway: gw, current: o}
}

// NewDeleted returns a placeholder with no live order behind it.
func NewDeleted(gw exchange.Gateway, symbol, side string) *Managed {
	return &Managed{
		gateway: gw,
		current: exchange.Order{Symbol: symbol, Side: side},
		deleted: true,
	}
}

func (m *Managed) Snapshot() exchange.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Managed) Deleted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleted
}

func (m *Managed) Price() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted {
		return 0
	}
	return m.current.Price
}

func (m *Managed) Quantity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted {
		return 0
	}
	return m.current.Quantity
}

func (m *Managed) Side() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Side
}

// Refresh polls the exchange for the order's current state. It returns a
// non-nil Change when the status moved since the last look. Deleted
// placeholders have nothing to poll.
func (m *Managed) Refresh(ctx context.Context) (*Change, error) {
	m.mu.Lock()
	gw := m.gateway
	prev := m.current
	deleted := m.deleted
	m.mu.Unlock()

	if deleted || prev.ID == "" {
		return nil, nil
	}

	latest, err := gw.GetOrder(ctx, prev.ID)
	if err != nil {
		if errors.Is(err, exchange.ErrIgnored) {
			return nil, nil
		}
		return nil, fmt.Errorf("refreshing order %s: %w", prev.ID, err)
	}

	m.mu.Lock()
	m.current = latest
	m.mu.Unlock()

	if latest.Status != prev.Status {
		return &Change{Order: latest, Previous: prev.Status, New: latest.Status}, nil
	}
	return nil, nil
}

// Update replaces the order with a new one at the given size and price:
// cancel the live order if any, then create the replacement. A non-positive
// quantity turns the slot into a deleted placeholder. Running out of funds
// also deletes the slot rather than failing the ladder.
func (m *Managed) Update(ctx context.Context, quantity, price float64, orderType string) error {
	m.mu.Lock()
	gw := m.gateway
	prev := m.current
	deleted := m.deleted
	m.mu.Unlock()

	if !deleted && prev.ID != "" && prev.Open() {
		if err := gw.CancelOrder(ctx, prev.ID); err != nil {
			if !errors.Is(err, exchange.ErrIgnored) {
				return fmt.Errorf("canceling order %s: %w", prev.ID, err)
			}
			// Already gone on the exchange side; fall through to replace.
		}
	}

	if quantity <= 0 {
		m.mu.Lock()
		m.deleted = true
		m.current = exchange.Order{Side: prev.Side, Symbol: prev.Symbol}
		m.mu.Unlock()
		return nil
	}

	req := exchange.OrderRequest{
		Symbol:   prev.Symbol,
		Side:     prev.Side,
		Type:     orderType,
		Quantity: quantity,
	}
	if orderType != exchange.TypeMarket {
		req.Price = price
	}

	created, err := gw.CreateOrder(ctx, req)
	if err != nil {
		if errors.Is(err, exchange.ErrInsufficientFunds) {
			utils.GetLogger().Printf("Order | out of funds replacing %s order, dropping rung", prev.Side)
			m.mu.Lock()
			m.deleted = true
			m.current = exchange.Order{Side: prev.Side, Symbol: prev.Symbol}
			m.mu.Unlock()
			return nil
		}
		return fmt.Errorf("replacing order: %w", err)
	}

	m.mu.Lock()
	m.deleted = false
	m.current = created
	m.mu.Unlock()
	return nil
}
