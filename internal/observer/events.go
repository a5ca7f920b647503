// Package observer polls exchange state and turns diffs into typed events.
package observer

import (
	"fmt"

	"github.com/withinboredom/open-handshake/internal/exchange"
	"github.com/withinboredom/open-handshake/internal/market"
)

// Side labels the half of the book an event belongs to.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Event is a state change observed between two polls. Consumers switch on
// the concrete type.
type Event interface {
	isEvent()
	String() string
}

// BalanceChanged fires when an asset's total balance moved between polls.
type BalanceChanged struct {
	Asset    string
	Previous float64
	New      float64
}

func (BalanceChanged) isEvent() {}

func (e BalanceChanged) String() string {
	return fmt.Sprintf("balance %s %.8f -> %.8f (%.4f%%)",
		e.Asset, e.Previous, e.New, market.PercentChanged(e.Previous, e.New))
}

// CeilingChanged fires when a side's book bottom or nearest wall moved
// between polls.
type CeilingChanged struct {
	Side     Side
	Previous market.CeilingData
	New      market.CeilingData
}

func (CeilingChanged) isEvent() {}

func (e CeilingChanged) String() string {
	return fmt.Sprintf("ceiling %s bottom %.8f -> %.8f wall %.8f -> %.8f",
		e.Side, e.Previous.Bottom, e.New.Bottom, nearestWall(e.Previous), nearestWall(e.New))
}

func nearestWall(c market.CeilingData) float64 {
	if len(c.Resistance) == 0 {
		return 0
	}
	return c.Resistance[0].Level
}

// OrderStatusChanged fires when a tracked order's status transitioned.
type OrderStatusChanged struct {
	Order    exchange.Order
	Previous string
	New      string
}

func (OrderStatusChanged) isEvent() {}

func (e OrderStatusChanged) String() string {
	return fmt.Sprintf("order %s %s %s -> %s", e.Order.ID, e.Order.Side, e.Previous, e.New)
}
