// Package journal
package journal

import (
	"time"

	"github.com/withinboredom/open-handshake/internal/exchange"
)

// Event represents a journaled event.
type Event struct {
	Time        time.Time
	Type        string // e.g., "order", "regime", "error"
	Description string
	Data        map[string]any
}

const (
	TypeOrder  = "order"
	TypeRegime = "regime"
	TypeError  = "error"
)

// OrderEvent records an order status transition.
func OrderEvent(now time.Time, o exchange.Order, previous, current string) Event {
	return Event{
		Time:        now,
		Type:        TypeOrder,
		Description: o.Side + " " + o.Symbol + " " + previous + " -> " + current,
		Data: map[string]any{
			"id":       o.ID,
			"side":     o.Side,
			"price":    o.Price,
			"quantity": o.Quantity,
			"filled":   o.FilledQty,
			"status":   current,
		},
	}
}

// RegimeEvent records a strategy swap at a tick boundary.
func RegimeEvent(now time.Time, previous, current string) Event {
	return Event{
		Time:        now,
		Type:        TypeRegime,
		Description: previous + " -> " + current,
		Data:        map[string]any{"from": previous, "to": current},
	}
}

// ErrorEvent records a tick failure that did not stop the bot.
func ErrorEvent(now time.Time, err error) Event {
	return Event{
		Time:        now,
		Type:        TypeError,
		Description: err.Error(),
	}
}
