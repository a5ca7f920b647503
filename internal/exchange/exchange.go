// Package exchange
package exchange

import (
	"context"
	"time"

	"github.com/withinboredom/open-handshake/internal/market"
)

// Order statuses as reported by the exchange.
const (
	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
	StatusClosed          = "CLOSED"
)

// Order sides and types.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	TypeLimit  = "limit"
	TypeMarket = "market"
)

// Balance is one asset's balance: the part free for trading and the part
// locked in resting orders.
type Balance struct {
	Asset          string
	Unlocked       float64
	LockedInOrders float64
}

// Total returns the full balance including the locked portion.
func (b Balance) Total() float64 {
	return b.Unlocked + b.LockedInOrders
}

// Account holds the balances of the two traded assets.
type Account struct {
	Base  Balance
	Quote Balance
}

// Depth is a raw two-sided depth snapshot.
type Depth struct {
	Bids market.DepthSnapshot
	Asks market.DepthSnapshot
}

// OrderRequest describes a new order to be submitted.
type OrderRequest struct {
	Symbol   string
	Side     string // "buy" or "sell"
	Type     string // "limit" or "market"
	Price    float64
	Quantity float64
}

// Order is an exchange order as last reported.
type Order struct {
	ID        string
	Symbol    string
	Side      string
	Type      string
	Price     float64
	Quantity  float64
	FilledQty float64
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the order can still trade.
func (o Order) Open() bool {
	return o.Status == StatusNew || o.Status == StatusPartiallyFilled
}

// Gateway is the authenticated exchange client the rest of the bot talks to.
// Implementations fully resolve transient and clock-drift failures internally;
// callers only ever see the typed outcomes from errors.go or a fatal error.
type Gateway interface {
	Name() string
	GetAccount(ctx context.Context) (Account, error)
	GetDepth(ctx context.Context) (Depth, error)
	GetOrders(ctx context.Context, filter func(Order) bool) ([]Order, error)
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ServerTime(ctx context.Context) (time.Time, error)
}
