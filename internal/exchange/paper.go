package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Paper is an in-memory Gateway used for dry runs and tests. It honors
// balance locking the way the live exchange does: placing a buy locks quote,
// placing a sell locks base, and canceling releases the lock.
type Paper struct {
	mu     sync.Mutex
	symbol string
	base   Balance
	quote  Balance
	depth  Depth
	orders map[string]*Order

	// call counters, handy for asserting that reconciliation is idempotent
	Creates int
	Cancels int
}

// NewPaper seeds a paper gateway with starting balances.
func NewPaper(symbol string, base, quote Balance) *Paper {
	return &Paper{
		symbol: symbol,
		base:   base,
		quote:  quote,
		orders: make(map[string]*Order),
	}
}

func (p *Paper) Name() string { return "paper" }

// SetDepth replaces the order book snapshot returned by GetDepth.
func (p *Paper) SetDepth(depth Depth) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.depth = depth
}

func (p *Paper) GetAccount(ctx context.Context) (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Account{Base: p.base, Quote: p.quote}, nil
}

func (p *Paper) GetDepth(ctx context.Context) (Depth, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.depth, nil
}

func (p *Paper) GetOrders(ctx context.Context, filter func(Order) bool) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var orders []Order
	for _, o := range p.orders {
		if filter == nil || filter(*o) {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

// cost returns the balance an order consumes and a pointer to the balance it
// draws from. Callers hold p.mu.
func (p *Paper) cost(req OrderRequest) (float64, *Balance) {
	if req.Side == SideBuy {
		return req.Quantity * req.Price, &p.quote
	}
	return req.Quantity, &p.base
}

func (p *Paper) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Creates++

	amount, balance := p.cost(req)
	if req.Type == TypeMarket {
		// Market orders fill immediately at the request price with no lock.
		amount = 0
	}
	if amount > balance.Unlocked {
		return Order{}, fmt.Errorf("%w: need %.8f %s", ErrInsufficientFunds, amount, balance.Asset)
	}
	balance.Unlocked -= amount
	balance.LockedInOrders += amount

	now := time.Now()
	order := Order{
		ID:        uuid.NewString(),
		Symbol:    p.symbol,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Status:    StatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Type == TypeMarket {
		order.Status = StatusFilled
		order.FilledQty = req.Quantity
	}
	p.orders[order.ID] = &order
	return order, nil
}

func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Cancels++

	order, ok := p.orders[orderID]
	if !ok || !order.Open() {
		return fmt.Errorf("%w: order %s not open", ErrIgnored, orderID)
	}

	remaining := order.Quantity - order.FilledQty
	if order.Side == SideBuy {
		locked := remaining * order.Price
		p.quote.LockedInOrders -= locked
		p.quote.Unlocked += locked
	} else {
		p.base.LockedInOrders -= remaining
		p.base.Unlocked += remaining
	}
	order.Status = StatusCanceled
	order.UpdatedAt = time.Now()
	return nil
}

func (p *Paper) GetOrder(ctx context.Context, orderID string) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: unknown order %s", ErrIgnored, orderID)
	}
	return *order, nil
}

func (p *Paper) ServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}

// Fill marks an open order (fully) filled and settles the swap between the
// two balances. Test hook.
func (p *Paper) Fill(orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok || !order.Open() {
		return fmt.Errorf("order %s not open", orderID)
	}

	remaining := order.Quantity - order.FilledQty
	if order.Side == SideBuy {
		p.quote.LockedInOrders -= remaining * order.Price
		p.base.Unlocked += remaining
	} else {
		p.base.LockedInOrders -= remaining
		p.quote.Unlocked += remaining * order.Price
	}
	order.FilledQty = order.Quantity
	order.Status = StatusFilled
	order.UpdatedAt = time.Now()
	return nil
}
