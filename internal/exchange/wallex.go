package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	wallex "github.com/wallexchange/wallex-go"

	"github.com/withinboredom/open-handshake/internal/market"
	"github.com/withinboredom/open-handshake/internal/utils"
)

// Wallex adapts the Wallex REST client to the Gateway interface. The API has
// no bulk open-order listing, so the adapter remembers the IDs of orders it
// placed and polls them individually.
type Wallex struct {
	client     *wallex.Client
	symbol     string
	baseAsset  string
	quoteAsset string

	mu      sync.Mutex
	tracked map[string]struct{}
}

func NewWallex(apiKey, symbol, baseAsset, quoteAsset string) *Wallex {
	return &Wallex{
		client:     wallex.New(wallex.ClientOptions{APIKey: apiKey}),
		symbol:     symbol,
		baseAsset:  baseAsset,
		quoteAsset: quoteAsset,
		tracked:    make(map[string]struct{}),
	}
}

func (w *Wallex) Name() string { return "wallex" }

// retry wraps a function with retry logic for transient errors, using exponential backoff and error logging.
func retry(attempts int, delay time.Duration, fn func() error) error {
	backoff := delay
	for i := 1; i <= attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		utils.GetLogger().Printf("Exchange | %s Retry attempt %d/%d failed: %v. Backing off for %v", "Wallex", i, attempts, err, backoff)
		time.Sleep(backoff)
		if backoff < 5*time.Minute {
			backoff *= 2
			if backoff > 5*time.Minute {
				backoff = 5 * time.Minute
			}
		}
	}
	return errors.New("all retry attempts failed")
}

func (w *Wallex) GetAccount(ctx context.Context) (Account, error) {
	select {
	case <-ctx.Done():
		return Account{}, ctx.Err()

	default:
		var balances map[string]*wallex.Balance
		err := retry(3, 2*time.Second, func() error {
			var err error
			balances, err = w.client.Balances()
			if err != nil {
				return fmt.Errorf("fetching balances: %w", err)
			}
			return nil
		})
		if err != nil {
			return Account{}, fmt.Errorf("GetAccount failed: %w", err)
		}

		var account Account
		for asset, b := range balances {
			switch asset {
			case w.baseAsset, w.quoteAsset:
			default:
				continue
			}
			unlocked, _ := strconv.ParseFloat(string(b.Value), 64)
			locked, _ := strconv.ParseFloat(string(b.Locked), 64)
			balance := Balance{Asset: asset, Unlocked: unlocked, LockedInOrders: locked}
			if asset == w.baseAsset {
				account.Base = balance
			} else {
				account.Quote = balance
			}
		}
		return account, nil
	}
}

func (w *Wallex) GetDepth(ctx context.Context) (Depth, error) {
	select {
	case <-ctx.Done():
		return Depth{}, ctx.Err()

	default:
		var asks, bids []*wallex.MarketOrder
		err := retry(3, 2*time.Second, func() error {
			var err error
			asks, bids, err = w.client.MarketOrders(w.symbol)
			if err != nil {
				return fmt.Errorf("fetching orderbook: %w", err)
			}
			return nil
		})
		if err != nil {
			return Depth{}, fmt.Errorf("GetDepth failed: %w", err)
		}
		return Depth{
			Bids: marketOrderLevels(bids),
			Asks: marketOrderLevels(asks),
		}, nil
	}
}

func marketOrderLevels(orders []*wallex.MarketOrder) (levels market.DepthSnapshot) {
	for _, o := range orders {
		price, _ := strconv.ParseFloat(string(o.Price), 64)
		qty := float64Ptr(&o.Quantity)
		levels = append(levels, market.DepthLevel{Price: price, Quantity: qty})
	}
	return levels
}

func (w *Wallex) GetOrders(ctx context.Context, filter func(Order) bool) ([]Order, error) {
	w.mu.Lock()
	ids := make([]string, 0, len(w.tracked))
	for id := range w.tracked {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	var orders []Order
	for _, id := range ids {
		order, err := w.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if !order.Open() {
			w.mu.Lock()
			delete(w.tracked, id)
			w.mu.Unlock()
		}
		if filter == nil || filter(order) {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (w *Wallex) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	select {
	case <-ctx.Done():
		return Order{}, ctx.Err()

	default:
		params := &wallex.OrderParams{
			Symbol:   w.symbol,
			Type:     strings.ToUpper(req.Type),
			Side:     strings.ToUpper(req.Side),
			Price:    wallex.Number(strconv.FormatFloat(req.Price, 'f', 8, 64)),
			Quantity: wallex.Number(strconv.FormatFloat(req.Quantity, 'f', 8, 64)),
		}
		resp, err := w.client.PlaceOrder(params)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "balance") {
				return Order{}, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
			}
			return Order{}, fmt.Errorf("placing order: %w", err)
		}

		w.mu.Lock()
		w.tracked[resp.ClientOrderID] = struct{}{}
		w.mu.Unlock()

		return Order{
			ID:        resp.ClientOrderID,
			Symbol:    w.symbol,
			Side:      req.Side,
			Type:      req.Type,
			Price:     req.Price,
			Quantity:  req.Quantity,
			FilledQty: float64Ptr(resp.ExecutedQty),
			Status:    strings.ToUpper(resp.Status),
			CreatedAt: resp.CreatedAt.UTC(),
			UpdatedAt: resp.CreatedAt.UTC(),
		}, nil
	}
}

func (w *Wallex) CancelOrder(ctx context.Context, orderID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()

	default:
		if err := w.client.CancelOrder(orderID); err != nil {
			return fmt.Errorf("%w: %v", ErrIgnored, err)
		}
		return nil
	}
}

func (w *Wallex) GetOrder(ctx context.Context, orderID string) (Order, error) {
	select {
	case <-ctx.Done():
		return Order{}, ctx.Err()

	default:
		resp, err := w.client.Order(orderID)
		if err != nil {
			return Order{}, fmt.Errorf("fetching order %s: %w", orderID, err)
		}
		return Order{
			ID:        resp.ClientOrderID,
			Symbol:    w.symbol,
			Side:      strings.ToLower(resp.Side),
			Type:      strings.ToLower(resp.Type),
			Price:     float64Ptr(&resp.Price),
			Quantity:  float64Ptr(&resp.OrigQty),
			FilledQty: float64Ptr(resp.ExecutedQty),
			Status:    strings.ToUpper(resp.Status),
			CreatedAt: resp.CreatedAt.UTC(),
			UpdatedAt: resp.CreatedAt.UTC(),
		}, nil
	}
}

// ServerTime: the Wallex API exposes no clock endpoint, so local time stands
// in. Signed-request drift handling is a Namebase concern only.
func (w *Wallex) ServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}

// Helper to safely dereference *wallex.Number
func float64Ptr(n *wallex.Number) float64 {
	if n == nil {
		return 0
	}
	v, _ := strconv.ParseFloat(string(*n), 64)
	return v
}
