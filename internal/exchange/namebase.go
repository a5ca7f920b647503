package exchange

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/withinboredom/open-handshake/internal/market"
	"github.com/withinboredom/open-handshake/internal/utils"
)

const receiveWindowMillis = 3000

// retryDelays is the transient-failure schedule: delays shrink toward the
// last regular attempt, then one long backoff before giving up as fatal.
var retryDelays = []time.Duration{3 * time.Second, time.Second, 500 * time.Millisecond, 10 * time.Second}

// NamebaseConfig configures the Namebase gateway.
type NamebaseConfig struct {
	BaseURL    string // e.g. https://www.namebase.io/api/v0
	Key        string
	Secret     string
	Symbol     string // e.g. HNSBTC
	BaseAsset  string // e.g. HNS
	QuoteAsset string // e.g. BTC
	HTTPClient *http.Client
}

// Namebase is the primary Gateway implementation. It is safe for concurrent
// use: every call is stateless except the clock-drift offset, which is
// swapped atomically when the exchange reports a timestamp error.
type Namebase struct {
	cfg        NamebaseConfig
	httpClient *http.Client
	authHeader string
	driftNanos atomic.Int64

	// OnRetry, when set, is invoked once per transient-failure retry.
	// Telemetry only; must not block.
	OnRetry func()
}

// NewNamebase builds a Namebase gateway with basic-auth credentials.
func NewNamebase(cfg NamebaseConfig) *Namebase {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	token := base64.StdEncoding.EncodeToString([]byte(cfg.Key + ":" + cfg.Secret))
	return &Namebase{
		cfg:        cfg,
		httpClient: client,
		authHeader: "Basic " + token,
	}
}

func (n *Namebase) Name() string { return "namebase" }

// timestamp returns the current time corrected by the measured clock drift,
// in the millisecond format signed requests expect.
func (n *Namebase) timestamp() int64 {
	drift := time.Duration(n.driftNanos.Load())
	return time.Now().Add(drift).UnixMilli()
}

type namebaseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// call runs one gateway request with the full recovery policy: transient
// errors walk the retry schedule, timestamp errors trigger a clock resync and
// a transparent re-issue, and everything else maps onto a typed outcome.
// build is invoked per attempt so signed timestamps stay fresh.
func (n *Namebase) call(ctx context.Context, build func() (*http.Request, error), out any) error {
	attempt := 0
	resynced := false

	for {
		req, err := build()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", n.authHeader)
		if req.Body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err = n.backoff(ctx, &attempt); err != nil {
				return err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if err = n.backoff(ctx, &attempt); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
			}
			return nil
		}

		var apiErr namebaseError
		_ = json.Unmarshal(body, &apiErr)

		switch classifyCode(apiErr.Code) {
		case recoverSyncTime:
			if resynced {
				// Drift correction did not help; treat as transient.
				if err = n.backoff(ctx, &attempt); err != nil {
					return err
				}
				continue
			}
			utils.GetLogger().Printf("Exchange | %s detected clock drift, resyncing", n.Name())
			if err := n.syncClock(ctx); err != nil {
				return err
			}
			resynced = true
		case recoverFatal:
			return &FatalError{Code: apiErr.Code, Message: apiErr.Message}
		case recoverIgnore:
			return fmt.Errorf("%w: %s", ErrIgnored, apiErr.Code)
		case recoverOutOfMoney:
			return fmt.Errorf("%w: %s", ErrInsufficientFunds, apiErr.Code)
		default:
			if err = n.backoff(ctx, &attempt); err != nil {
				return err
			}
		}
	}
}

// backoff sleeps for the next delay in the retry schedule, or returns a fatal
// error once the schedule is exhausted.
func (n *Namebase) backoff(ctx context.Context, attempt *int) error {
	if *attempt >= len(retryDelays) {
		return &FatalError{Code: "RETRIES_EXHAUSTED", Message: "all retry attempts failed"}
	}
	delay := retryDelays[*attempt]
	*attempt++
	if n.OnRetry != nil {
		n.OnRetry()
	}
	utils.GetLogger().Printf("Exchange | %s transient failure, retrying in %v (attempt %d/%d)",
		n.Name(), delay, *attempt, len(retryDelays))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (n *Namebase) get(ctx context.Context, path string, query url.Values, out any) error {
	return n.call(ctx, func() (*http.Request, error) {
		u := n.cfg.BaseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}, out)
}

type namebaseInfo struct {
	ServerTime int64 `json:"serverTime"`
}

// syncClock recomputes the clock-drift offset from the exchange's reported
// server time and publishes it for all in-flight calls.
func (n *Namebase) syncClock(ctx context.Context) error {
	var info namebaseInfo
	if err := n.get(ctx, "/info", nil, &info); err != nil {
		return fmt.Errorf("syncing clock: %w", err)
	}
	server := time.UnixMilli(info.ServerTime)
	n.driftNanos.Store(int64(time.Until(server)))
	return nil
}

// ServerTime returns the exchange's clock and refreshes the drift offset as a
// side effect.
func (n *Namebase) ServerTime(ctx context.Context) (time.Time, error) {
	var info namebaseInfo
	if err := n.get(ctx, "/info", nil, &info); err != nil {
		return time.Time{}, err
	}
	server := time.UnixMilli(info.ServerTime)
	n.driftNanos.Store(int64(time.Until(server)))
	return server, nil
}

type namebaseBalance struct {
	Asset          string `json:"asset"`
	Unlocked       string `json:"unlocked"`
	LockedInOrders string `json:"lockedInOrders"`
}

type namebaseAccount struct {
	Balances []namebaseBalance `json:"balances"`
}

func (n *Namebase) GetAccount(ctx context.Context) (Account, error) {
	query := url.Values{}
	query.Set("timestamp", strconv.FormatInt(n.timestamp(), 10))
	query.Set("receiveWindow", strconv.Itoa(receiveWindowMillis))

	var raw namebaseAccount
	if err := n.get(ctx, "/account", query, &raw); err != nil {
		return Account{}, fmt.Errorf("fetching account: %w", err)
	}

	var account Account
	for _, b := range raw.Balances {
		balance := Balance{
			Asset:          b.Asset,
			Unlocked:       parseFloat(b.Unlocked),
			LockedInOrders: parseFloat(b.LockedInOrders),
		}
		switch b.Asset {
		case n.cfg.BaseAsset:
			account.Base = balance
		case n.cfg.QuoteAsset:
			account.Quote = balance
		}
	}
	return account, nil
}

type namebaseDepth struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

func (n *Namebase) GetDepth(ctx context.Context) (Depth, error) {
	query := url.Values{}
	query.Set("symbol", n.cfg.Symbol)

	var raw namebaseDepth
	if err := n.get(ctx, "/depth", query, &raw); err != nil {
		return Depth{}, fmt.Errorf("fetching depth: %w", err)
	}
	return Depth{
		Bids: parseLevels(raw.Bids),
		Asks: parseLevels(raw.Asks),
	}, nil
}

func parseLevels(raw [][]string) market.DepthSnapshot {
	levels := make(market.DepthSnapshot, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		levels = append(levels, market.DepthLevel{
			Price:    parseFloat(pair[0]),
			Quantity: parseFloat(pair[1]),
		})
	}
	return levels
}

type namebaseOrder struct {
	OrderID          int64  `json:"orderId"`
	Price            string `json:"price"`
	OriginalQuantity string `json:"originalQuantity"`
	ExecutedQuantity string `json:"executedQuantity"`
	Status           string `json:"status"`
	Type             string `json:"type"`
	Side             string `json:"side"`
	CreatedAt        int64  `json:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt"`
}

func (o namebaseOrder) toOrder(symbol string) Order {
	side := SideBuy
	if o.Side == "SELL" {
		side = SideSell
	}
	typ := TypeLimit
	if o.Type == "MKT" {
		typ = TypeMarket
	}
	return Order{
		ID:        strconv.FormatInt(o.OrderID, 10),
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		Price:     parseFloat(o.Price),
		Quantity:  parseFloat(o.OriginalQuantity),
		FilledQty: parseFloat(o.ExecutedQuantity),
		Status:    o.Status,
		CreatedAt: time.UnixMilli(o.CreatedAt),
		UpdatedAt: time.UnixMilli(o.UpdatedAt),
	}
}

func (n *Namebase) GetOrders(ctx context.Context, filter func(Order) bool) ([]Order, error) {
	query := url.Values{}
	query.Set("symbol", n.cfg.Symbol)
	query.Set("timestamp", strconv.FormatInt(n.timestamp(), 10))
	query.Set("receiveWindow", strconv.Itoa(receiveWindowMillis))
	query.Set("limit", "1000")

	var raw []namebaseOrder
	if err := n.get(ctx, "/order/all", query, &raw); err != nil {
		return nil, fmt.Errorf("fetching orders: %w", err)
	}

	orders := make([]Order, 0, len(raw))
	for _, o := range raw {
		order := o.toOrder(n.cfg.Symbol)
		if filter == nil || filter(order) {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

type namebaseSendOrder struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Quantity      string `json:"quantity"`
	Price         string `json:"price,omitempty"`
	Timestamp     int64  `json:"timestamp"`
	ReceiveWindow int64  `json:"receiveWindow"`
}

func (n *Namebase) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	side := "BUY"
	if req.Side == SideSell {
		side = "SELL"
	}
	typ := "LMT"
	price := strconv.FormatFloat(req.Price, 'f', 8, 64)
	if req.Type == TypeMarket {
		typ = "MKT"
		price = ""
	}

	var raw namebaseOrder
	err := n.call(ctx, func() (*http.Request, error) {
		payload := namebaseSendOrder{
			Symbol:        n.cfg.Symbol,
			Side:          side,
			Type:          typ,
			Quantity:      strconv.FormatFloat(req.Quantity, 'f', 8, 64),
			Price:         price,
			Timestamp:     n.timestamp(),
			ReceiveWindow: receiveWindowMillis,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		return http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.BaseURL+"/order", bytes.NewReader(body))
	}, &raw)
	if err != nil {
		return Order{}, fmt.Errorf("creating order: %w", err)
	}
	return raw.toOrder(n.cfg.Symbol), nil
}

func (n *Namebase) CancelOrder(ctx context.Context, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("canceling order %q: %w", orderID, err)
	}

	err = n.call(ctx, func() (*http.Request, error) {
		payload := map[string]any{
			"symbol":    n.cfg.Symbol,
			"orderId":   id,
			"timestamp": n.timestamp(),
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		return http.NewRequestWithContext(ctx, http.MethodDelete, n.cfg.BaseURL+"/order", bytes.NewReader(body))
	}, nil)
	if err != nil {
		return fmt.Errorf("canceling order %s: %w", orderID, err)
	}
	return nil
}

func (n *Namebase) GetOrder(ctx context.Context, orderID string) (Order, error) {
	query := url.Values{}
	query.Set("symbol", n.cfg.Symbol)
	query.Set("orderId", orderID)
	query.Set("timestamp", strconv.FormatInt(n.timestamp(), 10))
	query.Set("receiveWindow", strconv.Itoa(receiveWindowMillis))

	var raw namebaseOrder
	if err := n.get(ctx, "/order", query, &raw); err != nil {
		return Order{}, fmt.Errorf("fetching order %s: %w", orderID, err)
	}
	return raw.toOrder(n.cfg.Symbol), nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}
