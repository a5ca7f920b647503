package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetries(t *testing.T) {
	t.Helper()
	saved := retryDelays
	retryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retryDelays = saved })
}

func newTestNamebase(t *testing.T, handler http.Handler) *Namebase {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewNamebase(NamebaseConfig{
		BaseURL:    server.URL,
		Key:        "key",
		Secret:     "secret",
		Symbol:     "HNSBTC",
		BaseAsset:  "HNS",
		QuoteAsset: "BTC",
		HTTPClient: server.Client(),
	})
}

func writeAPIError(w http.ResponseWriter, status int, code string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "message": code})
}

func TestNamebaseOutcomeMapping(t *testing.T) {
	fastRetries(t)

	tests := []struct {
		name  string
		code  string
		check func(t *testing.T, err error)
	}{
		{
			name: "malformed request is fatal",
			code: "REQUEST_BAD_PARAMETER",
			check: func(t *testing.T, err error) {
				var fatal *FatalError
				require.True(t, errors.As(err, &fatal))
				assert.Equal(t, "REQUEST_BAD_PARAMETER", fatal.Code)
			},
		},
		{
			name: "insufficient balance is out of money",
			code: "INSUFFICIENT_BALANCE",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrInsufficientFunds))
			},
		},
		{
			name: "minimum order size is out of money",
			code: "REQUEST_MINIMUM_ORDER",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrInsufficientFunds))
			},
		},
		{
			name: "trading suspended is ignored",
			code: "NOT_ALLOWED_TO_TRADE",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrIgnored))
			},
		},
		{
			name: "unknown code is ignored",
			code: "SOMETHING_NOBODY_EXPECTED",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrIgnored))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestNamebase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeAPIError(w, http.StatusBadRequest, tt.code)
			}))
			_, err := gw.CreateOrder(context.Background(), OrderRequest{
				Side: SideBuy, Type: TypeLimit, Price: 0.001, Quantity: 10,
			})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestNamebaseRetryThenSuccess(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	gw := newTestNamebase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			writeAPIError(w, http.StatusInternalServerError, "SERVER_UNKNOWN")
			return
		}
		json.NewEncoder(w).Encode(namebaseDepth{
			Bids: [][]string{{"0.00000950", "100"}},
			Asks: [][]string{{"0.00001050", "200"}},
		})
	}))

	depth, err := gw.GetDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, depth.Bids, 1)
	assert.InDelta(t, 0.0000095, depth.Bids[0].Price, 1e-12)
	assert.InDelta(t, 100.0, depth.Bids[0].Quantity, 1e-9)
	require.Len(t, depth.Asks, 1)
	assert.InDelta(t, 200.0, depth.Asks[0].Quantity, 1e-9)
}

func TestNamebaseRetriesExhausted(t *testing.T) {
	fastRetries(t)

	var calls atomic.Int32
	gw := newTestNamebase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusInternalServerError, "SERVER_UNKNOWN")
	}))

	_, err := gw.GetDepth(context.Background())
	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, "RETRIES_EXHAUSTED", fatal.Code)
	// initial attempt plus one per scheduled delay
	assert.Equal(t, int32(len(retryDelays)+1), calls.Load())
}

func TestNamebaseClockResync(t *testing.T) {
	fastRetries(t)

	const skew = 2 * time.Minute
	var accountCalls atomic.Int32
	gw := newTestNamebase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/info":
			json.NewEncoder(w).Encode(namebaseInfo{ServerTime: time.Now().Add(skew).UnixMilli()})
		case "/account":
			if accountCalls.Add(1) == 1 {
				writeAPIError(w, http.StatusBadRequest, "SERVER_LATE_TIMESTAMP")
				return
			}
			json.NewEncoder(w).Encode(namebaseAccount{Balances: []namebaseBalance{
				{Asset: "HNS", Unlocked: "1000", LockedInOrders: "50"},
				{Asset: "BTC", Unlocked: "0.5", LockedInOrders: "0.1"},
			}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	account, err := gw.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), accountCalls.Load(), "expected one transparent re-issue after resync")

	drift := time.Duration(gw.driftNanos.Load())
	assert.InDelta(t, skew.Seconds(), drift.Seconds(), 5, "drift should track the server skew")

	assert.Equal(t, "HNS", account.Base.Asset)
	assert.InDelta(t, 1050.0, account.Base.Total(), 1e-9)
	assert.Equal(t, "BTC", account.Quote.Asset)
	assert.InDelta(t, 0.5, account.Quote.Unlocked, 1e-9)
}

func TestNamebaseCancelIgnored(t *testing.T) {
	fastRetries(t)

	gw := newTestNamebase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusBadRequest, "CANCEL_UNKNOWN_ORDER")
	}))

	err := gw.CancelOrder(context.Background(), "42")
	assert.True(t, errors.Is(err, ErrIgnored))
}

func TestNamebaseGetOrdersFilter(t *testing.T) {
	fastRetries(t)

	gw := newTestNamebase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]namebaseOrder{
			{OrderID: 1, Price: "0.001", OriginalQuantity: "10", Status: StatusNew, Type: "LMT", Side: "BUY"},
			{OrderID: 2, Price: "0.002", OriginalQuantity: "10", ExecutedQuantity: "10", Status: StatusFilled, Type: "LMT", Side: "SELL"},
			{OrderID: 3, Price: "0.003", OriginalQuantity: "5", Status: StatusPartiallyFilled, Type: "LMT", Side: "SELL"},
		})
	}))

	open, err := gw.GetOrders(context.Background(), func(o Order) bool { return o.Open() })
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "1", open[0].ID)
	assert.Equal(t, SideBuy, open[0].Side)
	assert.Equal(t, "3", open[1].ID)
	assert.Equal(t, SideSell, open[1].Side)
}

func TestNamebaseSignedRequestCarriesTimestamp(t *testing.T) {
	fastRetries(t)

	var gotTimestamp string
	gw := newTestNamebase(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTimestamp = r.URL.Query().Get("timestamp")
		json.NewEncoder(w).Encode(namebaseAccount{})
	}))

	_, err := gw.GetAccount(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, gotTimestamp)

	var millis int64
	_, err = fmt.Sscan(gotTimestamp, &millis)
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Now().UnixMilli()), float64(millis), 5000)
}
