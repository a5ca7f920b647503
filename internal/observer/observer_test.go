package observer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withinboredom/open-handshake/internal/exchange"
	"github.com/withinboredom/open-handshake/internal/market"
)

func newPaper() *exchange.Paper {
	return exchange.NewPaper("HNSBTC",
		exchange.Balance{Asset: "HNS", Unlocked: 1000},
		exchange.Balance{Asset: "BTC", Unlocked: 1},
	)
}

func TestAccountFirstPollIsSilent(t *testing.T) {
	gw := newPaper()
	obs := NewAccount(gw)

	events, err := obs.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.InDelta(t, 1000.0, obs.Last().Base.Total(), 1e-9)
}

func TestAccountReportsBalanceMoves(t *testing.T) {
	gw := newPaper()
	obs := NewAccount(gw)
	ctx := context.Background()

	_, err := obs.Refresh(ctx)
	require.NoError(t, err)

	// a filled sell swaps base for quote, so both totals move
	o, err := gw.CreateOrder(ctx, exchange.OrderRequest{
		Side: exchange.SideSell, Type: exchange.TypeLimit, Quantity: 100, Price: 0.001,
	})
	require.NoError(t, err)
	require.NoError(t, gw.Fill(o.ID))

	events, err := obs.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)

	byAsset := map[string]BalanceChanged{}
	for _, e := range events {
		change, ok := e.(BalanceChanged)
		require.True(t, ok)
		byAsset[change.Asset] = change
	}
	assert.InDelta(t, 900.0, byAsset["HNS"].New, 1e-9)
	assert.InDelta(t, 1.1, byAsset["BTC"].New, 1e-9)
}

func TestAccountLockingIsNotAChange(t *testing.T) {
	gw := newPaper()
	obs := NewAccount(gw)
	ctx := context.Background()

	_, err := obs.Refresh(ctx)
	require.NoError(t, err)

	// a resting limit order moves funds between unlocked and locked but
	// leaves the total alone
	_, err = gw.CreateOrder(ctx, exchange.OrderRequest{
		Side: exchange.SideSell, Type: exchange.TypeLimit, Quantity: 100, Price: 0.001,
	})
	require.NoError(t, err)

	events, err := obs.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func depthWithBids(bids ...market.DepthLevel) exchange.Depth {
	return exchange.Depth{
		Bids: bids,
		Asks: market.DepthSnapshot{
			{Price: 20, Quantity: 1},
			{Price: 21, Quantity: 1},
			{Price: 30, Quantity: 80},
		},
	}
}

func TestCenterEmitsCeilingChanged(t *testing.T) {
	gw := newPaper()
	obs := NewCenter(gw)
	ctx := context.Background()
	now := time.Now()

	gw.SetDepth(depthWithBids(
		market.DepthLevel{Price: 10, Quantity: 1},
		market.DepthLevel{Price: 9, Quantity: 1},
		market.DepthLevel{Price: 5, Quantity: 90},
	))
	events, err := obs.Refresh(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, events, "first poll primes silently")
	assert.InDelta(t, 10.0, obs.Buy().Bottom, 1e-9)
	assert.InDelta(t, 20.0, obs.Sell().Bottom, 1e-9)

	gw.SetDepth(depthWithBids(
		market.DepthLevel{Price: 11, Quantity: 1},
		market.DepthLevel{Price: 9, Quantity: 1},
		market.DepthLevel{Price: 5, Quantity: 90},
	))
	events, err = obs.Refresh(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)

	change, ok := events[0].(CeilingChanged)
	require.True(t, ok)
	assert.Equal(t, SideBuy, change.Side)
	assert.InDelta(t, 10.0, change.Previous.Bottom, 1e-9)
	assert.InDelta(t, 11.0, change.New.Bottom, 1e-9)
}

func TestCenterEmitsCeilingChangedOnWallMove(t *testing.T) {
	gw := newPaper()
	obs := NewCenter(gw)
	ctx := context.Background()
	now := time.Now()

	gw.SetDepth(depthWithBids(
		market.DepthLevel{Price: 10, Quantity: 1},
		market.DepthLevel{Price: 9, Quantity: 1},
		market.DepthLevel{Price: 5, Quantity: 90},
	))
	events, err := obs.Refresh(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, events, "first poll primes silently")

	// the wall migrates toward the bottom while the bottom holds still
	gw.SetDepth(depthWithBids(
		market.DepthLevel{Price: 10, Quantity: 1},
		market.DepthLevel{Price: 9, Quantity: 1},
		market.DepthLevel{Price: 8, Quantity: 90},
	))
	events, err = obs.Refresh(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)

	change, ok := events[0].(CeilingChanged)
	require.True(t, ok)
	assert.Equal(t, SideBuy, change.Side)
	assert.InDelta(t, 10.0, change.New.Bottom, 1e-9)
	require.NotEmpty(t, change.Previous.Resistance)
	require.NotEmpty(t, change.New.Resistance)
	assert.InDelta(t, 5.0, change.Previous.Resistance[0].Level, 1e-9)
	assert.InDelta(t, 8.0, change.New.Resistance[0].Level, 1e-9)
}

func TestCenterTracksBottomTrend(t *testing.T) {
	gw := newPaper()
	obs := NewCenter(gw)
	ctx := context.Background()
	start := time.Now()

	// bottoms climb one unit per minute
	for i := 0; i < 5; i++ {
		gw.SetDepth(depthWithBids(
			market.DepthLevel{Price: 10 + float64(i), Quantity: 1},
			market.DepthLevel{Price: 5, Quantity: 90},
		))
		_, err := obs.Refresh(ctx, start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	p := obs.PredictBuy()
	assert.InDelta(t, 1.0/60.0, p.Slope, 1e-9, "one unit per 60 seconds")
	assert.InDelta(t, 14.0, p.ValueAt(start.Add(4*time.Minute)), 1e-6)
}

func TestResistanceRegistrySoonestBreach(t *testing.T) {
	r := NewResistanceRegistry()
	start := time.Now()

	// the wall at 5 loses 10 units a minute, the wall at 4 holds steady
	for i := 0; i < 4; i++ {
		r.Sync([]market.ResistanceLevel{
			{Level: 5, TotalVolume: 100 - float64(i)*10},
			{Level: 4, TotalVolume: 50},
		}, start.Add(time.Duration(i)*time.Minute))
	}

	level, at, ok := r.SoonestBreach(start.Add(3 * time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 5.0, level, 1e-9)
	// 100 units at 10/minute runs out 10 minutes after start
	assert.WithinDuration(t, start.Add(10*time.Minute), at, 5*time.Second)
}

func TestResistanceRegistryEvictsVanishedLevels(t *testing.T) {
	r := NewResistanceRegistry()
	now := time.Now()

	r.Sync([]market.ResistanceLevel{{Level: 5, TotalVolume: 100}}, now)
	require.Equal(t, 1, r.Len())

	r.Sync([]market.ResistanceLevel{{Level: 6, TotalVolume: 40}}, now.Add(time.Minute))
	assert.Equal(t, 1, r.Len())

	_, _, ok := r.SoonestBreach(now)
	assert.False(t, ok, "a fresh single-sample wall has no trend yet")
}
