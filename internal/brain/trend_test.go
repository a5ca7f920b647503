package brain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withinboredom/open-handshake/internal/exchange"
	"github.com/withinboredom/open-handshake/internal/observer"
	"github.com/withinboredom/open-handshake/internal/order"
)

func TestTrendingUpCollapsesBuyLadder(t *testing.T) {
	f := newFixture(t)

	// seed a grid-era buy ladder
	g := NewGrid(f.deps)
	g.SetNow(f.now)
	g.ForceUpdate()
	require.NoError(t, g.Reconcile(context.Background()))
	require.Equal(t, 2, f.deps.Buys.Len())

	up := NewTrendingUp(f.deps)
	up.SetNow(f.now)
	up.ForceUpdate()
	require.NoError(t, up.Reconcile(context.Background()))

	// rung 1 zeroed, rung 0 carries the whole quote-side risk budget at
	// one minimum distance below the buy bottom
	assert.True(t, f.deps.Buys.At(1).Deleted())
	head := f.deps.Buys.At(0)
	assert.False(t, head.Deleted())
	assert.InDelta(t, 9.5, head.Price(), 1e-9)
	assert.InDelta(t, 10.0*0.5/9.5, head.Quantity(), 1e-9)
	assert.Equal(t, exchange.TypeLimit, head.Snapshot().Type)
	assert.Equal(t, None, up.BuySchedule().Cmd)
}

func TestTrendingUpKeepsSellGrid(t *testing.T) {
	f := newFixture(t)
	up := NewTrendingUp(f.deps)
	up.SetNow(f.now)
	up.ForceUpdate()

	require.NoError(t, up.Reconcile(context.Background()))

	// sell side built exactly like the plain grid would
	require.Equal(t, 2, f.deps.Sells.Len())
	assert.InDelta(t, 20.5, f.deps.Sells.At(0).Price(), 1e-9)
	assert.InDelta(t, 250.0, f.deps.Sells.At(0).Quantity(), 1e-9)
}

func TestTrendRideExtendsDelay(t *testing.T) {
	f := newFixture(t)
	up := NewTrendingUp(f.deps)
	up.SetNow(f.now)

	up.schedule(observer.SideBuy, f.now.Add(30*time.Second))
	up.TrendUpdate(1, 0.9)

	s := up.BuySchedule()
	assert.Equal(t, DelayedUpdate, s.Cmd)
	assert.Equal(t, f.now.Add(120*time.Second), s.At, "strong trend pushes the update out")
}

func TestTrendExhaustionDropsPendingDelay(t *testing.T) {
	f := newFixture(t)
	up := NewTrendingUp(f.deps)
	up.SetNow(f.now)

	up.schedule(observer.SideBuy, f.now.Add(30*time.Second))
	require.Equal(t, DelayedUpdate, up.BuySchedule().Cmd)

	up.TrendUpdate(0, 0.05)
	assert.Equal(t, None, up.BuySchedule().Cmd)
}

func TestTrendExhaustionLeavesPriorityAlone(t *testing.T) {
	f := newFixture(t)
	up := NewTrendingUp(f.deps)
	up.SetNow(f.now)
	up.ForceUpdate()

	up.TrendUpdate(0, 0.05)
	assert.Equal(t, PriorityUpdate, up.BuySchedule().Cmd)
}

func TestTrendingDownMirrorsThresholds(t *testing.T) {
	f := newFixture(t)
	down := NewTrendingDown(f.deps)
	down.SetNow(f.now)

	down.schedule(observer.SideSell, f.now.Add(30*time.Second))
	down.TrendUpdate(-1, -0.9)
	assert.Equal(t, f.now.Add(120*time.Second), down.SellSchedule().At)

	// a positive reading is not "riding" a down trend
	down2 := NewTrendingDown(f.deps)
	down2.SetNow(f.now)
	down2.schedule(observer.SideSell, f.now.Add(30*time.Second))
	down2.TrendUpdate(1, 0.9)
	assert.Equal(t, f.now.Add(30*time.Second), down2.SellSchedule().At)
}

func TestTrendStaleAnchorEscalatesToMarket(t *testing.T) {
	f := newFixture(t)

	down := NewTrendingDown(f.deps)
	down.SetNow(f.now)
	down.ForceUpdate()
	require.NoError(t, down.Reconcile(context.Background()))
	require.GreaterOrEqual(t, f.deps.Sells.Len(), 1)

	// ten minutes later the anchor snapshot is stale
	later := f.now.Add(10 * time.Minute)
	down.SetNow(later)
	down.TrendUpdate(-1, -0.9)
	require.Equal(t, PriorityUpdate, down.SellSchedule().Cmd)

	// seed a second rung so the ladder qualifies for escalation
	o, err := f.gw.CreateOrder(context.Background(), exchange.OrderRequest{
		Symbol: "HNSBTC", Side: exchange.SideSell, Type: exchange.TypeLimit, Quantity: 10, Price: 29,
	})
	require.NoError(t, err)
	f.deps.Sells.Add(order.New(f.gw, o))

	require.NoError(t, down.Reconcile(context.Background()))

	head := f.deps.Sells.At(0)
	assert.Equal(t, exchange.TypeMarket, head.Snapshot().Type)
	assert.Equal(t, exchange.StatusFilled, head.Snapshot().Status)

	// holding: the next pass works the side as a grid again
	down.ForceUpdate()
	require.NoError(t, down.Reconcile(context.Background()))
	assert.Equal(t, exchange.TypeLimit, f.deps.Sells.At(0).Snapshot().Type)
}
