package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withinboredom/open-handshake/internal/exchange"
)

func newPaper() *exchange.Paper {
	return exchange.NewPaper("HNSBTC",
		exchange.Balance{Asset: "HNS", Unlocked: 1000},
		exchange.Balance{Asset: "BTC", Unlocked: 1},
	)
}

func place(t *testing.T, gw *exchange.Paper, side string, qty, price float64) *Managed {
	t.Helper()
	o, err := gw.CreateOrder(context.Background(), exchange.OrderRequest{
		Symbol: "HNSBTC", Side: side, Type: exchange.TypeLimit, Quantity: qty, Price: price,
	})
	require.NoError(t, err)
	return New(gw, o)
}

func TestUpdateReplacesOrder(t *testing.T) {
	gw := newPaper()
	m := place(t, gw, exchange.SideSell, 100, 0.001)
	firstID := m.Snapshot().ID

	err := m.Update(context.Background(), 200, 0.002, exchange.TypeLimit)
	require.NoError(t, err)

	assert.False(t, m.Deleted())
	assert.NotEqual(t, firstID, m.Snapshot().ID)
	assert.InDelta(t, 0.002, m.Price(), 1e-12)
	assert.InDelta(t, 200.0, m.Quantity(), 1e-9)
	assert.Equal(t, 2, gw.Creates)
	assert.Equal(t, 1, gw.Cancels)
}

func TestUpdateZeroQuantityDeletes(t *testing.T) {
	gw := newPaper()
	m := place(t, gw, exchange.SideSell, 100, 0.001)

	require.NoError(t, m.Update(context.Background(), 0, 0, exchange.TypeLimit))

	assert.True(t, m.Deleted())
	assert.Zero(t, m.Price())
	assert.Zero(t, m.Quantity())
	assert.Equal(t, exchange.SideSell, m.Side(), "side survives deletion")
	assert.Equal(t, 1, gw.Creates, "no replacement was created")
}

func TestUpdateOutOfFundsDeletesWithoutError(t *testing.T) {
	gw := newPaper()
	m := place(t, gw, exchange.SideSell, 100, 0.001)

	// 5000 base exceeds the remaining balance
	err := m.Update(context.Background(), 5000, 0.001, exchange.TypeLimit)
	require.NoError(t, err)
	assert.True(t, m.Deleted())
}

func TestUpdateRevivesDeletedRung(t *testing.T) {
	gw := newPaper()
	m := NewDeleted(gw, "HNSBTC", exchange.SideBuy)
	require.True(t, m.Deleted())

	err := m.Update(context.Background(), 100, 0.001, exchange.TypeLimit)
	require.NoError(t, err)

	assert.False(t, m.Deleted())
	assert.Equal(t, exchange.SideBuy, m.Side())
	assert.InDelta(t, 100.0, m.Quantity(), 1e-9)
}

func TestRefreshReportsTransitionOnce(t *testing.T) {
	gw := newPaper()
	m := place(t, gw, exchange.SideBuy, 100, 0.001)
	ctx := context.Background()

	change, err := m.Refresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, change, "no transition yet")

	require.NoError(t, gw.Fill(m.Snapshot().ID))

	change, err = m.Refresh(ctx)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, exchange.StatusNew, change.Previous)
	assert.Equal(t, exchange.StatusFilled, change.New)

	change, err = m.Refresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, change, "transition reported only once")
}

func TestLadderLiveAndRefreshAll(t *testing.T) {
	gw := newPaper()
	ladder := NewLadder()
	ladder.Add(place(t, gw, exchange.SideSell, 10, 0.001))
	ladder.Add(place(t, gw, exchange.SideSell, 10, 0.002))
	ladder.Add(NewDeleted(gw, "HNSBTC", exchange.SideSell))

	assert.Equal(t, 3, ladder.Len())
	assert.Equal(t, 2, ladder.Live())

	require.NoError(t, gw.Fill(ladder.At(0).Snapshot().ID))

	changes, err := ladder.RefreshAll(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, exchange.StatusFilled, changes[0].New)

	assert.Equal(t, 2, ladder.Live(), "filled rung still counts as live until replaced")
	assert.Nil(t, ladder.At(5))
}
