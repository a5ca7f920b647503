package brain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/withinboredom/open-handshake/internal/exchange"
	"github.com/withinboredom/open-handshake/internal/market"
	"github.com/withinboredom/open-handshake/internal/observer"
	"github.com/withinboredom/open-handshake/internal/order"
	"github.com/withinboredom/open-handshake/internal/utils"
)

const (
	// a trend reading beyond this extends the pending delay: ride the move
	trendRideThreshold = 0.8
	trendRideExtension = 120 * time.Second
	// a reading inside this while a delay is pending means the trend died
	trendDeadThreshold = 0.1
	// an anchor snapshot older than this no longer justifies waiting on a
	// resting order
	staleAnchorAge = 5 * time.Minute
)

// trend specializes the grid for a directional market: the side that
// accumulates the appreciating asset collapses its ladder into a single
// order just off the center sized from the whole risk budget, while the
// other side keeps working the range as a grid. When the anchor snapshot
// goes stale the resting order escalates to an immediate one, and after
// that the brain holds its position until a regime change replaces it.
type trend struct {
	Grid
	side observer.Side

	tmu      sync.Mutex
	anchor   market.CeilingData
	escalate bool
	hold     bool
}

func newTrend(deps Deps, side observer.Side) trend {
	t := trend{Grid: Grid{core: core{Deps: deps}}, side: side}
	if side == observer.SideBuy {
		t.anchor = deps.Center.Buy()
	} else {
		t.anchor = deps.Center.Sell()
	}
	return t
}

// TrendUpdate applies the ride-or-die rules for the accumulating side and
// checks the anchor's age.
func (t *trend) TrendUpdate(signal int, value float64) {
	now := t.clock()

	t.tmu.Lock()
	stale := !t.anchor.Timestamp.IsZero() && now.Sub(t.anchor.Timestamp) > staleAnchorAge
	if stale {
		t.escalate = true
	}
	t.tmu.Unlock()

	if stale {
		t.schedule(t.side, now)
	}

	directional := value
	if t.side == observer.SideSell {
		directional = -value
	}
	switch {
	case directional > trendRideThreshold:
		t.schedule(t.side, now.Add(trendRideExtension))
	case abs(value) <= trendDeadThreshold && t.sideCmd(t.side).Cmd == DelayedUpdate:
		utils.GetLogger().Printf("Brain | trend exhausted, dropping pending %s update", t.side)
		t.clearCmd(t.side)
	}
}

func (t *trend) Reconcile(ctx context.Context) error {
	if !t.updating.CompareAndSwap(false, true) {
		utils.GetLogger().Printf("Brain | trend reconciliation already running, skipping tick")
		return nil
	}
	defer t.updating.Store(false)

	other := observer.SideSell
	if t.side == observer.SideSell {
		other = observer.SideBuy
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return t.reconcileSide(ctx, other) })
	group.Go(func() error { return t.reconcileTrendSide(ctx) })
	return group.Wait()
}

func (t *trend) reconcileTrendSide(ctx context.Context) error {
	t.tmu.Lock()
	hold := t.hold
	escalate := t.escalate
	t.tmu.Unlock()

	if hold {
		// position already taken with an immediate order; work the side
		// as a grid until a regime change brings a fresh brain
		return t.reconcileSide(ctx, t.side)
	}

	now := t.clock()
	if !t.sideCmd(t.side).Due(now) {
		return nil
	}

	ceiling := t.ceiling(t.side)
	if ceiling.Bottom == 0 {
		return nil
	}
	t.tmu.Lock()
	t.anchor = ceiling
	t.tmu.Unlock()

	tradable := t.available(t.side)
	if tradable <= 0 {
		utils.GetLogger().Printf("Brain | nothing to commit on %s side", t.side)
		t.clearCmd(t.side)
		return nil
	}

	// the single order rests just short of the center on its own side
	price := ceiling.Bottom - t.Cfg.MinDistanceFromCenter
	if t.side == observer.SideSell {
		price = ceiling.Bottom + t.Cfg.MinDistanceFromCenter
	}

	quantity := tradable * t.risk(t.side)
	if t.side == observer.SideBuy {
		quantity = market.ConvertQuoteToBase(quantity, price)
	}

	orderType := exchange.TypeLimit
	if escalate && t.ladder(t.side).Len() > 1 {
		orderType = exchange.TypeMarket
	}

	if err := t.collapse(ctx, price, quantity, orderType); err != nil {
		return fmt.Errorf("collapsing %s ladder: %w", t.side, err)
	}
	if orderType == exchange.TypeMarket {
		utils.GetLogger().Printf("Brain | stale anchor, went to market on %s side, holding", t.side)
		t.tmu.Lock()
		t.hold = true
		t.tmu.Unlock()
	}
	t.clearCmd(t.side)
	return nil
}

// collapse zeroes every rung but the first and resizes the first to carry
// the whole position.
func (t *trend) collapse(ctx context.Context, price, quantity float64, orderType string) error {
	ladder := t.ladder(t.side)
	if ladder.Len() == 0 {
		ladder.Add(order.NewDeleted(t.Gateway, t.Cfg.Symbol, string(t.side)))
	}

	group, ctx := errgroup.WithContext(ctx)
	for i := 1; i < ladder.Len(); i++ {
		m := ladder.At(i)
		if m.Deleted() {
			continue
		}
		group.Go(func() error {
			return m.Update(ctx, 0, 0, exchange.TypeLimit)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	head := ladder.At(0)
	if !head.Deleted() && head.Price() == price && head.Quantity() == quantity &&
		head.Snapshot().Type == orderType {
		return nil
	}
	return head.Update(ctx, quantity, price, orderType)
}

// TrendingUp accumulates base while the midpoint climbs.
type TrendingUp struct {
	trend
}

func NewTrendingUp(deps Deps) *TrendingUp {
	return &TrendingUp{trend: newTrend(deps, observer.SideBuy)}
}

func (t *TrendingUp) Name() string { return "trending-up" }

// TrendingDown unwinds into quote while the midpoint falls. The regime
// detector wires it in where the range grid would otherwise keep buying
// into the fall.
type TrendingDown struct {
	trend
}

func NewTrendingDown(deps Deps) *TrendingDown {
	return &TrendingDown{trend: newTrend(deps, observer.SideSell)}
}

func (t *TrendingDown) Name() string { return "trending-down" }
