package brain

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/withinboredom/open-handshake/internal/exchange"
	"github.com/withinboredom/open-handshake/internal/market"
	"github.com/withinboredom/open-handshake/internal/observer"
	"github.com/withinboredom/open-handshake/internal/order"
	"github.com/withinboredom/open-handshake/internal/utils"
)

// Grid is the range-bound market maker: it keeps a ladder of resting orders
// on each side of the spread, spaced between the book bottom and the wall
// predicted to break soonest.
type Grid struct {
	core
}

func NewGrid(deps Deps) *Grid {
	return &Grid{core: core{Deps: deps}}
}

func (g *Grid) Name() string { return "grid" }

func (g *Grid) HandleEvents(events []observer.Event) {
	for _, e := range events {
		g.handleEvent(e)
	}
}

// TrendUpdate is a no-op: the grid works the range and ignores momentum.
func (g *Grid) TrendUpdate(signal int, value float64) {}

// Reconcile runs at most one ladder rebuild at a time. A tick that lands
// while one is in flight is dropped, not queued: a queued rebuild would act
// on a stale anchor.
func (g *Grid) Reconcile(ctx context.Context) error {
	if !g.updating.CompareAndSwap(false, true) {
		utils.GetLogger().Printf("Brain | grid reconciliation already running, skipping tick")
		return nil
	}
	defer g.updating.Store(false)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return g.reconcileSide(ctx, observer.SideSell) })
	group.Go(func() error { return g.reconcileSide(ctx, observer.SideBuy) })
	return group.Wait()
}

// rung is one target slot of the ladder being built.
type rung struct {
	price    float64
	quantity float64
}

func (g *Grid) reconcileSide(ctx context.Context, side observer.Side) error {
	now := g.clock()
	if !g.sideCmd(side).Due(now) {
		return nil
	}

	ceiling := g.ceiling(side)
	if len(ceiling.Resistance) == 0 {
		return nil
	}

	tradable := g.available(side)
	if tradable <= 0 {
		utils.GetLogger().Printf("Brain | nothing to trade on %s side, skipping rebuild", side)
		g.clearCmd(side)
		return nil
	}

	targets := g.buildLadder(side, ceiling, tradable*g.risk(side), now)
	if err := g.applyLadder(ctx, side, targets); err != nil {
		return fmt.Errorf("rebuilding %s ladder: %w", side, err)
	}
	g.clearCmd(side)
	return nil
}

// anchorIndex picks the resistance level whose predicted breach is soonest.
// With no breach trend in sight the nearest wall anchors the ladder.
func (g *Grid) anchorIndex(side observer.Side, ceiling market.CeilingData, now time.Time) int {
	level, _, ok := g.walls(side).SoonestBreach(now)
	if !ok {
		return 0
	}
	if idx := ceiling.FindResistanceIndex(level); idx >= 0 {
		return idx
	}
	return 0
}

// buildLadder computes the target rungs: count slots evenly spaced between
// the bottom and the anchor wall, each at least the minimum distance out
// from the bottom, sized by the heavy-bias weighting of the risk budget.
func (g *Grid) buildLadder(side observer.Side, ceiling market.CeilingData, budget float64, now time.Time) []rung {
	count := g.Cfg.NumberOrders
	minDist := g.Cfg.MinDistanceFromCenter
	anchor := ceiling.Resistance[g.anchorIndex(side, ceiling, now)]

	dir := 1.0
	if side == observer.SideBuy {
		dir = -1
	}

	step := (anchor.Level - ceiling.Bottom) / float64(count)
	bias := g.bias(side)

	targets := make([]rung, count)
	for i := 0; i < count; i++ {
		price := ceiling.Bottom + dir*minDist + step*float64(i)
		if abs(price-ceiling.Bottom) < minDist {
			price = ceiling.Bottom + dir*minDist
		}

		var weight float64
		switch bias {
		case BiasBottom:
			weight = (0.1*float64(i) + 1) / 55
		case BiasTop:
			weight = (0.1*float64(count-i) + 1) / 55
		default:
			weight = 1 / float64(count)
		}

		quantity := budget * weight
		if side == observer.SideBuy {
			// the buy ladder spends quote; orders are sized in base
			quantity = market.ConvertQuoteToBase(quantity, price)
		}
		targets[i] = rung{price: price, quantity: quantity}
	}
	return targets
}

// applyLadder reconciles the target rungs against the managed orders
// positionally: missing rungs are created, differing rungs replaced and
// surplus rungs zeroed. Identical rungs are left alone so a rebuild that
// changes nothing touches nothing.
func (g *Grid) applyLadder(ctx context.Context, side observer.Side, targets []rung) error {
	ladder := g.ladder(side)
	for ladder.Len() < len(targets) {
		ladder.Add(order.NewDeleted(g.Gateway, g.Cfg.Symbol, string(side)))
	}

	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < ladder.Len(); i++ {
		m := ladder.At(i)
		target := rung{}
		if i < len(targets) {
			target = targets[i]
		}
		if !m.Deleted() && m.Price() == target.price && m.Quantity() == target.quantity {
			continue
		}
		if m.Deleted() && target.quantity <= 0 {
			continue
		}
		group.Go(func() error {
			return m.Update(ctx, target.quantity, target.price, exchange.TypeLimit)
		})
	}
	return group.Wait()
}
