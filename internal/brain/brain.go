package brain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/withinboredom/open-handshake/internal/config"
	"github.com/withinboredom/open-handshake/internal/exchange"
	"github.com/withinboredom/open-handshake/internal/market"
	"github.com/withinboredom/open-handshake/internal/observer"
	"github.com/withinboredom/open-handshake/internal/order"
	"github.com/withinboredom/open-handshake/internal/utils"
)

// HeavyBias says how a ladder's size is distributed across its rungs.
type HeavyBias int

const (
	BiasNone HeavyBias = iota
	BiasBottom
	BiasTop
)

func (b HeavyBias) String() string {
	switch b {
	case BiasBottom:
		return "bottom"
	case BiasTop:
		return "top"
	default:
		return "none"
	}
}

// Brain decides when and how the order ladders get rebuilt. The scheduler
// drives it: events in, one Reconcile per tick.
type Brain interface {
	Name() string
	SetNow(time.Time)
	HandleEvents([]observer.Event)
	TrendUpdate(signal int, value float64)
	ForceUpdate()
	Reconcile(ctx context.Context) error
	BuySchedule() Schedule
	SellSchedule() Schedule
}

// Deps carries the shared collaborators every brain works against. Ladders
// are owned by the scheduler so they survive a brain swap.
type Deps struct {
	Gateway exchange.Gateway
	Center  *observer.Center
	Account *observer.Account
	Cfg     config.Config
	Buys    *order.Ladder
	Sells   *order.Ladder
}

// core is the state and trigger handling shared by every brain flavor.
type core struct {
	Deps

	mu       sync.Mutex
	now      time.Time
	buyCmd   Schedule
	sellCmd  Schedule
	buyBias  HeavyBias
	sellBias HeavyBias

	updating atomic.Bool
}

const (
	balanceTriggerPercent = 0.15
	balanceDelay          = 30 * time.Second
	biasDelay             = 5 * time.Minute
	fillDelay             = 30 * time.Second
)

func (c *core) SetNow(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *core) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now.IsZero() {
		return time.Now()
	}
	return c.now
}

func (c *core) BuySchedule() Schedule {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buyCmd
}

func (c *core) SellSchedule() Schedule {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sellCmd
}

func (c *core) ForceUpdate() {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buyCmd = c.buyCmd.SetTime(now, now)
	c.sellCmd = c.sellCmd.SetTime(now, now)
}

// schedule merges a trigger into one side's pending command.
func (c *core) schedule(side observer.Side, candidate time.Time) {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if side == observer.SideBuy {
		c.buyCmd = c.buyCmd.SetTime(now, candidate)
	} else {
		c.sellCmd = c.sellCmd.SetTime(now, candidate)
	}
}

func (c *core) sideCmd(side observer.Side) Schedule {
	c.mu.Lock()
	defer c.mu.Unlock()
	if side == observer.SideBuy {
		return c.buyCmd
	}
	return c.sellCmd
}

func (c *core) clearCmd(side observer.Side) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if side == observer.SideBuy {
		c.buyCmd = Schedule{}
	} else {
		c.sellCmd = Schedule{}
	}
}

// handleEvent applies the shared trigger rules. Side ownership: the sell
// ladder disposes of the base asset, the buy ladder of the quote asset.
func (c *core) handleEvent(e observer.Event) {
	now := c.clock()
	switch event := e.(type) {
	case observer.BalanceChanged:
		if abs(market.PercentChanged(event.Previous, event.New)) > balanceTriggerPercent {
			side := observer.SideSell
			if event.Asset == c.Cfg.QuoteAsset {
				side = observer.SideBuy
			}
			utils.GetLogger().Printf("Brain | %s moved, scheduling %s update", event, side)
			c.schedule(side, now.Add(balanceDelay))
		}
		c.refreshBias(now)

	case observer.CeilingChanged:
		bottomMove := abs(market.PercentChanged(event.Previous.Bottom, event.New.Bottom))
		wallMove := 0.0
		if len(event.Previous.Resistance) > 0 && len(event.New.Resistance) > 0 {
			wallMove = abs(market.PercentChanged(event.Previous.Resistance[0].Level, event.New.Resistance[0].Level))
		}
		if bottomMove > c.Cfg.CenterChangeThreshold || wallMove > c.Cfg.ResistanceChangeThreshold {
			utils.GetLogger().Printf("Brain | %s beyond threshold, scheduling immediate update", event)
			c.schedule(event.Side, now)
		}
		// price drift alone can push the portfolio ratio across a bound
		c.refreshBias(now)

	case observer.OrderStatusChanged:
		side := observer.Side(event.Order.Side)
		switch event.New {
		case exchange.StatusFilled, exchange.StatusClosed:
			utils.GetLogger().Printf("Brain | %s, scheduling %s update", event, side)
			c.schedule(side, now.Add(fillDelay))
		case exchange.StatusPartiallyFilled:
			if c.sideCmd(side).Cmd == DelayedUpdate {
				c.schedule(side, now.Add(fillDelay))
			}
		}
	}
}

// refreshBias recomputes the portfolio ratio and reschedules a side whose
// heavy bias flipped.
func (c *core) refreshBias(now time.Time) {
	account := c.Account.Last()
	book := c.Center.Book()

	baseValue := book.SellBase(account.Base.Total()).Proceeds
	quoteValue := account.Quote.Total()
	total := baseValue + quoteValue

	buyBias, sellBias := BiasNone, BiasNone
	if total > 0 {
		baseShare := baseValue / total
		switch {
		case baseShare > c.Cfg.Base.Ratio:
			// heavy on base: dispose of base near the center, acquire
			// reluctantly
			sellBias, buyBias = BiasBottom, BiasTop
		case (1 - baseShare) > c.Cfg.Quote.Ratio:
			buyBias, sellBias = BiasBottom, BiasTop
		}
	}

	c.mu.Lock()
	buyChanged := buyBias != c.buyBias
	sellChanged := sellBias != c.sellBias
	c.buyBias = buyBias
	c.sellBias = sellBias
	c.mu.Unlock()

	if buyChanged {
		utils.GetLogger().Printf("Brain | buy bias now %s", buyBias)
		c.schedule(observer.SideBuy, now.Add(biasDelay))
	}
	if sellChanged {
		utils.GetLogger().Printf("Brain | sell bias now %s", sellBias)
		c.schedule(observer.SideSell, now.Add(biasDelay))
	}
}

func (c *core) bias(side observer.Side) HeavyBias {
	c.mu.Lock()
	defer c.mu.Unlock()
	if side == observer.SideBuy {
		return c.buyBias
	}
	return c.sellBias
}

// ladder returns the managed orders for one side.
func (c *core) ladder(side observer.Side) *order.Ladder {
	if side == observer.SideBuy {
		return c.Buys
	}
	return c.Sells
}

// available returns the risk-free balance a side may commit: the owning
// asset's total minus its configured floor.
func (c *core) available(side observer.Side) float64 {
	account := c.Account.Last()
	if side == observer.SideBuy {
		return account.Quote.Total() - c.Cfg.Quote.Zero
	}
	return account.Base.Total() - c.Cfg.Base.Zero
}

func (c *core) risk(side observer.Side) float64 {
	if side == observer.SideBuy {
		return c.Cfg.Quote.MaximumRisk
	}
	return c.Cfg.Base.MaximumRisk
}

func (c *core) ceiling(side observer.Side) market.CeilingData {
	if side == observer.SideBuy {
		return c.Center.Buy()
	}
	return c.Center.Sell()
}

func (c *core) walls(side observer.Side) *observer.ResistanceRegistry {
	if side == observer.SideBuy {
		return c.Center.BuyWalls()
	}
	return c.Center.SellWalls()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
