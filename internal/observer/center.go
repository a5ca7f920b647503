package observer

import (
	"context"
	"fmt"
	"time"

	"github.com/withinboredom/open-handshake/internal/exchange"
	"github.com/withinboredom/open-handshake/internal/market"
	"github.com/withinboredom/open-handshake/internal/series"
)

// bottomHistory bounds every per-level and per-side series the observer
// keeps. At one sample per tick this is a couple hours of history.
const bottomHistory = 120

// Center watches the order book around the spread: the best-price "bottom"
// of each side, the resistance walls behind it, and their drift over time.
type Center struct {
	gateway exchange.Gateway

	primed bool
	buy    market.CeilingData
	sell   market.CeilingData
	book   market.OrderBook

	buyBottoms  *series.TrackedSeries
	sellBottoms *series.TrackedSeries
	buyWalls    *ResistanceRegistry
	sellWalls   *ResistanceRegistry
}

func NewCenter(gw exchange.Gateway) *Center {
	return &Center{
		gateway:     gw,
		buyBottoms:  series.New(bottomHistory),
		sellBottoms: series.New(bottomHistory),
		buyWalls:    NewResistanceRegistry(),
		sellWalls:   NewResistanceRegistry(),
	}
}

func (c *Center) Buy() market.CeilingData        { return c.buy }
func (c *Center) Sell() market.CeilingData       { return c.sell }
func (c *Center) Book() market.OrderBook         { return c.book }
func (c *Center) BuyWalls() *ResistanceRegistry  { return c.buyWalls }
func (c *Center) SellWalls() *ResistanceRegistry { return c.sellWalls }

// PredictBuy fits a line through the recent buy-side bottoms.
func (c *Center) PredictBuy() series.Prediction { return c.buyBottoms.Predict() }

// PredictSell fits a line through the recent sell-side bottoms.
func (c *Center) PredictSell() series.Prediction { return c.sellBottoms.Predict() }

// Refresh pulls a fresh depth snapshot, reanalyzes both sides and emits a
// CeilingChanged per side whose bottom or nearest wall moved. The first poll
// primes the baseline silently.
func (c *Center) Refresh(ctx context.Context, now time.Time) ([]Event, error) {
	depth, err := c.gateway.GetDepth(ctx)
	if err != nil {
		return nil, fmt.Errorf("refreshing depth: %w", err)
	}

	book := market.NewOrderBook(depth.Bids, depth.Asks)
	buy, err := market.AnalyzeDepth(book.Bids, true)
	if err != nil {
		return nil, fmt.Errorf("analyzing bid depth: %w", err)
	}
	sell, err := market.AnalyzeDepth(book.Asks, false)
	if err != nil {
		return nil, fmt.Errorf("analyzing ask depth: %w", err)
	}

	var events []Event
	if c.primed {
		if ceilingMoved(c.buy, buy) {
			events = append(events, CeilingChanged{Side: SideBuy, Previous: c.buy, New: buy})
		}
		if ceilingMoved(c.sell, sell) {
			events = append(events, CeilingChanged{Side: SideSell, Previous: c.sell, New: sell})
		}
	}

	c.book = book
	c.buy = buy
	c.sell = sell
	c.primed = true

	c.buyBottoms.ObserveAt(buy.Bottom, now)
	c.sellBottoms.ObserveAt(sell.Bottom, now)
	c.buyWalls.Sync(buy.Resistance, now)
	c.sellWalls.Sync(sell.Resistance, now)

	return events, nil
}

// ceilingMoved reports whether the bottom or the nearest wall shifted
// between two analyses. Resistance is never empty, but the guard keeps a
// malformed snapshot from panicking.
func ceilingMoved(prev, next market.CeilingData) bool {
	if prev.Bottom != next.Bottom {
		return true
	}
	if len(prev.Resistance) == 0 || len(next.Resistance) == 0 {
		return len(prev.Resistance) != len(next.Resistance)
	}
	return prev.Resistance[0].Level != next.Resistance[0].Level
}

// ResistanceRegistry tracks each resistance wall's volume over time so the
// trend of a wall being eaten away can be extrapolated to a breach time.
// Levels that vanish from the snapshot are dropped along with their history.
type ResistanceRegistry struct {
	walls map[float64]*series.TrackedSeries
}

func NewResistanceRegistry() *ResistanceRegistry {
	return &ResistanceRegistry{walls: make(map[float64]*series.TrackedSeries)}
}

func (r *ResistanceRegistry) Len() int { return len(r.walls) }

// Sync records the current volume for every present level and evicts levels
// no longer in the snapshot.
func (r *ResistanceRegistry) Sync(levels []market.ResistanceLevel, at time.Time) {
	seen := make(map[float64]bool, len(levels))
	for _, level := range levels {
		seen[level.Level] = true
		s, ok := r.walls[level.Level]
		if !ok {
			s = series.New(bottomHistory)
			r.walls[level.Level] = s
		}
		s.ObserveAt(level.TotalVolume, at)
	}
	for level := range r.walls {
		if !seen[level] {
			delete(r.walls, level)
		}
	}
}

// SoonestBreach extrapolates each wall's volume trend to zero and returns the
// level predicted to be breached soonest after now. ok is false when no wall
// is shrinking toward zero in the future.
func (r *ResistanceRegistry) SoonestBreach(now time.Time) (level float64, at time.Time, ok bool) {
	for l, s := range r.walls {
		breach, valid := s.Predict().TimeFor(0)
		if !valid || !breach.After(now) {
			continue
		}
		if !ok || breach.Before(at) {
			level, at, ok = l, breach, true
		}
	}
	return level, at, ok
}
