// Package bot
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/withinboredom/open-handshake/internal/brain"
	"github.com/withinboredom/open-handshake/internal/config"
	"github.com/withinboredom/open-handshake/internal/db"
	"github.com/withinboredom/open-handshake/internal/exchange"
	"github.com/withinboredom/open-handshake/internal/journal"
	"github.com/withinboredom/open-handshake/internal/market"
	"github.com/withinboredom/open-handshake/internal/metrics"
	"github.com/withinboredom/open-handshake/internal/notifier"
	"github.com/withinboredom/open-handshake/internal/observer"
	"github.com/withinboredom/open-handshake/internal/order"
	"github.com/withinboredom/open-handshake/internal/series"
	"github.com/withinboredom/open-handshake/internal/utils"
)

// Regime classifies the market by the slope of the filtered midpoint.
type Regime int

const (
	Range Regime = iota
	Up
	Down
)

func (r Regime) String() string {
	switch r {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "range"
	}
}

// midpointScale lifts sub-satoshi prices into a range where the z-score
// filter's float arithmetic is well conditioned.
const midpointScale = 1e12

const (
	signalLag       = 30
	signalThreshold = 4.5
	signalInfluence = 0.1
)

// Deps carries everything the scheduler wires together.
type Deps struct {
	Gateway  exchange.Gateway
	Cfg      config.Config
	Storage  db.Storage
	Balances *db.BalanceLog // optional CSV mirror
	Notifier notifier.Notifier
	Metrics  *metrics.Metrics
}

// Bot owns the tick loop: refresh observers, detect the regime, swap the
// active brain at tick boundaries, drain events into it, then race the
// reconciliation pass against the tick timer.
type Bot struct {
	Deps

	center  *observer.Center
	account *observer.Account
	buys    *order.Ladder
	sells   *order.Ladder

	brain    brain.Brain
	midpoint *series.TrackedSeries
	spike    int
	regime   Regime

	clock func() time.Time
}

func New(d Deps) *Bot {
	if d.Notifier == nil {
		d.Notifier = notifier.Noop{}
	}
	b := &Bot{
		Deps:     d,
		center:   observer.NewCenter(d.Gateway),
		account:  observer.NewAccount(d.Gateway),
		buys:     order.NewLadder(),
		sells:    order.NewLadder(),
		midpoint: series.New(600),
		clock:    time.Now,
	}
	b.brain = brain.NewGrid(b.brainDeps())
	return b
}

func (b *Bot) brainDeps() brain.Deps {
	return brain.Deps{
		Gateway: b.Gateway,
		Center:  b.center,
		Account: b.account,
		Cfg:     b.Cfg,
		Buys:    b.buys,
		Sells:   b.sells,
	}
}

// Reset cancels every resting order left over from a previous run. Ladder
// state is rebuilt from scratch, so stale orders would only shadow it.
func (b *Bot) Reset(ctx context.Context) error {
	logger := utils.GetLogger()
	orders, err := b.Gateway.GetOrders(ctx, exchange.Order.Open)
	if err != nil {
		return fmt.Errorf("failed to list open orders: %w", err)
	}
	for _, o := range orders {
		if err := b.Gateway.CancelOrder(ctx, o.ID); err != nil && !errors.Is(err, exchange.ErrIgnored) {
			return fmt.Errorf("failed to cancel stale order %s: %w", o.ID, err)
		}
	}
	if len(orders) > 0 {
		logger.Printf("Bot | canceled %d stale orders on startup", len(orders))
	}
	return nil
}

// Run drives the tick loop until the context is canceled or the gateway
// reports a fatal outcome. Recoverable tick errors are logged and the loop
// keeps going.
func (b *Bot) Run(ctx context.Context) error {
	logger := utils.GetLogger()

	if err := b.Reset(ctx); err != nil {
		return err
	}

	// First tick always places ladders; there is nothing resting to wait on.
	b.brain.ForceUpdate()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := b.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if exchange.IsFatal(err) {
				msg := fmt.Sprintf("%s stopping: %v", b.Cfg.Symbol, err)
				if nerr := b.Notifier.SendWithRetry(msg); nerr != nil {
					logger.Printf("Bot | fatal notification failed: %v", nerr)
				}
				return err
			}
			logger.Printf("Bot | tick failed, continuing: %v", err)
			b.Storage.LogEvent(ctx, journal.ErrorEvent(b.clock(), err))
			if b.Metrics != nil {
				b.Metrics.TickErrors.Inc()
			}
		}
	}
}

func (b *Bot) tick(ctx context.Context) error {
	now := b.clock()
	b.brain.SetNow(now)

	events, err := b.refresh(ctx, now)
	if err != nil {
		return err
	}

	spike, slope := b.detectTrend(ctx, now)
	b.spike = spike
	b.brain.TrendUpdate(spike, slope)

	b.brain.HandleEvents(b.filterEvents(ctx, now, events))

	b.logBalances(ctx, now)

	// The timer and the reconciliation run together; the next tick starts
	// only after both finish, so a slow exchange stretches the period
	// instead of stacking requests.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		timer := time.NewTimer(b.Cfg.UpdatePeriod.Std())
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	g.Go(func() error {
		return b.brain.Reconcile(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if b.Metrics != nil {
		b.Metrics.Ticks.Inc()
	}
	return nil
}

// refresh polls the account, the depth, and every resting order concurrently
// and fans their change events back into one slice.
func (b *Bot) refresh(ctx context.Context, now time.Time) ([]observer.Event, error) {
	var (
		accountEvents []observer.Event
		centerEvents  []observer.Event
		buyChanges    []order.Change
		sellChanges   []order.Change
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		accountEvents, err = b.account.Refresh(gctx)
		return err
	})
	g.Go(func() (err error) {
		centerEvents, err = b.center.Refresh(gctx, now)
		return err
	})
	g.Go(func() (err error) {
		buyChanges, err = b.buys.RefreshAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		sellChanges, err = b.sells.RefreshAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	events := make([]observer.Event, 0, len(accountEvents)+len(centerEvents)+len(buyChanges)+len(sellChanges))
	events = append(events, accountEvents...)
	events = append(events, centerEvents...)
	for _, ch := range append(buyChanges, sellChanges...) {
		events = append(events, observer.OrderStatusChanged{Order: ch.Order, Previous: ch.Previous, New: ch.New})
	}
	return events, nil
}

// detectTrend folds the current bid/ask midpoint into the tracked series and
// classifies the regime by the slope of the filtered mean. A regime change
// swaps the brain before any event reaches it, and forces both sides to
// rebuild under the new strategy.
func (b *Bot) detectTrend(ctx context.Context, now time.Time) (spike int, slope float64) {
	buy := b.center.Buy().Bottom
	sell := b.center.Sell().Bottom
	b.midpoint.ObserveAt(((sell-buy)/2+buy)*midpointScale, now)

	spike, slope = b.midpoint.Signal(signalLag, signalThreshold, signalInfluence)

	regime := Range
	if slope > 0 {
		regime = Up
	} else if slope < 0 {
		regime = Down
	}
	if regime == b.regime {
		return spike, slope
	}

	previous := b.brain.Name()
	switch regime {
	case Up:
		b.brain = brain.NewTrendingUp(b.brainDeps())
	case Down:
		b.brain = brain.NewTrendingDown(b.brainDeps())
	default:
		b.brain = brain.NewGrid(b.brainDeps())
	}
	b.regime = regime
	b.brain.SetNow(now)
	b.brain.ForceUpdate()

	utils.GetLogger().Printf("Bot | regime %s, swapping %s -> %s", regime, previous, b.brain.Name())
	b.Storage.LogEvent(ctx, journal.RegimeEvent(now, previous, b.brain.Name()))
	if b.Metrics != nil {
		b.Metrics.RegimeSwaps.Inc()
	}
	if err := b.Notifier.Send(fmt.Sprintf("%s regime %s: %s -> %s", b.Cfg.Symbol, regime, previous, b.brain.Name())); err != nil {
		utils.GetLogger().Printf("Bot | regime notification failed: %v", err)
	}

	return spike, slope
}

// filterEvents journals order transitions and drops ceiling moves while the
// spike signal is firing. A spiking midpoint makes every ceiling jumpy; the
// trend machinery owns the reaction instead.
func (b *Bot) filterEvents(ctx context.Context, now time.Time, events []observer.Event) []observer.Event {
	kept := make([]observer.Event, 0, len(events))
	for _, e := range events {
		switch ev := e.(type) {
		case observer.CeilingChanged:
			if b.spike != 0 {
				continue
			}
		case observer.OrderStatusChanged:
			b.Storage.LogEvent(ctx, journal.OrderEvent(now, ev.Order, ev.Previous, ev.New))
			if b.Metrics != nil {
				b.Metrics.OrderMutations.WithLabelValues(ev.Order.Side).Inc()
			}
		}
		kept = append(kept, e)
	}
	return kept
}

// logBalances values the account in the base asset at the current buy bottom
// and records one history row per tick, plus the liquidation estimates the
// original operator display showed.
func (b *Bot) logBalances(ctx context.Context, now time.Time) {
	logger := utils.GetLogger()

	acct := b.account.Last()
	rate := b.center.Buy().Bottom
	if rate <= 0 {
		return
	}

	point := db.BalancePoint{
		Time:       now.UTC(),
		Base:       acct.Base.Total(),
		Quote:      acct.Quote.Total(),
		QuoteValue: market.ConvertQuoteToBase(acct.Quote.Total(), rate),
		Rate:       rate,
	}
	point.Total = point.Base + point.QuoteValue

	if err := b.Storage.SaveBalancePoint(ctx, point); err != nil {
		logger.Printf("Bot | failed to save balance point: %v", err)
	}
	if b.Balances != nil {
		if err := b.Balances.Append(point); err != nil {
			logger.Printf("Bot | failed to append balance row: %v", err)
		}
	}
	if b.Metrics != nil {
		b.Metrics.Equity.Set(point.Total)
		b.Metrics.Rate.Set(rate)
	}

	book := b.center.Book()
	toQuote := book.SellBase(point.Base)
	toBase := book.SellQuote(point.Quote)
	logger.Printf("Bot | %s total %.2f %s (rate %.8f) | dump base -> %.8f %s to %.8f | dump quote -> %.2f %s to %.8f",
		b.Cfg.Symbol, point.Total, b.Cfg.BaseAsset, rate,
		toQuote.Proceeds, b.Cfg.QuoteAsset, toQuote.WorstLevel,
		toBase.Proceeds, b.Cfg.BaseAsset, toBase.WorstLevel)
}
