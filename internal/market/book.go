package market

import "sort"

// OrderBook holds both sides of the book with levels ordered best-first:
// bids descending by price, asks ascending.
type OrderBook struct {
	Bids DepthSnapshot
	Asks DepthSnapshot
}

// NewOrderBook builds an OrderBook from raw snapshots, sorting each side
// best-first regardless of the order the exchange returned them in.
func NewOrderBook(bids, asks DepthSnapshot) OrderBook {
	b := make(DepthSnapshot, len(bids))
	copy(b, bids)
	sort.Slice(b, func(i, j int) bool { return b[i].Price > b[j].Price })

	a := make(DepthSnapshot, len(asks))
	copy(a, asks)
	sort.Slice(a, func(i, j int) bool { return a[i].Price < a[j].Price })

	return OrderBook{Bids: b, Asks: a}
}

// LiquidationEstimate is the result of walking one side of the book:
// the total proceeds in the counter-asset and the worst price level touched.
type LiquidationEstimate struct {
	Proceeds   float64
	WorstLevel float64
}

// SellBase estimates the proceeds (in the quote asset) of selling quantity
// of the base asset into the current bids, consuming level liquidity
// greedily from best to worst. Informational only; never used for placement.
func (b OrderBook) SellBase(quantity float64) LiquidationEstimate {
	var est LiquidationEstimate
	if len(b.Bids) > 0 {
		est.WorstLevel = b.Bids[0].Price
	}
	for _, level := range b.Bids {
		if quantity <= 0 {
			break
		}
		taking := min(level.Quantity, quantity)
		est.Proceeds += taking * level.Price
		est.WorstLevel = level.Price
		quantity -= taking
	}
	return est
}

// SellQuote estimates the proceeds (in the base asset) of spending amount of
// the quote asset against the current asks.
func (b OrderBook) SellQuote(amount float64) LiquidationEstimate {
	var est LiquidationEstimate
	if len(b.Asks) > 0 {
		est.WorstLevel = b.Asks[0].Price
	}
	for _, level := range b.Asks {
		if amount <= 0 {
			break
		}
		levelQuote := level.Quantity * level.Price
		taking := min(levelQuote, amount)
		est.Proceeds += ConvertQuoteToBase(taking, level.Price)
		est.WorstLevel = level.Price
		amount -= taking
	}
	return est
}
