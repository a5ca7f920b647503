package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSellBaseWalksBidsBestFirst(t *testing.T) {
	book := NewOrderBook(
		DepthSnapshot{
			{Price: 9, Quantity: 5},
			{Price: 10, Quantity: 2},
		},
		nil,
	)

	// 2 at 10, remaining 3 at 9.
	est := book.SellBase(5)
	assert.InDelta(t, 2*10+3*9.0, est.Proceeds, 1e-9)
	assert.Equal(t, 9.0, est.WorstLevel)
}

func TestSellBaseStopsAtRequestedQuantity(t *testing.T) {
	book := NewOrderBook(DepthSnapshot{{Price: 10, Quantity: 100}}, nil)

	est := book.SellBase(1)
	assert.InDelta(t, 10.0, est.Proceeds, 1e-9)
	assert.Equal(t, 10.0, est.WorstLevel)
}

func TestSellBaseExhaustsThinBook(t *testing.T) {
	book := NewOrderBook(DepthSnapshot{{Price: 10, Quantity: 1}}, nil)

	// More than the book can absorb: consume everything, no panic.
	est := book.SellBase(5)
	assert.InDelta(t, 10.0, est.Proceeds, 1e-9)
}

func TestSellQuoteWalksAsks(t *testing.T) {
	book := NewOrderBook(nil, DepthSnapshot{
		{Price: 0.0002, Quantity: 1000},
		{Price: 0.0001, Quantity: 1000},
	})

	// First ask level holds 1000*0.0001 = 0.1 quote; spending 0.15 takes all
	// of it plus 0.05 at the next level.
	est := book.SellQuote(0.15)
	assert.InDelta(t, 1000+0.05/0.0002, est.Proceeds, 1e-6)
	assert.Equal(t, 0.0002, est.WorstLevel)
}

func TestSellQuoteEmptyBook(t *testing.T) {
	est := OrderBook{}.SellQuote(1)
	assert.Equal(t, 0.0, est.Proceeds)
	assert.Equal(t, 0.0, est.WorstLevel)
}
