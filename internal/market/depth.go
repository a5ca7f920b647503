// Package market
package market

import (
	"errors"
	"math"
	"sort"
	"time"
)

// DepthLevel is one (price, quantity) pair from an exchange depth snapshot.
type DepthLevel struct {
	Price    float64
	Quantity float64
}

// DepthSnapshot is the raw depth of one side of the book at a point in time.
type DepthSnapshot []DepthLevel

// ResistanceLevel is a detected depth wall and the cumulative volume between
// the bottom of the book and that wall (inclusive).
type ResistanceLevel struct {
	Level       float64
	TotalVolume float64
}

// CeilingData is the analyzed view of one side of the book: the best price
// and the resistance walls beyond it, ordered by distance from the bottom.
// It is rebuilt wholesale on every market poll and never mutated in place.
type CeilingData struct {
	Bottom     float64
	Resistance []ResistanceLevel
	Timestamp  time.Time
}

// ErrEmptyDepth is returned when a depth snapshot has no levels to analyze.
var ErrEmptyDepth = errors.New("market: empty depth snapshot")

// AnalyzeDepth derives CeilingData from a raw depth snapshot.
// higherIsBetter is true for bids (the best bid is the highest price) and
// false for asks.
//
// A level counts as a resistance wall when its quantity exceeds the snapshot's
// mean quantity by more than one sample standard deviation, so the definition
// of "wall" calibrates itself to the current book rather than a fixed
// threshold. The farthest level is used as a fallback so Resistance is never
// empty.
func AnalyzeDepth(levels DepthSnapshot, higherIsBetter bool) (CeilingData, error) {
	if len(levels) == 0 {
		return CeilingData{}, ErrEmptyDepth
	}

	ordered := make(DepthSnapshot, len(levels))
	copy(ordered, levels)
	sort.Slice(ordered, func(i, j int) bool {
		if higherIsBetter {
			return ordered[i].Price > ordered[j].Price
		}
		return ordered[i].Price < ordered[j].Price
	})

	quantities := make([]float64, len(ordered))
	for i, l := range ordered {
		quantities[i] = l.Quantity
	}
	mean := Mean(quantities)
	std := StdDev(quantities, mean)

	data := CeilingData{
		Bottom:    ordered[0].Price,
		Timestamp: time.Now().UTC(),
	}

	total := ordered[0].Quantity
	for i := 1; i < len(ordered); i++ {
		total += ordered[i].Quantity
		if ordered[i].Quantity > mean+std {
			data.Resistance = append(data.Resistance, ResistanceLevel{
				Level:       ordered[i].Price,
				TotalVolume: total,
			})
		}
	}

	if len(data.Resistance) == 0 {
		last := ordered[len(ordered)-1]
		data.Resistance = []ResistanceLevel{{Level: last.Price, TotalVolume: total}}
	}

	return data, nil
}

// FindResistanceIndex returns the position of level in the resistance list,
// or -1 when the level is no longer present.
func (c CeilingData) FindResistanceIndex(level float64) int {
	for i, r := range c.Resistance {
		if r.Level == level {
			return i
		}
	}
	return -1
}

// Mean returns the arithmetic mean of data, or 0 for an empty slice.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// StdDev returns the sample standard deviation of data around mean.
func StdDev(data []float64, mean float64) float64 {
	if len(data) < 2 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range data {
		sumSquares += (v - mean) * (v - mean)
	}
	return math.Sqrt(sumSquares / float64(len(data)-1))
}

// PercentChanged returns the relative change from v1 to v2 in percent.
// A zero starting value yields 0 so callers never divide by zero.
func PercentChanged(v1, v2 float64) float64 {
	if v1 == 0 {
		return 0
	}
	return (v2 - v1) / v1 * 100
}

// ConvertQuoteToBase converts an amount of the quote asset into the base
// asset at the given rate. All unit conversions in the bot go through this
// function instead of being hidden inside assignments.
func ConvertQuoteToBase(amount, rate float64) float64 {
	if rate == 0 {
		return 0
	}
	return amount / rate
}
