// Package series
package series

import (
	"math"
	"time"

	"github.com/withinboredom/open-handshake/internal/market"
)

// Sample is one observed value with the time it was recorded.
type Sample struct {
	Value float64
	At    time.Time
}

// TrackedSeries is a bounded FIFO queue of timestamped samples. The oldest
// sample is evicted when capacity is exceeded. It is owned by exactly one
// component and is not safe for concurrent use.
type TrackedSeries struct {
	samples  []Sample
	capacity int
	latest   float64
	seen     bool
}

// New creates a TrackedSeries holding at most capacity samples.
func New(capacity int) *TrackedSeries {
	if capacity < 1 {
		capacity = 1
	}
	return &TrackedSeries{capacity: capacity}
}

// Observe records v at the current time.
func (s *TrackedSeries) Observe(v float64) {
	s.ObserveAt(v, time.Now())
}

// ObserveAt records v at the given time, evicting the oldest sample when the
// series is full.
func (s *TrackedSeries) ObserveAt(v float64, at time.Time) {
	s.latest = v
	s.seen = true
	if len(s.samples) >= s.capacity {
		s.samples = s.samples[1:]
	}
	s.samples = append(s.samples, Sample{Value: v, At: at})
}

// Latest returns the most recently observed value, or 0 before the first
// observation.
func (s *TrackedSeries) Latest() float64 {
	return s.latest
}

// Len returns the number of retained samples.
func (s *TrackedSeries) Len() int {
	return len(s.samples)
}

// Values returns a copy of the retained samples, oldest first.
func (s *TrackedSeries) Values() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Prediction is an ordinary-least-squares trend line fitted over the series,
// with time measured in seconds elapsed since Origin.
type Prediction struct {
	Slope     float64
	Intercept float64
	Origin    time.Time
	valid     bool
}

// Predict fits a least-squares line over (elapsed seconds, value) pairs.
// With fewer than two samples, or a degenerate time axis, the prediction is
// flat and TimeFor reports "never".
func (s *TrackedSeries) Predict() Prediction {
	if len(s.samples) < 2 {
		return Prediction{}
	}

	origin := s.samples[0].At
	var sumX, sumY, sumXX, sumXY float64
	n := float64(len(s.samples))
	for _, sample := range s.samples {
		x := sample.At.Sub(origin).Seconds()
		y := sample.Value
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}

	ssX := sumXX - sumX*sumX/n
	if ssX == 0 {
		return Prediction{Origin: origin}
	}

	cov := sumXY - sumX*sumY/n
	slope := cov / ssX
	intercept := sumY/n - slope*(sumX/n)
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return Prediction{Origin: origin}
	}

	return Prediction{Slope: slope, Intercept: intercept, Origin: origin, valid: true}
}

// ValueAt extrapolates the trend line to the given time.
func (p Prediction) ValueAt(t time.Time) float64 {
	if !p.valid {
		return p.Intercept
	}
	return p.Slope*t.Sub(p.Origin).Seconds() + p.Intercept
}

// TimeFor inverts the trend line, returning when the series is predicted to
// reach v. ok is false when the line never reaches it (zero slope or a
// non-finite extrapolation).
func (p Prediction) TimeFor(v float64) (time.Time, bool) {
	if !p.valid || p.Slope == 0 {
		return time.Time{}, false
	}
	seconds := (v - p.Intercept) / p.Slope
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return time.Time{}, false
	}
	return p.Origin.Add(time.Duration(seconds * float64(time.Second))), true
}

// Signal runs a smoothed z-score test over the series and returns the last
// sample's signal in {-1, 0, +1} together with the slope of the rolling
// filtered mean.
//
// The filter is seeded with the mean and standard deviation of the first lag
// samples. Each later sample is flagged when it deviates from the rolling
// mean by more than threshold standard deviations; flagged samples only
// contribute influence (0..1) of their value to the filtered series before
// the window statistics are recomputed.
func (s *TrackedSeries) Signal(lag int, threshold, influence float64) (int, float64) {
	input := s.samples
	if lag < 1 || len(input) <= lag {
		return 0, 0
	}

	signals := make([]int, len(input))
	filtered := make([]float64, len(input))
	avgFilter := make([]float64, len(input))
	stdFilter := make([]float64, len(input))
	for i, sample := range input {
		filtered[i] = sample.Value
	}

	seed := filtered[:lag]
	seedMean := market.Mean(seed)
	avgFilter[lag-1] = seedMean
	stdFilter[lag-1] = market.StdDev(seed, seedMean)

	sloper := New(len(input))

	for i := lag; i < len(input); i++ {
		v := input[i].Value
		if math.Abs(v-avgFilter[i-1]) > threshold*stdFilter[i-1] {
			if v > avgFilter[i-1] {
				signals[i] = 1
			} else {
				signals[i] = -1
			}
			filtered[i] = influence*v + (1-influence)*filtered[i-1]
		} else {
			signals[i] = 0
			filtered[i] = v
		}

		start := i - lag
		window := filtered[start : i+1]
		mean := market.Mean(window)
		avgFilter[i] = mean
		stdFilter[i] = market.StdDev(window, mean)
		sloper.ObserveAt(mean, input[i].At)
	}

	return signals[len(signals)-1], sloper.Predict().Slope
}
