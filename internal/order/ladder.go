package order

import (
	"context"
	"sync"
)

// Ladder holds one side's managed orders in rung order: index 0 sits nearest
// the book's center and later rungs step away from it.
type Ladder struct {
	mu    sync.Mutex
	rungs []*Managed
}

func NewLadder() *Ladder {
	return &Ladder{}
}

func (l *Ladder) Add(m *Managed) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rungs = append(l.rungs, m)
}

func (l *Ladder) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rungs)
}

func (l *Ladder) At(i int) *Managed {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.rungs) {
		return nil
	}
	return l.rungs[i]
}

// Orders returns a copy of the rung slice, safe to range over while the
// ladder mutates.
func (l *Ladder) Orders() []*Managed {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Managed, len(l.rungs))
	copy(out, l.rungs)
	return out
}

// Live counts rungs that still have an order resting on the exchange.
func (l *Ladder) Live() int {
	n := 0
	for _, m := range l.Orders() {
		if !m.Deleted() {
			n++
		}
	}
	return n
}

// RefreshAll polls every live rung and collects the status transitions seen.
func (l *Ladder) RefreshAll(ctx context.Context) ([]Change, error) {
	var changes []Change
	for _, m := range l.Orders() {
		change, err := m.Refresh(ctx)
		if err != nil {
			return changes, err
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	return changes, nil
}
