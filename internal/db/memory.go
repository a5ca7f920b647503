package db

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/withinboredom/open-handshake/internal/journal"
)

// MemoryStorage keeps balance history and events in process memory.
// Used for paper trading and tests, where nothing needs to survive a restart.
type MemoryStorage struct {
	mu sync.RWMutex

	points []BalancePoint
	events []journal.Event
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		points: make([]BalancePoint, 0, 1024),
		events: make([]journal.Event, 0, 1024),
	}
}

// GetDB returns nil for in-memory storage (no SQL database)
func (m *MemoryStorage) GetDB() *sql.DB { return nil }

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) SaveBalancePoint(ctx context.Context, point BalancePoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, point)
	return nil
}

func (m *MemoryStorage) GetBalanceHistory(ctx context.Context, start, end time.Time) ([]BalancePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []BalancePoint
	for _, p := range m.points {
		if p.Time.Before(start) || p.Time.After(end) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *MemoryStorage) LogEvent(ctx context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []journal.Event
	for _, e := range m.events {
		if e.Type != eventType {
			continue
		}
		if e.Time.Before(start) || e.Time.After(end) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
