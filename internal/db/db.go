// Package db
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/withinboredom/open-handshake/internal/journal"
)

// BalancePoint is one periodic snapshot of the account, valued in the
// base asset at the conversion rate observed at the time.
type BalancePoint struct {
	Time       time.Time
	Base       float64 // total base asset held
	Quote      float64 // total quote asset held
	QuoteValue float64 // quote holdings converted to base at Rate
	Total      float64 // Base + QuoteValue
	Rate       float64 // quote per base (buy-side bottom) at snapshot time
}

// Storage is the interface for all persistent storage.
type Storage interface {
	GetDB() *sql.DB
	SaveBalancePoint(ctx context.Context, p BalancePoint) error
	GetBalanceHistory(ctx context.Context, start, end time.Time) ([]BalancePoint, error)
	LogEvent(ctx context.Context, event journal.Event) error
	GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error)
	Close() error
}
