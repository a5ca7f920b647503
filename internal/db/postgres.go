package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/withinboredom/open-handshake/internal/journal"
)

// Transaction context key
type txKey struct{}

// WithTransaction adds a transaction to the context
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or returns nil if not present
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

type Default struct {
	db *sql.DB
}

// New opens a Postgres connection and ensures the schema exists.
func New(connStr string, maxOpen, maxIdle int) (*Default, error) {
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Default{db: sqlDB}
	if err := p.initSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Default) initSchema() error {
	_, err := p.db.Exec(`
	CREATE TABLE IF NOT EXISTS balance_points (
		time TIMESTAMPTZ NOT NULL,
		base DOUBLE PRECISION NOT NULL,
		quote DOUBLE PRECISION NOT NULL,
		quote_value DOUBLE PRECISION NOT NULL,
		total DOUBLE PRECISION NOT NULL,
		rate DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (time)
	);
	CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		time TIMESTAMPTZ NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		data JSONB
	);
	CREATE INDEX IF NOT EXISTS events_type_time_idx ON events (type, time);`)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

func (p *Default) Close() error {
	return p.db.Close()
}

// executeWithTransaction executes a function with proper transaction management.
// If a transaction exists in context, it uses that. Otherwise, it creates a new one.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

// queryWithTransaction executes a query using transaction from context if available
func (p *Default) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

func (p *Default) SaveBalancePoint(ctx context.Context, point BalancePoint) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO balance_points (time, base, quote, quote_value, total, rate)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (time) DO UPDATE SET
			base=EXCLUDED.base, quote=EXCLUDED.quote, quote_value=EXCLUDED.quote_value,
			total=EXCLUDED.total, rate=EXCLUDED.rate`,
			point.Time, point.Base, point.Quote, point.QuoteValue, point.Total, point.Rate)
		if err != nil {
			return fmt.Errorf("failed to save balance point at %s: %w", point.Time, err)
		}
		return nil
	})
}

func (p *Default) GetBalanceHistory(ctx context.Context, start, end time.Time) ([]BalancePoint, error) {
	rows, err := p.queryWithTransaction(ctx, `
	SELECT time, base, quote, quote_value, total, rate FROM balance_points
	WHERE time >= $1 AND time <= $2 ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, nil
	}
	defer rows.Close()
	var points []BalancePoint
	for rows.Next() {
		var bp BalancePoint
		if err := rows.Scan(&bp.Time, &bp.Base, &bp.Quote, &bp.QuoteValue, &bp.Total, &bp.Rate); err != nil {
			return nil, err
		}
		bp.Time = bp.Time.UTC()
		points = append(points, bp)
	}
	return points, rows.Err()
}

func (p *Default) LogEvent(ctx context.Context, event journal.Event) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		data, _ := json.Marshal(event.Data)
		_, err := tx.ExecContext(ctx, `INSERT INTO events (time, type, description, data) VALUES ($1,$2,$3,$4)`,
			event.Time, event.Type, event.Description, data)
		if err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		return nil
	})
}

func (p *Default) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	rows, err := p.queryWithTransaction(ctx, `SELECT time, type, description, data FROM events WHERE type=$1 AND time >= $2 AND time <= $3 ORDER BY time ASC`, eventType, start, end)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, nil
	}
	defer rows.Close()
	var events []journal.Event
	for rows.Next() {
		var e journal.Event
		var data []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &data); err != nil {
			return nil, err
		}
		json.Unmarshal(data, &e.Data)
		e.Time = e.Time.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
