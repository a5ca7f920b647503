package db

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// BalanceLog appends balance snapshots to a CSV file so a run can be
// charted without a database. The header row is written once, when the
// file is created.
type BalanceLog struct {
	mu   sync.Mutex
	file *os.File
}

func NewBalanceLog(path, baseAsset, quoteAsset string) (*BalanceLog, error) {
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open balance log %s: %w", path, err)
	}

	if fresh {
		base := strings.ToLower(baseAsset)
		quote := strings.ToLower(quoteAsset)
		header := fmt.Sprintf("time,%s,%s,%s value,total,%s conversion rate\n", base, quote, quote, quote)
		if _, err := file.WriteString(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write balance log header: %w", err)
		}
	}

	return &BalanceLog{file: file}, nil
}

func (b *BalanceLog) Append(point BalancePoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	row := fmt.Sprintf("%s,%f,%f,%f,%f,%f\n",
		point.Time.UTC().Format("2006-01-02 15:04:05"),
		point.Base, point.Quote, point.QuoteValue, point.Total, point.Rate)
	if _, err := b.file.WriteString(row); err != nil {
		return fmt.Errorf("failed to append balance row: %w", err)
	}
	return nil
}

func (b *BalanceLog) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
