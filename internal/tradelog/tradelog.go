// Package tradelog writes the per-cycle CSV trade log.
package tradelog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"bsc-trade-engine/internal/domain"
)

var header = []string{
	"Time", "Wallet", "Symbol", "Volume",
	"Comparison Price", "Current Price", "Real Price", "Price Ratio",
	"Action", "Profits/Losses",
}

// Row is one coin's evaluation in one cycle.
type Row struct {
	Time               time.Time
	WalletID           string
	Symbol             string
	VolumeUsd          float64
	ComparisonPriceUsd float64
	CurrentPriceUsd    float64
	RealPriceUsd       float64
	PriceRatio         float64
	Action             domain.Action
	// PnlUsd is nil for rows without a completed round; rendered as "-".
	PnlUsd *float64
}

// Writer emits one CSV file per cycle plus a stable latest file.
type Writer struct {
	dir string
}

// NewWriter creates a writer under dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create trade log dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Write stores the cycle's rows as trade_log_<cycle>.csv and mirrors
// them to trade_log_latest.csv. Returns the cycle file path.
func (w *Writer) Write(cycle string, rows []Row) (string, error) {
	path := filepath.Join(w.dir, fmt.Sprintf("trade_log_%s.csv", cycle))
	if err := w.writeFile(path, rows); err != nil {
		return "", err
	}
	latest := filepath.Join(w.dir, "trade_log_latest.csv")
	if err := w.writeFile(latest, rows); err != nil {
		return "", err
	}
	return path, nil
}

func (w *Writer) writeFile(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		pnl := "-"
		if row.PnlUsd != nil {
			pnl = formatFloat(*row.PnlUsd)
		}
		record := []string{
			row.Time.UTC().Format(time.RFC3339),
			row.WalletID,
			row.Symbol,
			formatFloat(row.VolumeUsd),
			formatFloat(row.ComparisonPriceUsd),
			formatFloat(row.CurrentPriceUsd),
			formatFloat(row.RealPriceUsd),
			formatFloat(row.PriceRatio),
			string(row.Action),
			pnl,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
