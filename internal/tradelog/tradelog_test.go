package tradelog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bsc-trade-engine/internal/domain"
)

func TestWriteCycleAndLatest(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	pnl := 4.25
	rows := []Row{
		{
			Time:               time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			WalletID:           "wallet-1",
			Symbol:             "0x7012",
			VolumeUsd:          5000,
			ComparisonPriceUsd: 1.0,
			CurrentPriceUsd:    0.55,
			RealPriceUsd:       0.55,
			PriceRatio:         0.55,
			Action:             domain.ActionBuy,
		},
		{
			Time:            time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC),
			WalletID:        "wallet-1",
			Symbol:          "0x7034",
			CurrentPriceUsd: 1.3,
			RealPriceUsd:    1.3,
			PriceRatio:      1.3,
			Action:          domain.ActionSell,
			PnlUsd:          &pnl,
		},
	}

	path, err := w.Write("000123", rows)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Base(path) != "trade_log_000123.csv" {
		t.Fatalf("path %s", path)
	}

	records := readCSV(t, path)
	if len(records) != 3 {
		t.Fatalf("got %d records, want header + 2 rows", len(records))
	}
	if records[0][0] != "Time" || records[0][9] != "Profits/Losses" {
		t.Fatalf("header %v", records[0])
	}
	if records[1][9] != "-" {
		t.Fatalf("buy row pnl %q, want dash", records[1][9])
	}
	if records[2][9] != "4.25" {
		t.Fatalf("sell row pnl %q", records[2][9])
	}
	if records[2][8] != "sell" {
		t.Fatalf("action %q", records[2][8])
	}

	latest := readCSV(t, filepath.Join(dir, "trade_log_latest.csv"))
	if len(latest) != len(records) {
		t.Fatal("latest file must mirror the cycle file")
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}
