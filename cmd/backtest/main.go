package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"bsc-trade-engine/internal/backtest"
	"bsc-trade-engine/internal/blocklist"
	"bsc-trade-engine/internal/config"
	"bsc-trade-engine/internal/faultinject"
	"bsc-trade-engine/internal/snapshot"
	"bsc-trade-engine/internal/storage"
	"bsc-trade-engine/internal/storage/memory"
	"bsc-trade-engine/internal/storage/migrations"
	pgstore "bsc-trade-engine/internal/storage/postgres"
	"bsc-trade-engine/internal/wallets"
)

func main() {
	startCycle := flag.String("start", "", "First snapshot cycle to replay (inclusive)")
	endCycle := flag.String("end", "", "Last snapshot cycle to replay (inclusive)")
	outputJSON := flag.Bool("json", false, "Output the report as JSON")
	persist := flag.Bool("persist", false, "Persist trade rounds to Postgres (requires POSTGRES_DSN)")
	congestionSeed := flag.Int64("congestion-seed", 0, "Seed for the congestion fault injector (0 disables)")
	congestionDrop := flag.Float64("congestion-drop", 0.0, "Probability a quote is dropped per coin")
	verbose := flag.Bool("v", false, "Log every cycle")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewProduction(); err != nil {
			panic(err)
		}
		defer logger.Sync()
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	states, err := wallets.NewStore(cfg.WalletSettingsPath).Load()
	if err != nil {
		fatal("load wallet settings: %v", err)
	}
	book, err := config.LoadAddressBook(cfg.TokenAddressesPath)
	if err != nil {
		fatal("load token addresses: %v", err)
	}
	// Backtests start from a fresh blocklist so one poisoned run does not
	// shrink the universe of the next.
	tmpDir, err := os.MkdirTemp("", "backtest")
	if err != nil {
		fatal("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)
	block, err := blocklist.Load(filepath.Join(tmpDir, "blocklist.json"), cfg.BannedRevertSubstrings)
	if err != nil {
		fatal("init blocklist: %v", err)
	}

	var roundStore storage.TradeRoundStore = memory.NewTradeRoundStore()
	if *persist {
		if cfg.PostgresDSN == "" {
			fatal("--persist requires POSTGRES_DSN")
		}
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			fatal("connect to postgres: %v", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			fatal("run postgres migrations: %v", err)
		}
		roundStore = pgstore.NewTradeRoundStore(pool)
	}

	var injector faultinject.Injector = faultinject.Nop{}
	if *congestionSeed != 0 {
		injector = faultinject.NewCongestion(*congestionSeed, *congestionDrop, 0)
	}

	runner, err := backtest.NewRunner(backtest.Options{
		Reader:     snapshot.NewReader(cfg.SnapshotDir),
		Wallets:    states,
		Resolver:   book,
		StartCycle: *startCycle,
		EndCycle:   *endCycle,
		Blocklist:  block,
		RoundStore: roundStore,
		Injector:   injector,
		Logger:     logger,
	})
	if err != nil {
		fatal("create runner: %v", err)
	}

	report, err := runner.Run(ctx)
	if err != nil {
		fatal("backtest failed: %v", err)
	}

	if *outputJSON {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		return
	}
	printReport(report)
}

func printReport(r *backtest.Report) {
	fmt.Println()
	fmt.Println("=== Backtest Report ===")
	fmt.Printf("Cycles:     %d (%s .. %s)\n", r.CyclesRun, r.StartCycle, r.EndCycle)
	fmt.Printf("Total PnL:  %+.2f USD\n", r.TotalPnl)
	fmt.Println()
	for _, w := range r.Wallets {
		fmt.Printf("Wallet %s:\n", w.WalletID)
		fmt.Printf("  Balance:        %.2f USD\n", w.AvailableBalanceUsd)
		fmt.Printf("  Open holdings:  %d\n", w.OpenHoldings)
		fmt.Printf("  Trades:         %d (%d wins / %d losses)\n", w.Stats.Trades, w.Stats.Wins, w.Stats.Losses)
		fmt.Printf("  Realized PnL:   %+.2f USD\n", w.Stats.TotalProfitUsd)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "backtest: "+format+"\n", args...)
	os.Exit(1)
}
