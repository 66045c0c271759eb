package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bsc-trade-engine/internal/blocklist"
	"bsc-trade-engine/internal/chain"
	"bsc-trade-engine/internal/config"
	"bsc-trade-engine/internal/decision"
	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/ledger"
	"bsc-trade-engine/internal/notify"
	"bsc-trade-engine/internal/quoter"
	"bsc-trade-engine/internal/snapshot"
	"bsc-trade-engine/internal/storage"
	chstore "bsc-trade-engine/internal/storage/clickhouse"
	"bsc-trade-engine/internal/storage/memory"
	"bsc-trade-engine/internal/storage/migrations"
	pgstore "bsc-trade-engine/internal/storage/postgres"
	"bsc-trade-engine/internal/trade"
	"bsc-trade-engine/internal/tradelog"
	"bsc-trade-engine/internal/txbuilder"
	"bsc-trade-engine/internal/wallets"
)

func main() {
	loop := flag.Duration("loop", 0, "Re-run the cycle at this interval (0 runs once and exits)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	walletStore := wallets.NewStore(cfg.WalletSettingsPath)
	states, err := walletStore.Load()
	if err != nil {
		logger.Fatal("load wallet settings", zap.Error(err))
	}
	if len(states) == 0 {
		logger.Fatal("no wallets configured", zap.String("path", cfg.WalletSettingsPath))
	}

	book, err := config.LoadAddressBook(cfg.TokenAddressesPath)
	if err != nil {
		logger.Fatal("load token addresses", zap.Error(err))
	}

	block, err := blocklist.Load(cfg.BlocklistPath, cfg.BannedRevertSubstrings)
	if err != nil {
		logger.Fatal("load blocklist", zap.Error(err))
	}

	tradeLog, err := tradelog.NewWriter(cfg.TradeLogDir)
	if err != nil {
		logger.Fatal("create trade log writer", zap.Error(err))
	}

	var roundStore storage.TradeRoundStore = memory.NewTradeRoundStore()
	var progress storage.CycleProgressStore = memory.NewCycleProgressStore()
	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatal("run postgres migrations", zap.Error(err))
		}
		roundStore = pgstore.NewTradeRoundStore(pool)
		progress = pgstore.NewCycleProgressStore(pool)
	}

	var archive storage.SnapshotArchiveStore
	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			logger.Fatal("run clickhouse migrations", zap.Error(err))
		}
		defer conn.Close()
		archive = chstore.NewSnapshotArchiveStore(conn)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.TelegramDelay, logger)
		if err != nil {
			logger.Fatal("telegram auth", zap.Error(err))
		}
		go tg.Run(ctx)
		notifier = tg
	}

	reader := snapshot.NewReader(cfg.SnapshotDir)
	led := ledger.New(states)

	var executor trade.Executor = trade.SimExecutor{}
	var chainExec *trade.ChainExecutor
	if anyLive(states) {
		if len(cfg.RPCEndpoints) == 0 {
			logger.Fatal("live wallets configured but RPC_ENDPOINTS is empty")
		}
		client, err := chain.Dial(ctx, cfg.RPCEndpoints, logger)
		if err != nil {
			logger.Fatal("dial rpc", zap.Error(err))
		}
		defer client.Close()

		policy, err := cfg.PriorityPolicy()
		if err != nil {
			logger.Fatal("priority policy", zap.Error(err))
		}
		builder := txbuilder.NewBuilder(client, chain.NewLocker(), policy, logger)
		q := quoter.New(client, logger)
		chainExec = trade.NewChainExecutor(client, q, builder, quoter.DefaultRouters, logger)
		executor = trade.ModeExecutor{Sim: trade.SimExecutor{}, Chain: chainExec}
	}

	engine, err := trade.New(trade.Options{
		Reader:      reader,
		Ledger:      led,
		Resolver:    book,
		Executor:    executor,
		Blocklist:   block,
		Notifier:    notifier,
		TradeLog:    tradeLog,
		RoundStore:  roundStore,
		Archive:     archive,
		Progress:    progress,
		TokenStates: wallets.NewTokenStateStore(cfg.TokenStateDir),
		WalletStore: walletStore,
		CoinLimit:   cfg.CoinLimit,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("create engine", zap.Error(err))
	}

	runOnce := func() (*trade.CycleReport, error) {
		// An unchanged snapshot means the fetcher has not produced a new
		// cycle yet; re-running it would trade on stale prices.
		if last, err := progress.GetLastCycle(ctx); err == nil {
			if snap, err := reader.Latest(); err == nil && snap.Cycle == last.Cycle {
				logger.Info("no new snapshot, skipping", zap.String("cycle", snap.Cycle))
				return nil, nil
			}
		}
		if chainExec != nil {
			setNativePrice(reader, cfg.NativeCoinID, chainExec, logger)
		}
		return engine.RunCycle(ctx)
	}

	if *loop <= 0 {
		report, err := runOnce()
		if err != nil {
			logger.Fatal("run cycle", zap.Error(err))
		}
		if report != nil {
			for _, s := range report.Summaries {
				fmt.Println(decision.RenderMarkdown(s))
			}
		}
		return
	}

	logger.Info("running in loop mode", zap.Duration("interval", *loop))
	ticker := time.NewTicker(*loop)
	defer ticker.Stop()
	for {
		if _, err := runOnce(); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("run cycle", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
		}
	}
}

// anyLive reports whether any enabled wallet trades on-chain.
func anyLive(states map[string]*domain.WalletState) bool {
	for _, w := range states {
		if w.Enabled && !w.Params.Simulation {
			return true
		}
	}
	return false
}

// setNativePrice values the native coin from the latest snapshot so the
// chain executor can normalize reserves and size native-in buys.
func setNativePrice(reader *snapshot.Reader, nativeCoinID string, exec *trade.ChainExecutor, logger *zap.Logger) {
	snap, err := reader.Latest()
	if err != nil {
		logger.Warn("native price refresh", zap.Error(err))
		return
	}
	q, ok := snap.Quote(nativeCoinID)
	if !ok || q.RealPrice() <= 0 {
		logger.Warn("native coin missing from snapshot", zap.String("coin", nativeCoinID))
		return
	}
	exec.SetNativePrice(q.RealPrice())
}
