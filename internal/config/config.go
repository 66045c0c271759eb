// Package config loads engine settings from the environment, with an
// optional .env file for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"bsc-trade-engine/internal/txbuilder"
)

type Config struct {
	// Chain
	RPCEndpoints []string // RPC_ENDPOINTS, comma-separated, primary first
	NativeCoinID string   // NATIVE_COIN_ID: snapshot coin whose price values the native coin

	// Priority payment (static policy, nothing fetched at runtime)
	PriorityRecipient string  // PRIORITY_RECIPIENT, hex address
	PriorityFraction  float64 // PRIORITY_FRACTION in [0, 1), 0 disables

	// Paths
	SnapshotDir        string // SNAPSHOT_DIR
	WalletSettingsPath string // WALLET_SETTINGS_PATH
	TokenStateDir      string // TOKEN_STATE_DIR
	BlocklistPath      string // BLOCKLIST_PATH
	TradeLogDir        string // TRADE_LOG_DIR
	TokenAddressesPath string // TOKEN_ADDRESSES_PATH

	// Storage (empty DSN falls back to in-memory stores)
	PostgresDSN   string // POSTGRES_DSN
	ClickHouseDSN string // CLICKHOUSE_DSN

	// Telegram
	TelegramBotToken string        // TELEGRAM_BOT_TOKEN, empty disables alerts
	TelegramChatID   int64         // TELEGRAM_CHAT_ID
	TelegramDelay    time.Duration // TELEGRAM_SEND_DELAY

	// Engine
	CoinLimit              int      // COIN_LIMIT: concurrent per-coin tasks per wallet
	BannedRevertSubstrings []string // BANNED_REVERT_SUBSTRINGS, comma-separated, empty keeps defaults
}

// Load reads the environment, after merging a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{
		RPCEndpoints:           listFromEnv("RPC_ENDPOINTS"),
		NativeCoinID:           getenvDefault("NATIVE_COIN_ID", "wbnb"),
		PriorityRecipient:      os.Getenv("PRIORITY_RECIPIENT"),
		PriorityFraction:       floatFromEnv("PRIORITY_FRACTION", 0),
		SnapshotDir:            getenvDefault("SNAPSHOT_DIR", "data"),
		WalletSettingsPath:     getenvDefault("WALLET_SETTINGS_PATH", "configs/wallet_settings.json"),
		TokenStateDir:          getenvDefault("TOKEN_STATE_DIR", "configs"),
		BlocklistPath:          getenvDefault("BLOCKLIST_PATH", "configs/blocklist.json"),
		TradeLogDir:            getenvDefault("TRADE_LOG_DIR", "csv"),
		TokenAddressesPath:     getenvDefault("TOKEN_ADDRESSES_PATH", "configs/token_addresses.json"),
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		ClickHouseDSN:          os.Getenv("CLICKHOUSE_DSN"),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramDelay:          durationFromEnv("TELEGRAM_SEND_DELAY", "1s"),
		CoinLimit:              intFromEnv("COIN_LIMIT", 50),
		BannedRevertSubstrings: listFromEnv("BANNED_REVERT_SUBSTRINGS"),
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if _, err := cfg.PriorityPolicy(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PriorityPolicy builds and validates the static priority payment
// policy.
func (c *Config) PriorityPolicy() (txbuilder.PriorityPaymentPolicy, error) {
	policy := txbuilder.PriorityPaymentPolicy{
		Fraction: c.PriorityFraction,
	}
	if c.PriorityRecipient != "" {
		if !common.IsHexAddress(c.PriorityRecipient) {
			return policy, fmt.Errorf("PRIORITY_RECIPIENT %q is not a hex address", c.PriorityRecipient)
		}
		policy.Recipient = common.HexToAddress(c.PriorityRecipient)
	}
	if err := policy.Validate(); err != nil {
		return policy, err
	}
	return policy, nil
}

// AddressBook maps coin ids to their on-chain token addresses. It is
// the production SymbolResolver.
type AddressBook map[string]string

// LoadAddressBook reads the coin id to address map from a JSON file.
// Addresses are validated at load so a typo never reaches the builder.
func LoadAddressBook(path string) (AddressBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token addresses: %w", err)
	}
	var book AddressBook
	if err := sonic.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("decode token addresses: %w", err)
	}
	for coinID, addr := range book {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("token address for %s is not a hex address: %q", coinID, addr)
		}
	}
	return book, nil
}

// Resolve returns the token address for a coin id.
func (a AddressBook) Resolve(coinID string) (string, bool) {
	addr, ok := a[coinID]
	return addr, ok
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}

func listFromEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
