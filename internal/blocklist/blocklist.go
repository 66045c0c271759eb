// Package blocklist tracks coins permanently removed from the tradable
// set after a recognized fatal revert.
package blocklist

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
)

// DefaultBannedSubstrings are revert-reason fragments that mark a token
// as untradable for good (honeypots, fee traps, broken transfers).
var DefaultBannedSubstrings = []string{
	"TRANSFER_FROM_FAILED",
	"TRANSFER_FAILED",
	"TRANSFER_TAX",
	"INSUFFICIENT_OUTPUT_AMOUNT",
}

// Blocklist is a persisted set of blocked coin ids.
type Blocklist struct {
	mu     sync.Mutex
	path   string
	banned []string
	coins  map[string]string // coin id -> revert reason that blocked it
}

// Load reads the blocklist from path. A missing file yields an empty
// list. bannedSubstrings defaults to DefaultBannedSubstrings when nil;
// entries are matched case-insensitively regardless of how they are
// configured.
func Load(path string, bannedSubstrings []string) (*Blocklist, error) {
	if bannedSubstrings == nil {
		bannedSubstrings = DefaultBannedSubstrings
	}
	banned := make([]string, len(bannedSubstrings))
	for i, s := range bannedSubstrings {
		banned[i] = strings.ToUpper(s)
	}
	b := &Blocklist{
		path:   path,
		banned: banned,
		coins:  make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read blocklist: %w", err)
	}
	if err := sonic.Unmarshal(data, &b.coins); err != nil {
		return nil, fmt.Errorf("decode blocklist: %w", err)
	}
	return b, nil
}

// Blocked reports whether the coin is on the list.
func (b *Blocklist) Blocked(coinID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.coins[coinID]
	return ok
}

// Fatal reports whether a revert reason matches a banned substring,
// meaning retries are doomed and the coin should be blocked.
func (b *Blocklist) Fatal(revertReason string) bool {
	if revertReason == "" {
		return false
	}
	upper := strings.ToUpper(revertReason)
	for _, s := range b.banned {
		if strings.Contains(upper, s) {
			return true
		}
	}
	return false
}

// Block adds a coin with the reason that condemned it.
func (b *Blocklist) Block(coinID, revertReason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coins[coinID] = revertReason
}

// Coins returns the blocked coin ids, sorted.
func (b *Blocklist) Coins() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.coins))
	for id := range b.coins {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Save persists the list.
func (b *Blocklist) Save() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := sonic.MarshalIndent(b.coins, "", "  ")
	if err != nil {
		return fmt.Errorf("encode blocklist: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write blocklist: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("rename blocklist: %w", err)
	}
	return nil
}
