package blocklist

import (
	"path/filepath"
	"testing"
)

func TestFatalMatchesBannedSubstrings(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "blocklist.json"), nil)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		reason string
		fatal  bool
	}{
		{"TransferHelper: TRANSFER_FROM_FAILED", true},
		{"transferhelper: transfer_failed", true},
		{"PancakeRouter: INSUFFICIENT_OUTPUT_AMOUNT", true},
		{"Pancake: LOCKED", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := b.Fatal(tc.reason); got != tc.fatal {
			t.Errorf("Fatal(%q) = %t, want %t", tc.reason, got, tc.fatal)
		}
	}
}

func TestBlockPersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.json")

	b, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	b.Block("coin-1", "TRANSFER_FROM_FAILED")
	b.Block("coin-2", "TRANSFER_TAX")
	if err := b.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := Load(path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Blocked("coin-1") || !reloaded.Blocked("coin-2") {
		t.Fatal("blocked coins lost on reload")
	}
	if reloaded.Blocked("coin-3") {
		t.Fatal("unblocked coin reported blocked")
	}
	coins := reloaded.Coins()
	if len(coins) != 2 || coins[0] != "coin-1" || coins[1] != "coin-2" {
		t.Fatalf("coins %v", coins)
	}
}

func TestBannedSubstringsNormalizedOnLoad(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "blocklist.json"), []string{"transfer_tax"})
	if err != nil {
		t.Fatal(err)
	}
	if !b.Fatal("TransferHelper: TRANSFER_TAX") {
		t.Fatal("lowercase configured substring must match an uppercase reason")
	}
	if !b.Fatal("token charges a Transfer_Tax on sells") {
		t.Fatal("matching must ignore case on both sides")
	}
}

func TestCustomBannedSubstrings(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "blocklist.json"), []string{"HONEYPOT"})
	if err != nil {
		t.Fatal(err)
	}
	if !b.Fatal("token is a honeypot") {
		t.Fatal("custom substring must match case-insensitively")
	}
	if b.Fatal("TRANSFER_FROM_FAILED") {
		t.Fatal("defaults must not apply when a custom list is given")
	}
}
