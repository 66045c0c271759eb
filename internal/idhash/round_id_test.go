package idhash

import "testing"

func TestComputeRoundIDDeterministic(t *testing.T) {
	a := ComputeRoundID("wallet-1", "coin-1", "sell", "000010", "000025")
	b := ComputeRoundID("wallet-1", "coin-1", "sell", "000010", "000025")
	if a != b {
		t.Fatal("same inputs must produce the same id")
	}
	if len(a) != 64 {
		t.Fatalf("id length %d, want 64", len(a))
	}
}

func TestComputeRoundIDDistinguishesFields(t *testing.T) {
	base := ComputeRoundID("wallet-1", "coin-1", "sell", "000010", "000025")
	cases := []string{
		ComputeRoundID("wallet-2", "coin-1", "sell", "000010", "000025"),
		ComputeRoundID("wallet-1", "coin-2", "sell", "000010", "000025"),
		ComputeRoundID("wallet-1", "coin-1", "stop_loss", "000010", "000025"),
		ComputeRoundID("wallet-1", "coin-1", "sell", "000011", "000025"),
		ComputeRoundID("wallet-1", "coin-1", "sell", "000010", "000026"),
	}
	for i, other := range cases {
		if other == base {
			t.Fatalf("case %d collided with base", i)
		}
	}
}

func TestComputeSnapshotPointID(t *testing.T) {
	a := ComputeSnapshotPointID("coin-1", "000010")
	b := ComputeSnapshotPointID("coin-1", "000011")
	if a == b {
		t.Fatal("different cycles must produce different ids")
	}
	if len(a) != 64 {
		t.Fatalf("id length %d, want 64", len(a))
	}
}
