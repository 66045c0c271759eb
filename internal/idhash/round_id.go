// Package idhash derives deterministic identifiers for persisted rows.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeRoundID computes a deterministic trade round id using SHA256.
// Formula: SHA256(wallet_id|coin_id|action|entry_cycle|exit_cycle)
// Returns hex-encoded hash (64 characters).
func ComputeRoundID(
	walletID string,
	coinID string,
	action string,
	entryCycle string,
	exitCycle string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		walletID,
		coinID,
		action,
		entryCycle,
		exitCycle,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeSnapshotPointID computes a deterministic id for one archived
// price observation.
// Formula: SHA256(coin_id|cycle)
func ComputeSnapshotPointID(coinID, cycle string) string {
	data := fmt.Sprintf("%s|%s", coinID, cycle)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
