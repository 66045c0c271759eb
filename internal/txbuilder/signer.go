package txbuilder

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds one wallet's signing key and derived address.
type Signer struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// NewSignerFromHex parses a hex-encoded private key, with or without the
// 0x prefix.
func NewSignerFromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{
		Address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}, nil
}
