package txbuilder

import (
	"errors"
	"strings"

	"bsc-trade-engine/internal/chain"
	"bsc-trade-engine/internal/domain"
	"bsc-trade-engine/internal/pathplan"
	"bsc-trade-engine/internal/quoter"
)

// ErrApprovalFailed is returned after the bounded approval retry is
// exhausted.
var ErrApprovalFailed = errors.New("token approval failed after retries")

// Classify maps an execution error onto the trade error taxonomy.
func Classify(err error) domain.ErrorKind {
	switch {
	case err == nil:
		return domain.ErrorKindNone
	case errors.Is(err, quoter.ErrNoViableRouter):
		return domain.ErrorKindNoViableRouter
	case errors.Is(err, pathplan.ErrInsufficientReserve):
		return domain.ErrorKindInsufficientReserve
	case errors.Is(err, ErrApprovalFailed):
		return domain.ErrorKindApprovalFailed
	case chain.IsTimeout(err):
		return domain.ErrorKindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "revert"):
		return domain.ErrorKindSwapReverted
	case strings.Contains(msg, "insufficient funds"):
		return domain.ErrorKindInsufficientBalance
	case strings.Contains(msg, "connection") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "broken pipe"):
		return domain.ErrorKindNetwork
	}
	return domain.ErrorKindUnknown
}

// RevertReason extracts the human-readable revert reason from an RPC
// error message, if one is present.
func RevertReason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	const marker = "execution reverted"
	idx := strings.Index(strings.ToLower(msg), marker)
	if idx < 0 {
		return ""
	}
	reason := msg[idx+len(marker):]
	reason = strings.TrimLeft(reason, ": ")
	return strings.TrimSpace(reason)
}
