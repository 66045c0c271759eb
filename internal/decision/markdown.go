package decision

import (
	"fmt"
	"strings"

	"bsc-trade-engine/internal/domain"
)

// CycleSummary aggregates one wallet's cycle for reporting.
type CycleSummary struct {
	WalletID string
	Cycle    string

	Buys        int
	Sells       int
	StopLosses  int
	Holds       int
	NoActions   int
	Unprocessed int
	Failed      int

	PnlUsd float64
}

// Count records one evaluated result in the summary.
func (s *CycleSummary) Count(result *Result, outcome *domain.TradeOutcome) {
	if result.Unprocessed {
		s.Unprocessed++
		return
	}
	if outcome != nil && outcome.Status == domain.OutcomeFailed {
		s.Failed++
		return
	}
	switch result.Action {
	case domain.ActionBuy:
		s.Buys++
	case domain.ActionSell:
		s.Sells++
	case domain.ActionStopLoss:
		s.StopLosses++
	case domain.ActionHold:
		s.Holds++
	default:
		s.NoActions++
	}
}

// RenderMarkdown renders the cycle summary as a Markdown string.
func RenderMarkdown(s *CycleSummary) string {
	var sb strings.Builder

	sb.WriteString("# Cycle Summary\n\n")
	sb.WriteString(fmt.Sprintf("Wallet: %s\n", s.WalletID))
	sb.WriteString(fmt.Sprintf("Cycle: %s\n\n", s.Cycle))

	sb.WriteString("| Action | Count |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Buy | %d |\n", s.Buys))
	sb.WriteString(fmt.Sprintf("| Sell | %d |\n", s.Sells))
	sb.WriteString(fmt.Sprintf("| Stop-loss | %d |\n", s.StopLosses))
	sb.WriteString(fmt.Sprintf("| Hold | %d |\n", s.Holds))
	sb.WriteString(fmt.Sprintf("| No action | %d |\n", s.NoActions))
	sb.WriteString(fmt.Sprintf("| Unprocessed | %d |\n", s.Unprocessed))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", s.Failed))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Cycle PnL: %.2f USD\n", s.PnlUsd))
	return sb.String()
}
