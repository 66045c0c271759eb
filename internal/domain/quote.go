package domain

import "fmt"

// Price sanity window: the spot/dex ratio must stay within [0.1, 10],
// otherwise the quote is considered corrupted and the coin is skipped.
const (
	SanityRatioMin = 0.1
	SanityRatioMax = 10.0
)

// PriceQuote is one coin's entry in a price snapshot.
// Snapshot files store it as a positional array of 2-4 elements;
// DecodeQuoteArray maps the array length onto the optional fields once
// at ingestion so the rest of the engine never sees positional data.
type PriceQuote struct {
	CoinID       string
	SpotPriceUsd float64 // third-party API price, sanity cross-check
	VolumeUsd    float64 // 24h volume in USD
	DexPriceUsd  float64 // on-chain router price, authoritative when present
	HasDexPrice  bool
	MarketCapUsd float64
	HasMarketCap bool
}

// DecodeQuoteArray decodes the positional snapshot array for a coin.
// Length 2 is [spot, volume], 3 adds the dex price, 4 adds market cap.
func DecodeQuoteArray(coinID string, arr []float64) (PriceQuote, error) {
	if len(arr) < 2 {
		return PriceQuote{}, fmt.Errorf("quote array for %s has %d elements, need at least 2", coinID, len(arr))
	}
	q := PriceQuote{
		CoinID:       coinID,
		SpotPriceUsd: arr[0],
		VolumeUsd:    arr[1],
	}
	if len(arr) >= 3 {
		q.DexPriceUsd = arr[2]
		q.HasDexPrice = true
	}
	if len(arr) >= 4 {
		q.MarketCapUsd = arr[3]
		q.HasMarketCap = true
	}
	return q, nil
}

// RealPrice returns the price thresholds are evaluated against:
// the on-chain dex price when present and positive, the spot price otherwise.
func (q PriceQuote) RealPrice() float64 {
	if q.HasDexPrice && q.DexPriceUsd > 0 {
		return q.DexPriceUsd
	}
	return q.SpotPriceUsd
}

// SanityOK reports whether the spot and dex prices agree within the
// sanity window. A missing or zero spot price cannot be cross-checked
// and passes.
func (q PriceQuote) SanityOK() bool {
	if !q.HasDexPrice || q.DexPriceUsd <= 0 || q.SpotPriceUsd <= 0 {
		return true
	}
	ratio := q.SpotPriceUsd / q.DexPriceUsd
	return ratio >= SanityRatioMin && ratio <= SanityRatioMax
}
