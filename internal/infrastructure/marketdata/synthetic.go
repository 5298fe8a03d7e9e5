// Package marketdata provides the default MarketDataProvider (§4.4): a
// deterministic synthetic feed, since real exchange connectivity is an
// explicitly pluggable collaborator rather than something this module owns.
package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	toolpkg "github.com/quantagent/core/internal/infrastructure/tool"
)

// SyntheticProvider generates a reproducible random-walk candle series per
// symbol+timeframe so get_klines/calculate_indicator have something to
// operate on without a live exchange connection.
type SyntheticProvider struct {
	basePrice float64
}

// NewSyntheticProvider creates a synthetic feed seeded around basePrice.
// basePrice <= 0 defaults to 100.
func NewSyntheticProvider(basePrice float64) *SyntheticProvider {
	if basePrice <= 0 {
		basePrice = 100
	}
	return &SyntheticProvider{basePrice: basePrice}
}

// Klines returns limit candles ending now, spaced by the timeframe's
// duration. The walk is seeded from symbol+timeframe so repeated calls
// within the same candle window stay stable.
func (p *SyntheticProvider) Klines(ctx context.Context, symbol, timeframe string, limit int) ([]toolpkg.Kline, error) {
	if limit <= 0 {
		limit = 100
	}
	step := timeframeDuration(timeframe)
	seed := seedFor(symbol, timeframe, time.Now().Truncate(step))
	rng := rand.New(rand.NewSource(seed))

	klines := make([]toolpkg.Kline, limit)
	price := p.basePrice
	now := time.Now().Truncate(step)
	for i := 0; i < limit; i++ {
		open := price
		drift := (rng.Float64() - 0.5) * open * 0.02
		closePrice := math.Max(open+drift, 0.01)
		high := math.Max(open, closePrice) * (1 + rng.Float64()*0.005)
		low := math.Min(open, closePrice) * (1 - rng.Float64()*0.005)
		volume := 1000 + rng.Float64()*500

		klines[i] = toolpkg.Kline{
			OpenTime: now.Add(-time.Duration(limit-i) * step),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
		}
		price = closePrice
	}
	return klines, nil
}

func seedFor(symbol, timeframe string, bucket time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte(timeframe))
	h.Write([]byte(bucket.String()))
	return int64(h.Sum64())
}

func timeframeDuration(timeframe string) time.Duration {
	switch timeframe {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
