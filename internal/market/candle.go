// Package market turns raw ticks into one-minute candles and the
// indicator snapshot the strategy evaluates against.
package market

import (
	"time"
)

// Tick is a single market-data point for one symbol.
type Tick struct {
	Symbol string
	Price  float64
	TS     time.Time
}

// Candle is a one-minute OHLC bucket.
type Candle struct {
	Symbol      string    `json:"symbol"`
	BucketStart time.Time `json:"bucket_start"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	NTicks      int       `json:"n_ticks"`
}

// CandleAggregator folds ticks into fixed-period candles for one symbol.
// It is owned by the symbol's lane and must not be shared across goroutines.
type CandleAggregator struct {
	symbol string
	period time.Duration
	open   *Candle
}

// NewCandleAggregator creates an aggregator for one symbol.
func NewCandleAggregator(symbol string, period time.Duration) *CandleAggregator {
	return &CandleAggregator{symbol: symbol, period: period}
}

func (a *CandleAggregator) bucketStart(ts time.Time) time.Time {
	return ts.Truncate(a.period)
}

// Update applies a tick and returns any candles closed by it, oldest
// first. Skipped minutes are back-filled as flat candles carrying the
// previous close so the MA window never has holes.
func (a *CandleAggregator) Update(price float64, ts time.Time) []Candle {
	bucket := a.bucketStart(ts)

	if a.open == nil {
		a.open = &Candle{
			Symbol:      a.symbol,
			BucketStart: bucket,
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
			NTicks:      1,
		}
		return nil
	}

	if bucket.Equal(a.open.BucketStart) {
		if price > a.open.High {
			a.open.High = price
		}
		if price < a.open.Low {
			a.open.Low = price
		}
		a.open.Close = price
		a.open.NTicks++
		return nil
	}

	if bucket.Before(a.open.BucketStart) {
		// Out-of-order tick across a bucket boundary; the feed layer
		// drops non-monotonic timestamps, so treat as a no-op.
		return nil
	}

	closed := []Candle{*a.open}
	prevClose := a.open.Close

	// Flat candles for any skipped minutes.
	for cursor := a.open.BucketStart.Add(a.period); cursor.Before(bucket); cursor = cursor.Add(a.period) {
		closed = append(closed, Candle{
			Symbol:      a.symbol,
			BucketStart: cursor,
			Open:        prevClose,
			High:        prevClose,
			Low:         prevClose,
			Close:       prevClose,
		})
	}

	a.open = &Candle{
		Symbol:      a.symbol,
		BucketStart: bucket,
		Open:        price,
		High:        price,
		Low:         price,
		Close:       price,
		NTicks:      1,
	}
	return closed
}

// Open returns the currently forming candle, or nil before the first tick.
func (a *CandleAggregator) Open() *Candle {
	if a.open == nil {
		return nil
	}
	c := *a.open
	return &c
}
