package market

import (
	"testing"
	"time"
)

func ts(min, sec int) time.Time {
	return time.Date(2026, 8, 24, 10, min, sec, 0, time.UTC)
}

func TestCandleAggregatorSameBucket(t *testing.T) {
	agg := NewCandleAggregator("BTCUSDT", time.Minute)

	if closed := agg.Update(100, ts(0, 5)); closed != nil {
		t.Fatalf("first tick closed %d candles, want none", len(closed))
	}
	if closed := agg.Update(105, ts(0, 20)); closed != nil {
		t.Fatalf("same-bucket tick closed %d candles, want none", len(closed))
	}
	if closed := agg.Update(99, ts(0, 55)); closed != nil {
		t.Fatalf("same-bucket tick closed %d candles, want none", len(closed))
	}

	open := agg.Open()
	if open == nil {
		t.Fatal("no forming candle")
	}
	if open.Open != 100 || open.High != 105 || open.Low != 99 || open.Close != 99 {
		t.Errorf("forming candle OHLC = %v/%v/%v/%v, want 100/105/99/99",
			open.Open, open.High, open.Low, open.Close)
	}
	if open.NTicks != 3 {
		t.Errorf("NTicks = %d, want 3", open.NTicks)
	}
}

func TestCandleAggregatorClosesOnBoundary(t *testing.T) {
	agg := NewCandleAggregator("BTCUSDT", time.Minute)
	agg.Update(100, ts(0, 10))
	agg.Update(101, ts(0, 50))

	closed := agg.Update(102, ts(1, 2))
	if len(closed) != 1 {
		t.Fatalf("closed %d candles, want 1", len(closed))
	}
	c := closed[0]
	if !c.BucketStart.Equal(ts(0, 0)) {
		t.Errorf("bucket start = %v, want %v", c.BucketStart, ts(0, 0))
	}
	if c.Close != 101 {
		t.Errorf("close = %v, want 101", c.Close)
	}
}

func TestCandleAggregatorBackfillsGaps(t *testing.T) {
	agg := NewCandleAggregator("BTCUSDT", time.Minute)
	agg.Update(100, ts(0, 10))

	// Next tick arrives three minutes later: minute 0 closes, minutes
	// 1 and 2 are flat at the previous close.
	closed := agg.Update(110, ts(3, 0))
	if len(closed) != 3 {
		t.Fatalf("closed %d candles, want 3", len(closed))
	}
	for i, c := range closed[1:] {
		if c.Open != 100 || c.Close != 100 || c.High != 100 || c.Low != 100 {
			t.Errorf("gap candle %d not flat at 100: %+v", i+1, c)
		}
		if c.NTicks != 0 {
			t.Errorf("gap candle %d NTicks = %d, want 0", i+1, c.NTicks)
		}
	}
	if !closed[2].BucketStart.Equal(ts(2, 0)) {
		t.Errorf("last gap bucket = %v, want %v", closed[2].BucketStart, ts(2, 0))
	}
}

func TestCandleAggregatorIgnoresEarlierBucket(t *testing.T) {
	agg := NewCandleAggregator("BTCUSDT", time.Minute)
	agg.Update(100, ts(2, 0))

	if closed := agg.Update(50, ts(1, 0)); closed != nil {
		t.Fatalf("backwards tick closed %d candles, want none", len(closed))
	}
	if open := agg.Open(); open.Close != 100 {
		t.Errorf("backwards tick mutated the forming candle: close = %v", open.Close)
	}
}
