package market

// IndicatorCache maintains the MA ring and the momentum figure for one
// symbol, refreshed on candle close. Owned by the symbol's lane.
type IndicatorCache struct {
	maPeriod    int
	momWindow   int
	closes      []float64 // oldest -> newest, len <= maPeriod
	lastClose   float64
	haveCandles int
}

// Snapshot is the indicator state the evaluator reads.
type Snapshot struct {
	MA      float64
	MAReady bool
	Mom     float64
	MomOK   bool
}

// NewIndicatorCache creates a cache for maPeriod closes and a momWindow
// candle momentum lookback.
func NewIndicatorCache(maPeriod, momWindow int) *IndicatorCache {
	return &IndicatorCache{
		maPeriod:  maPeriod,
		momWindow: momWindow,
		closes:    make([]float64, 0, maPeriod),
	}
}

// OnCandleClose pushes a closed candle's close into the ring.
func (c *IndicatorCache) OnCandleClose(close float64) {
	if len(c.closes) == c.maPeriod {
		copy(c.closes, c.closes[1:])
		c.closes[len(c.closes)-1] = close
	} else {
		c.closes = append(c.closes, close)
	}
	c.lastClose = close
	c.haveCandles++
}

// Snapshot computes the current indicator values. MA is undefined until
// the full period has accumulated; momentum needs momWindow+1 closes.
func (c *IndicatorCache) Snapshot() Snapshot {
	var s Snapshot

	if len(c.closes) == c.maPeriod {
		sum := 0.0
		for _, v := range c.closes {
			sum += v
		}
		s.MA = sum / float64(c.maPeriod)
		s.MAReady = true
	}

	if len(c.closes) > c.momWindow {
		ref := c.closes[len(c.closes)-1-c.momWindow]
		if ref > 0 {
			s.Mom = (c.closes[len(c.closes)-1] - ref) / ref
			s.MomOK = true
		}
	}

	return s
}

// LastClose returns the close of the most recently completed candle.
func (c *IndicatorCache) LastClose() float64 {
	return c.lastClose
}

// Closes returns a copy of the close ring, oldest first, for snapshots.
func (c *IndicatorCache) Closes() []float64 {
	out := make([]float64, len(c.closes))
	copy(out, c.closes)
	return out
}

// Restore replaces the ring from a snapshot. Extra values beyond the
// MA period are discarded from the oldest end.
func (c *IndicatorCache) Restore(closes []float64) {
	if len(closes) > c.maPeriod {
		closes = closes[len(closes)-c.maPeriod:]
	}
	c.closes = make([]float64, len(closes))
	copy(c.closes, closes)
	if len(closes) > 0 {
		c.lastClose = closes[len(closes)-1]
	}
	c.haveCandles = len(closes)
}
