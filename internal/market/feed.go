package market

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"meanrev-trading-bot/internal/logging"
	"meanrev-trading-bot/internal/metrics"
)

// feedMessage is the wire format of the market feed. Prices arrive as
// strings to avoid float truncation on the producer side; numbers are
// accepted too.
type feedMessage struct {
	Symbol string          `json:"symbol"`
	Price  json.RawMessage `json:"price"`
	TS     int64           `json:"ts"` // epoch ms
}

// TickHandler receives validated ticks in arrival order.
type TickHandler func(Tick)

// Feed is a websocket market-data client. It validates messages,
// enforces per-symbol monotonic timestamps and hands accepted ticks to
// the handler.
type Feed struct {
	url          string
	readTimeout  time.Duration
	reconnectMax time.Duration
	handler      TickHandler
	log          *logging.Logger

	lastTS map[string]int64 // per-symbol monotonic guard
}

// NewFeed creates a feed client for the given websocket URL.
func NewFeed(url string, readTimeout, reconnectMax time.Duration, handler TickHandler) *Feed {
	return &Feed{
		url:          url,
		readTimeout:  readTimeout,
		reconnectMax: reconnectMax,
		handler:      handler,
		log:          logging.WithComponent("feed"),
		lastTS:       make(map[string]int64),
	}
}

// steadySession is how long a connection must survive before the
// reconnect backoff resets to its initial value.
const steadySession = time.Minute

// Run connects and consumes until ctx is cancelled, reconnecting with
// exponential backoff on connection loss. The backoff resets after a
// steady session so a single drop on a healthy stream reconnects fast.
func (f *Feed) Run(ctx context.Context) {
	backoff := 500 * time.Millisecond

	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		err := f.consume(ctx)
		if ctx.Err() != nil {
			return
		}

		backoff = reconnectDelay(backoff, time.Since(start), f.reconnectMax)
		if err != nil {
			f.log.Warn("feed connection lost, reconnecting", "error", err, "backoff", backoff.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// reconnectDelay doubles the previous delay up to max, or drops back to
// one second when the last session outlived steadySession.
func reconnectDelay(prev, session, max time.Duration) time.Duration {
	if session >= steadySession {
		return time.Second
	}
	next := prev * 2
	if next > max {
		next = max
	}
	return next
}

func (f *Feed) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info("feed connected", "url", f.url)

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if f.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(data)
	}
}

func (f *Feed) handleMessage(data []byte) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Symbol == "" || msg.TS <= 0 {
		metrics.TicksDropped.WithLabelValues(msg.Symbol, "bad_input").Inc()
		return
	}

	price, ok := parsePrice(msg.Price)
	if !ok {
		metrics.TicksDropped.WithLabelValues(msg.Symbol, "bad_input").Inc()
		return
	}

	if last, seen := f.lastTS[msg.Symbol]; seen && msg.TS < last {
		metrics.TicksDropped.WithLabelValues(msg.Symbol, "stale").Inc()
		return
	}
	f.lastTS[msg.Symbol] = msg.TS

	metrics.TicksReceived.WithLabelValues(msg.Symbol).Inc()
	f.handler(Tick{
		Symbol: msg.Symbol,
		Price:  price,
		TS:     time.UnixMilli(msg.TS).UTC(),
	})
}

// parsePrice accepts a JSON string or number and normalises it through
// decimal before converting to float64 for the indicator math.
func parsePrice(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, false
		}
		if n <= 0 {
			return 0, false
		}
		return n, true
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.Sign() <= 0 {
		return 0, false
	}
	p, _ := d.Float64()
	return p, true
}
