package market

import (
	"testing"
	"time"
)

func newTestFeed(t *testing.T) (*Feed, *[]Tick) {
	t.Helper()
	var got []Tick
	f := NewFeed("ws://test", 0, time.Second, func(tick Tick) {
		got = append(got, tick)
	})
	return f, &got
}

func TestFeedAcceptsStringAndNumberPrices(t *testing.T) {
	f, got := newTestFeed(t)

	f.handleMessage([]byte(`{"symbol":"BTCUSDT","price":"100.5","ts":1000}`))
	f.handleMessage([]byte(`{"symbol":"BTCUSDT","price":101.25,"ts":2000}`))

	if len(*got) != 2 {
		t.Fatalf("accepted %d ticks, want 2", len(*got))
	}
	if (*got)[0].Price != 100.5 || (*got)[1].Price != 101.25 {
		t.Errorf("prices = %v, %v", (*got)[0].Price, (*got)[1].Price)
	}
	if !(*got)[0].TS.Equal(time.UnixMilli(1000).UTC()) {
		t.Errorf("ts = %v", (*got)[0].TS)
	}
}

func TestFeedDropsBadInput(t *testing.T) {
	f, got := newTestFeed(t)

	for _, raw := range []string{
		`not json`,
		`{"price":"100","ts":1000}`,                          // no symbol
		`{"symbol":"BTCUSDT","price":"100"}`,                 // no timestamp
		`{"symbol":"BTCUSDT","price":"-5","ts":1000}`,        // negative price
		`{"symbol":"BTCUSDT","price":"abc","ts":1000}`,       // unparseable price
		`{"symbol":"BTCUSDT","price":0,"ts":1000}`,           // zero price
	} {
		f.handleMessage([]byte(raw))
	}

	if len(*got) != 0 {
		t.Errorf("accepted %d malformed ticks", len(*got))
	}
}

func TestReconnectDelay(t *testing.T) {
	max := 30 * time.Second

	cases := []struct {
		name    string
		prev    time.Duration
		session time.Duration
		want    time.Duration
	}{
		{"first drop", 500 * time.Millisecond, 5 * time.Second, time.Second},
		{"flapping doubles", time.Second, 5 * time.Second, 2 * time.Second},
		{"capped at max", 20 * time.Second, 5 * time.Second, max},
		{"stays at max", max, 5 * time.Second, max},
		{"steady session resets", max, 2 * time.Hour, time.Second},
		{"exactly steady resets", 4 * time.Second, steadySession, time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := reconnectDelay(tc.prev, tc.session, max); got != tc.want {
				t.Errorf("reconnectDelay(%v, %v) = %v, want %v", tc.prev, tc.session, got, tc.want)
			}
		})
	}
}

func TestFeedDropsStaleTicks(t *testing.T) {
	f, got := newTestFeed(t)

	f.handleMessage([]byte(`{"symbol":"BTCUSDT","price":"100","ts":2000}`))
	f.handleMessage([]byte(`{"symbol":"BTCUSDT","price":"99","ts":1000}`)) // behind
	f.handleMessage([]byte(`{"symbol":"BTCUSDT","price":"98","ts":2000}`)) // equal is fine
	f.handleMessage([]byte(`{"symbol":"ETHUSDT","price":"10","ts":500}`))  // other symbol unaffected

	if len(*got) != 3 {
		t.Fatalf("accepted %d ticks, want 3", len(*got))
	}
	if (*got)[1].Price != 98 || (*got)[2].Symbol != "ETHUSDT" {
		t.Errorf("unexpected ticks: %+v", *got)
	}
}
