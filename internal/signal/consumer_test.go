package signal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"

	"meanrev-trading-bot/config"
)

func testConsumer() *Consumer {
	cfg := config.BusConfig{
		Address:          "localhost:6379",
		StreamPrefix:     "test",
		ClaimIntervalSec: 30,
		BlockSec:         5,
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Address})
	return NewConsumer(client, cfg, "executors", "c1", []string{"test:signals:BTCUSDT"})
}

// The drain loop stops when a pass acks nothing, so handler outcomes
// must map onto acked-or-pending correctly. The ctx is cancelled so the
// ack itself is a no-op against the test client.
func TestHandleReportsAckDecision(t *testing.T) {
	c := testConsumer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := redis.XMessage{ID: "1-0", Values: map[string]interface{}{}}

	cases := []struct {
		name  string
		err   error
		acked bool
	}{
		{"success", nil, true},
		{"poison entry", ErrSkip, true},
		{"wrapped poison entry", fmt.Errorf("%w: bad payload", ErrSkip), true},
		{"transient failure", errors.New("broker unreachable"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := func(context.Context, string, string, map[string]interface{}) error {
				return tc.err
			}
			if got := c.handle(ctx, "test:signals:BTCUSDT", msg, h); got != tc.acked {
				t.Errorf("handle acked = %v, want %v", got, tc.acked)
			}
		})
	}
}
