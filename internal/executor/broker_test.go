package executor

import (
	"context"
	"errors"
	"testing"

	"meanrev-trading-bot/internal/position"
)

func TestPaperBrokerSlippageDirection(t *testing.T) {
	b := NewPaperBroker(10, 0) // 10 bps
	ctx := context.Background()

	// Opening a long buys: fills above the reference.
	exec, err := b.Execute(ctx, Order{Symbol: "BTCUSDT", Direction: position.Long, Size: 1, Price: 100})
	if err != nil {
		t.Fatal(err)
	}
	if exec.Price != 100.1 {
		t.Errorf("long entry fill = %v, want 100.1", exec.Price)
	}

	// Closing a long sells: fills below.
	exec, err = b.Execute(ctx, Order{Symbol: "BTCUSDT", Direction: position.Long, Size: 1, Price: 100, Reduce: true})
	if err != nil {
		t.Fatal(err)
	}
	if exec.Price != 99.9 {
		t.Errorf("long exit fill = %v, want 99.9", exec.Price)
	}

	// Opening a short sells.
	exec, err = b.Execute(ctx, Order{Symbol: "BTCUSDT", Direction: position.Short, Size: 1, Price: 100})
	if err != nil {
		t.Fatal(err)
	}
	if exec.Price != 99.9 {
		t.Errorf("short entry fill = %v, want 99.9", exec.Price)
	}
}

func TestPaperBrokerRejectsBadOrders(t *testing.T) {
	b := NewPaperBroker(0, 0)
	ctx := context.Background()

	if _, err := b.Execute(ctx, Order{Symbol: "BTCUSDT", Direction: position.Long, Size: 0, Price: 100}); !errors.Is(err, ErrOrderRejected) {
		t.Errorf("zero size: err = %v, want ErrOrderRejected", err)
	}
	if _, err := b.Execute(ctx, Order{Symbol: "BTCUSDT", Direction: position.Long, Size: 1, Price: 0}); !errors.Is(err, ErrOrderRejected) {
		t.Errorf("zero price: err = %v, want ErrOrderRejected", err)
	}
}

func TestPaperBrokerDisconnect(t *testing.T) {
	b := NewPaperBroker(0, 0)
	if err := b.Disconnect(); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := b.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Execute(context.Background(), Order{Symbol: "BTCUSDT", Direction: position.Long, Size: 1, Price: 100}); err == nil {
		t.Error("execute succeeded after disconnect")
	}
}
