// Package executor consumes intent events from the signal bus, places
// orders through a broker and reports fills back on the fill stream.
package executor

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"meanrev-trading-bot/internal/position"
)

// ErrOrderRejected marks a terminal broker refusal. The executor
// reports it as a REJECTED fill instead of retrying.
var ErrOrderRejected = errors.New("order rejected by broker")

// Order is one instruction to the broker. Price is the strategy's
// reference price; brokers may fill at a different level.
type Order struct {
	Symbol    string
	Direction position.Direction
	Size      float64
	Price     float64
	Reduce    bool // closes exposure instead of adding
}

// Execution is the broker's report of a completed order.
type Execution struct {
	Price float64
	Size  float64
	TS    time.Time
}

// Broker places orders. Implementations must be safe for use from one
// executor goroutine and must tolerate Disconnect after failures.
type Broker interface {
	Execute(ctx context.Context, o Order) (Execution, error)
	Disconnect() error
}

// PaperBroker simulates execution at the reference price plus a fixed
// slippage, applied against the order's direction.
type PaperBroker struct {
	mu          sync.Mutex
	slippageBps float64
	latency     time.Duration
	connected   bool
	rng         *rand.Rand
}

// NewPaperBroker creates a connected paper broker.
func NewPaperBroker(slippageBps float64, latency time.Duration) *PaperBroker {
	return &PaperBroker{
		slippageBps: slippageBps,
		latency:     latency,
		connected:   true,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute fills the order after the configured latency.
func (b *PaperBroker) Execute(ctx context.Context, o Order) (Execution, error) {
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return Execution{}, errors.New("paper broker disconnected")
	}
	if o.Size <= 0 || o.Price <= 0 {
		return Execution{}, ErrOrderRejected
	}

	if b.latency > 0 {
		select {
		case <-ctx.Done():
			return Execution{}, ctx.Err()
		case <-time.After(b.latency):
		}
	}

	// Slippage always moves the fill against the taker: buys fill
	// higher, sells fill lower.
	slip := o.Price * b.slippageBps / 10000
	buying := (o.Direction == position.Long) != o.Reduce
	price := o.Price
	if buying {
		price += slip
	} else {
		price -= slip
	}

	return Execution{Price: price, Size: o.Size, TS: time.Now().UTC()}, nil
}

// Disconnect marks the broker closed. Idempotent.
func (b *PaperBroker) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}
