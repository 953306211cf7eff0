package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/database"
	"meanrev-trading-bot/internal/logging"
	"meanrev-trading-bot/internal/market"
	"meanrev-trading-bot/internal/position"
	"meanrev-trading-bot/internal/reconcile"
	"meanrev-trading-bot/internal/signal"
	"meanrev-trading-bot/internal/state"
)

// reconcilerGroup is the fill-stream consumer group. Separate from the
// executor group so the generator and its executors track independent
// cursors.
const reconcilerGroup = "reconcilers"

// Runtime owns the generator's moving parts: one lane per symbol, the
// market feed, the fill consumer and the snapshot loop.
type Runtime struct {
	cfg      *config.Config
	client   *redis.Client
	producer *signal.Producer
	store    *state.Store
	db       *database.DB
	cool     *position.Cooldowns
	lanes    map[string]*lane
	feed     *market.Feed
	log      *logging.Logger

	laneCtx context.Context
}

// NewRuntime wires the pipeline and restores lane state from the last
// snapshots.
func NewRuntime(ctx context.Context, cfg *config.Config, client *redis.Client, db *database.DB) (*Runtime, error) {
	r := &Runtime{
		cfg:      cfg,
		client:   client,
		producer: signal.NewProducer(client, cfg.BusConfig),
		store:    state.NewStore(client, cfg.BusConfig.StreamPrefix),
		db:       db,
		cool:     position.NewCooldowns(),
		lanes:    make(map[string]*lane, len(cfg.StrategyConfig.Symbols)),
		log:      logging.WithComponent("engine"),
	}

	applier := reconcile.NewApplier(cfg.StrategyConfig, r.cool)
	for _, symbol := range cfg.StrategyConfig.Symbols {
		l := newLane(symbol, cfg.StrategyConfig, r.cool, applier, r.producer, r.store, db)
		snap, err := r.store.Load(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("restore %s: %w", symbol, err)
		}
		l.restore(snap)
		r.lanes[symbol] = l
	}

	r.feed = market.NewFeed(
		cfg.FeedConfig.URL,
		time.Duration(cfg.FeedConfig.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.FeedConfig.ReconnectMaxSec)*time.Second,
		r.dispatchTick,
	)
	return r, nil
}

// Books exposes the per-symbol books for the ops surface.
func (r *Runtime) Books() map[string]*position.Book {
	out := make(map[string]*position.Book, len(r.lanes))
	for sym, l := range r.lanes {
		out[sym] = l.book
	}
	return out
}

// Cooldowns exposes the shared cooldown registry for the ops surface.
func (r *Runtime) Cooldowns() *position.Cooldowns { return r.cool }

func (r *Runtime) dispatchTick(t market.Tick) {
	l, ok := r.lanes[t.Symbol]
	if !ok {
		return
	}
	l.enqueueTick(r.laneCtx, t)
}

func (r *Runtime) handleFill(ctx context.Context, stream, id string, values map[string]interface{}) error {
	f, err := signal.DecodeFill(values)
	if err != nil {
		return fmt.Errorf("%w: %v", signal.ErrSkip, err)
	}
	l, ok := r.lanes[f.Symbol]
	if !ok {
		return fmt.Errorf("%w: unknown symbol %s", signal.ErrSkip, f.Symbol)
	}
	return l.applyFill(ctx, f)
}

// Run drives the pipeline until ctx is cancelled, then snapshots every
// lane and drains.
func (r *Runtime) Run(ctx context.Context) error {
	// Lanes outlive ctx slightly so the shutdown snapshot can still
	// reach them.
	laneCtx, cancelLanes := context.WithCancel(context.Background())
	defer cancelLanes()
	r.laneCtx = laneCtx

	var wg sync.WaitGroup
	for _, l := range r.lanes {
		wg.Add(1)
		go l.run(laneCtx, &wg)
	}

	fills := signal.NewConsumer(r.client, r.cfg.BusConfig,
		reconcilerGroup, r.cfg.BusConfig.Consumer,
		[]string{signal.FillStream(r.cfg.BusConfig.StreamPrefix)})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fills.Run(ctx, r.handleFill); err != nil && ctx.Err() == nil {
			r.log.Error("fill consumer stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.feed.Run(ctx)
	}()

	interval := time.Duration(r.cfg.SnapshotConfig.IntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("pipeline running", "symbols", len(r.lanes))
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.snapshotAll(flushCtx)
			cancel()
			cancelLanes()
			wg.Wait()
			r.log.Info("pipeline stopped")
			return nil
		case <-ticker.C:
			r.snapshotAll(laneCtx)
		}
	}
}

func (r *Runtime) snapshotAll(ctx context.Context) {
	for sym, l := range r.lanes {
		snap, ok := l.snapshot(ctx)
		if !ok {
			return
		}
		if err := r.store.Save(ctx, snap); err != nil {
			r.log.Warn("snapshot save failed", "symbol", sym, "error", err)
		}
	}
}
