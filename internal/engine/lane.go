// Package engine runs one single-writer lane per symbol. All state for
// a symbol (candles, indicators, book, cooldowns) is mutated only from
// its lane goroutine; ticks and fills arrive on one mailbox, so their
// relative order is preserved.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/database"
	"meanrev-trading-bot/internal/logging"
	"meanrev-trading-bot/internal/market"
	"meanrev-trading-bot/internal/metrics"
	"meanrev-trading-bot/internal/position"
	"meanrev-trading-bot/internal/reconcile"
	"meanrev-trading-bot/internal/signal"
	"meanrev-trading-bot/internal/state"
	"meanrev-trading-bot/internal/strategy"
)

const mailboxDepth = 256

type laneMsg struct {
	tick *market.Tick
	fill *signal.Fill
	done chan error          // fill application result, nil for ticks
	snap chan state.Snapshot // snapshot request
}

type lane struct {
	symbol   string
	cfg      config.StrategyConfig
	eval     *strategy.Evaluator
	agg      *market.CandleAggregator
	ind      *market.IndicatorCache
	book     *position.Book
	cool     *position.Cooldowns
	applier  *reconcile.Applier
	producer *signal.Producer
	store    *state.Store
	db       *database.DB
	log      *logging.Logger
	mail     chan laneMsg
}

func newLane(symbol string, cfg config.StrategyConfig, cool *position.Cooldowns,
	applier *reconcile.Applier, producer *signal.Producer, store *state.Store, db *database.DB) *lane {
	return &lane{
		symbol:   symbol,
		cfg:      cfg,
		eval:     strategy.NewEvaluator(cfg),
		agg:      market.NewCandleAggregator(symbol, time.Duration(cfg.CandlePeriodSec)*time.Second),
		ind:      market.NewIndicatorCache(cfg.MAPeriod, cfg.MomentumWindow),
		book:     position.NewBook(symbol, cfg.MaxLots),
		cool:     cool,
		applier:  applier,
		producer: producer,
		store:    store,
		db:       db,
		log:      logging.WithComponent("lane").WithField("symbol", symbol),
		mail:     make(chan laneMsg, mailboxDepth),
	}
}

// restore seeds the lane from a snapshot. Called before run starts.
func (l *lane) restore(snap *state.Snapshot) {
	if snap == nil {
		return
	}
	l.book.Restore(snap.Lots)
	l.ind.Restore(snap.Closes)
	l.cool.Restore(l.symbol, snap.Cooldowns)
	metrics.OpenLots.WithLabelValues(l.symbol).Set(float64(l.book.Len()))
}

func (l *lane) enqueueTick(ctx context.Context, t market.Tick) {
	select {
	case l.mail <- laneMsg{tick: &t}:
	case <-ctx.Done():
	}
}

// applyFill hands the fill to the lane and waits for the result, so
// the bus entry is only acked once the book reflects it.
func (l *lane) applyFill(ctx context.Context, f signal.Fill) error {
	done := make(chan error, 1)
	select {
	case l.mail <- laneMsg{fill: &f, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// snapshot asks the lane for its current state.
func (l *lane) snapshot(ctx context.Context) (state.Snapshot, bool) {
	reply := make(chan state.Snapshot, 1)
	select {
	case l.mail <- laneMsg{snap: reply}:
	case <-ctx.Done():
		return state.Snapshot{}, false
	}
	select {
	case snap := <-reply:
		return snap, true
	case <-ctx.Done():
		return state.Snapshot{}, false
	}
}

func (l *lane) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-l.mail:
			switch {
			case msg.tick != nil:
				l.onTick(ctx, *msg.tick)
			case msg.fill != nil:
				msg.done <- l.onFill(ctx, *msg.fill)
			case msg.snap != nil:
				msg.snap <- l.currentSnapshot()
			}
		}
	}
}

func (l *lane) onTick(ctx context.Context, t market.Tick) {
	for _, c := range l.agg.Update(t.Price, t.TS) {
		l.ind.OnCandleClose(c.Close)
		metrics.CandlesClosed.WithLabelValues(l.symbol).Inc()
	}

	ind := l.ind.Snapshot()
	if !ind.MAReady || !ind.MomOK {
		return // warm-up, no decisions until the MA window fills
	}

	if pending, expired := l.cool.Pending(l.symbol, t.TS); expired {
		metrics.IntentsTimedOut.WithLabelValues(l.symbol).Inc()
		l.log.Warn("pending intent expired without fill")
	} else if pending != nil {
		return
	}

	d := l.eval.Evaluate(strategy.Input{
		Symbol:    l.symbol,
		Price:     t.Price,
		MA:        ind.MA,
		Mom:       ind.Mom,
		Book:      l.book,
		Cooldowns: l.cool,
		Now:       t.TS,
	})
	if d == nil {
		return
	}

	l.publish(ctx, t, d)
}

func (l *lane) publish(ctx context.Context, t market.Tick, d *strategy.Decision) {
	refLot := ""
	if len(d.TargetLots) > 0 {
		refLot = d.TargetLots[0]
	}

	in := signal.Intent{
		EventID:        uuid.New().String(),
		Symbol:         l.symbol,
		Action:         d.Action,
		Direction:      d.Direction,
		ReferencePrice: d.ReferencePrice,
		TS:             t.TS,
		TargetLots:     d.TargetLots,
		Stage:          d.Stage,
		MAThrAtEntry:   d.MAThrAtEntry,
		DedupeKey:      signal.DedupeKey(l.symbol, d.Action, l.book.Len(), t.TS, refLot),
	}
	if d.Action.IsEntry() {
		in.Size = l.cfg.LotSize
	}

	published, err := l.producer.PublishIntent(ctx, in)
	if err != nil {
		l.log.Error("intent publish failed", "action", string(d.Action), "error", err)
		return
	}
	if !published {
		return
	}

	expiry := t.TS.Add(time.Duration(l.cfg.IntentPendingSec) * time.Second)
	l.cool.SetPending(l.symbol, in.EventID, string(in.Action), expiry)
	l.db.RecordIntent(ctx, in)
}

func (l *lane) onFill(ctx context.Context, f signal.Fill) error {
	l.db.RecordFill(ctx, f)

	res, err := l.applier.Apply(l.book, f)
	if err != nil {
		var qe *reconcile.QuarantineError
		if errors.As(err, &qe) {
			l.log.Error("fill quarantined", "event_id", f.EventID, "reason", qe.Reason)
			return l.producer.Quarantine(ctx, f, qe.Reason)
		}
		return err
	}

	for _, lot := range res.Closed {
		l.db.RecordClosedLot(ctx, lot, f)
	}

	// Snapshot before the bus entry is acked: a restart then resumes
	// from a state that already includes this fill.
	if err := l.store.Save(ctx, l.currentSnapshot()); err != nil {
		l.log.Warn("post-fill snapshot failed", "error", err)
	}
	return nil
}

func (l *lane) currentSnapshot() state.Snapshot {
	return state.Snapshot{
		Symbol:    l.symbol,
		Lots:      l.book.Lots(),
		Closes:    l.ind.Closes(),
		Cooldowns: l.cool.State(l.symbol),
	}
}
