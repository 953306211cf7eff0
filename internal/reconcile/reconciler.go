// Package reconcile applies executor fill reports to the position
// book. Application is all-or-nothing per fill: a fill that would
// break a book invariant mutates nothing and comes back as a
// QuarantineError for the caller to park.
package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/logging"
	"meanrev-trading-bot/internal/metrics"
	"meanrev-trading-bot/internal/position"
	"meanrev-trading-bot/internal/signal"
)

// QuarantineError marks a fill that violates a book invariant.
type QuarantineError struct {
	Reason string
}

func (e *QuarantineError) Error() string {
	return "fill quarantined: " + e.Reason
}

// Result reports what a fill did to the book.
type Result struct {
	Opened *position.Lot  // entry fills
	Closed []position.Lot // exit fills, oldest first
}

// Applier mutates books and cooldowns from fill events. One applier is
// shared across symbols; callers serialise per symbol.
type Applier struct {
	cfg  config.StrategyConfig
	cool *position.Cooldowns
	log  *logging.Logger
}

// NewApplier creates an applier over the shared cooldown registry.
func NewApplier(cfg config.StrategyConfig, cool *position.Cooldowns) *Applier {
	return &Applier{
		cfg:  cfg,
		cool: cool,
		log:  logging.WithComponent("reconciler"),
	}
}

// Apply resolves the fill's pending intent and mutates the book. A fill
// arriving after its intent timed out is still applied when the book
// invariants hold; otherwise it is quarantined.
func (a *Applier) Apply(book *position.Book, f signal.Fill) (Result, error) {
	// The pending slot resolves on any terminal report, including
	// rejection. A late fill finds the slot already cleared; that is
	// fine, application depends only on the book.
	a.cool.ClearPending(f.Symbol, f.IntentID)

	if f.Status == signal.StatusRejected {
		metrics.FillsRejected.WithLabelValues(f.Symbol).Inc()
		a.log.Warn("intent rejected by executor",
			"symbol", f.Symbol, "action", string(f.Action), "intent_id", f.IntentID)
		return Result{}, nil
	}

	var (
		res Result
		err error
	)
	if f.Action.IsEntry() {
		res, err = a.applyEntry(book, f)
	} else {
		res, err = a.applyExit(book, f)
	}
	if err != nil {
		metrics.FillsQuarantined.WithLabelValues(f.Symbol).Inc()
		return Result{}, err
	}

	metrics.FillsApplied.WithLabelValues(f.Symbol, string(f.Action)).Inc()
	metrics.OpenLots.WithLabelValues(f.Symbol).Set(float64(book.Len()))
	return res, nil
}

func (a *Applier) applyEntry(book *position.Book, f signal.Fill) (Result, error) {
	if f.FillPrice <= 0 || f.FilledSize <= 0 {
		return Result{}, &QuarantineError{Reason: fmt.Sprintf("entry fill with price %v size %v", f.FillPrice, f.FilledSize)}
	}
	if err := book.CanAppend(f.Direction); err != nil {
		return Result{}, &QuarantineError{Reason: err.Error()}
	}

	lotID := f.LotID
	if lotID == "" {
		lotID = uuid.New().String()
	}
	lot := position.Lot{
		ID:           lotID,
		Symbol:       f.Symbol,
		Direction:    f.Direction,
		EntryPrice:   f.FillPrice,
		EntryTS:      f.TS,
		Size:         f.FilledSize,
		Stage:        f.Stage,
		MAThrAtEntry: f.MAThrAtEntry,
	}
	if err := book.Append(lot); err != nil {
		return Result{}, &QuarantineError{Reason: err.Error()}
	}

	if f.Action == signal.ActionScaleIn {
		a.cool.ArmScaleIn(f.Symbol, f.TS, time.Duration(a.cfg.ScaleInCooldownSec)*time.Second)
	}

	a.log.Info("lot opened",
		"symbol", f.Symbol, "lot_id", lot.ID, "stage", lot.Stage,
		"direction", string(lot.Direction), "entry_price", lot.EntryPrice, "lots", book.Len())
	return Result{Opened: &lot}, nil
}

func (a *Applier) applyExit(book *position.Book, f signal.Fill) (Result, error) {
	if len(f.TargetLots) == 0 {
		return Result{}, &QuarantineError{Reason: "exit fill without target lots"}
	}

	// Verify every target before touching the book.
	open := make(map[string]bool, book.Len())
	for _, lot := range book.Lots() {
		open[lot.ID] = true
	}
	for _, id := range f.TargetLots {
		if !open[id] {
			return Result{}, &QuarantineError{Reason: "target lot " + id + " not open"}
		}
	}

	closed := make([]position.Lot, 0, len(f.TargetLots))
	for _, id := range f.TargetLots {
		lot, err := book.CloseByID(id)
		if err != nil {
			// Unreachable after the check above; fail loudly if it is not.
			return Result{Closed: closed}, &QuarantineError{Reason: err.Error()}
		}
		closed = append(closed, lot)
	}

	if f.Action == signal.ActionScaleOut {
		a.cool.ArmScaleOut(f.Symbol, f.TS, time.Duration(a.cfg.ScaleOutCooldownSec)*time.Second)
	}

	a.log.Info("lots closed",
		"symbol", f.Symbol, "action", string(f.Action),
		"closed", len(closed), "fill_price", f.FillPrice, "remaining", book.Len())
	return Result{Closed: closed}, nil
}
