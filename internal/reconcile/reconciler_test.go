package reconcile

import (
	"errors"
	"testing"
	"time"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/position"
	"meanrev-trading-bot/internal/signal"
)

var testCfg = config.StrategyConfig{
	MaxLots:             4,
	ScaleInCooldownSec:  1800,
	ScaleOutCooldownSec: 600,
	IntentPendingSec:    60,
	LotSize:             1,
}

var fillTS = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func entryFill(action signal.Action, lotID string, price float64) signal.Fill {
	return signal.Fill{
		EventID:      "fl-" + lotID,
		IntentID:     "ev-" + lotID,
		Symbol:       "BTCUSDT",
		Action:       action,
		Direction:    position.Long,
		LotID:        lotID,
		FillPrice:    price,
		FilledSize:   1,
		TS:           fillTS,
		Status:       signal.StatusFilled,
		Stage:        position.StageInit,
		MAThrAtEntry: 0.01,
	}
}

func exitFill(action signal.Action, targets []string, price float64) signal.Fill {
	return signal.Fill{
		EventID:    "fl-x",
		IntentID:   "ev-x",
		Symbol:     "BTCUSDT",
		Action:     action,
		Direction:  position.Long,
		TargetLots: targets,
		FillPrice:  price,
		FilledSize: float64(len(targets)),
		TS:         fillTS,
		Status:     signal.StatusFilled,
	}
}

func TestApplyEntryOpensLot(t *testing.T) {
	cool := position.NewCooldowns()
	a := NewApplier(testCfg, cool)
	book := position.NewBook("BTCUSDT", 4)

	res, err := a.Apply(book, entryFill(signal.ActionInit, "lot-1", 98.9))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Opened == nil || res.Opened.ID != "lot-1" {
		t.Fatalf("opened = %+v", res.Opened)
	}
	if book.Len() != 1 {
		t.Errorf("book len = %d, want 1", book.Len())
	}

	got, _ := book.Oldest()
	if got.EntryPrice != 98.9 || got.Stage != position.StageInit || got.MAThrAtEntry != 0.01 {
		t.Errorf("lot fields lost: %+v", got)
	}
}

func TestApplyScaleInArmsCooldown(t *testing.T) {
	cool := position.NewCooldowns()
	a := NewApplier(testCfg, cool)
	book := position.NewBook("BTCUSDT", 4)
	if _, err := a.Apply(book, entryFill(signal.ActionInit, "lot-1", 99)); err != nil {
		t.Fatal(err)
	}

	f := entryFill(signal.ActionScaleIn, "lot-2", 98.5)
	f.Stage = "SCALE_IN_2"
	if _, err := a.Apply(book, f); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Cooldown runs from the fill timestamp, not wall clock.
	if !cool.ScaleInActive("BTCUSDT", fillTS.Add(29*time.Minute)) {
		t.Error("scale-in cooldown not armed from fill time")
	}
	if cool.ScaleInActive("BTCUSDT", fillTS.Add(31*time.Minute)) {
		t.Error("scale-in cooldown too long")
	}
}

func TestApplyEntryDirectionConflictQuarantined(t *testing.T) {
	cool := position.NewCooldowns()
	a := NewApplier(testCfg, cool)
	book := position.NewBook("BTCUSDT", 4)
	if _, err := a.Apply(book, entryFill(signal.ActionInit, "lot-1", 99)); err != nil {
		t.Fatal(err)
	}

	f := entryFill(signal.ActionInit2, "lot-2", 101)
	f.Direction = position.Short
	_, err := a.Apply(book, f)

	var qe *QuarantineError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v, want QuarantineError", err)
	}
	if book.Len() != 1 {
		t.Errorf("quarantined fill mutated the book: len = %d", book.Len())
	}
}

func TestApplyExitClosesTargets(t *testing.T) {
	cool := position.NewCooldowns()
	a := NewApplier(testCfg, cool)
	book := position.NewBook("BTCUSDT", 4)
	for _, id := range []string{"a", "b", "c"} {
		if _, err := a.Apply(book, entryFill(signal.ActionInit, id, 99)); err != nil {
			t.Fatal(err)
		}
	}

	res, err := a.Apply(book, exitFill(signal.ActionNormalExit, []string{"a", "b", "c"}, 101))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(res.Closed) != 3 || res.Closed[0].ID != "a" {
		t.Errorf("closed = %v", res.Closed)
	}
	if book.Len() != 0 {
		t.Errorf("book len = %d, want 0", book.Len())
	}
}

func TestApplyExitUnknownTargetAllOrNothing(t *testing.T) {
	cool := position.NewCooldowns()
	a := NewApplier(testCfg, cool)
	book := position.NewBook("BTCUSDT", 4)
	for _, id := range []string{"a", "b"} {
		if _, err := a.Apply(book, entryFill(signal.ActionInit, id, 99)); err != nil {
			t.Fatal(err)
		}
	}

	_, err := a.Apply(book, exitFill(signal.ActionNormalExit, []string{"a", "ghost"}, 101))
	var qe *QuarantineError
	if !errors.As(err, &qe) {
		t.Fatalf("err = %v, want QuarantineError", err)
	}
	// Nothing was closed, including the valid target.
	if book.Len() != 2 {
		t.Errorf("book len = %d, want 2", book.Len())
	}
}

func TestApplyScaleOutArmsCooldown(t *testing.T) {
	cool := position.NewCooldowns()
	a := NewApplier(testCfg, cool)
	book := position.NewBook("BTCUSDT", 4)
	for _, id := range []string{"a", "b"} {
		if _, err := a.Apply(book, entryFill(signal.ActionInit, id, 99)); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := a.Apply(book, exitFill(signal.ActionScaleOut, []string{"b"}, 100.6)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !cool.ScaleOutActive("BTCUSDT", fillTS.Add(9*time.Minute)) {
		t.Error("scale-out cooldown not armed")
	}
}

func TestApplyRejectedClearsPendingOnly(t *testing.T) {
	cool := position.NewCooldowns()
	cool.SetPending("BTCUSDT", "ev-x", string(signal.ActionInit), fillTS.Add(time.Minute))
	a := NewApplier(testCfg, cool)
	book := position.NewBook("BTCUSDT", 4)

	f := entryFill(signal.ActionInit, "lot-1", 99)
	f.IntentID = "ev-x"
	f.Status = signal.StatusRejected

	res, err := a.Apply(book, f)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Opened != nil || book.Len() != 0 {
		t.Error("rejected fill mutated the book")
	}
	if pi, _ := cool.Pending("BTCUSDT", fillTS); pi != nil {
		t.Error("rejected fill left the pending slot occupied")
	}
}

func TestApplyLateFillAfterTimeout(t *testing.T) {
	cool := position.NewCooldowns()
	cool.SetPending("BTCUSDT", "ev-1", string(signal.ActionInit), fillTS.Add(-time.Minute))

	// The pending slot has already expired and been swept.
	if _, expired := cool.Pending("BTCUSDT", fillTS); !expired {
		t.Fatal("pending should have expired")
	}

	a := NewApplier(testCfg, cool)
	book := position.NewBook("BTCUSDT", 4)
	f := entryFill(signal.ActionInit, "lot-1", 99)
	f.IntentID = "ev-1"

	// The late fill still lands: the book invariants hold.
	res, err := a.Apply(book, f)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Opened == nil || book.Len() != 1 {
		t.Error("late fill was not applied")
	}
}
