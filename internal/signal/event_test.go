package signal

import (
	"testing"
	"time"

	"meanrev-trading-bot/internal/position"
)

func TestDedupeKeyStableWithinMinute(t *testing.T) {
	base := time.Date(2026, 8, 24, 12, 0, 5, 0, time.UTC)

	k1 := DedupeKey("BTCUSDT", ActionInit, 0, base, "")
	k2 := DedupeKey("BTCUSDT", ActionInit, 0, base.Add(40*time.Second), "")
	if k1 != k2 {
		t.Error("same decision in the same minute produced different keys")
	}

	k3 := DedupeKey("BTCUSDT", ActionInit, 0, base.Add(2*time.Minute), "")
	if k1 == k3 {
		t.Error("different minute bucket produced the same key")
	}
	if DedupeKey("BTCUSDT", ActionInit, 1, base, "") == k1 {
		t.Error("different book size produced the same key")
	}
	if DedupeKey("BTCUSDT", ActionStopLoss, 0, base, "lot-1") == k1 {
		t.Error("different action produced the same key")
	}
}

func TestIntentCodecRoundTrip(t *testing.T) {
	in := Intent{
		EventID:        "ev-1",
		Symbol:         "BTCUSDT",
		Action:         ActionNormalExit,
		Direction:      position.Long,
		ReferencePrice: 101.05,
		TS:             time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		TargetLots:     []string{"a", "b"},
		DedupeKey:      "abc",
	}

	got, err := DecodeIntent(EncodeIntent(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventID != in.EventID || got.Action != in.Action || got.ReferencePrice != in.ReferencePrice {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if !got.TS.Equal(in.TS) {
		t.Errorf("ts = %v, want %v", got.TS, in.TS)
	}
	if len(got.TargetLots) != 2 || got.TargetLots[0] != "a" || got.TargetLots[1] != "b" {
		t.Errorf("targets = %v", got.TargetLots)
	}
}

func TestDecodeIntentRejectsUnknownAction(t *testing.T) {
	fields := EncodeIntent(Intent{Symbol: "BTCUSDT", Action: "REBALANCE", TS: time.Now()})
	if _, err := DecodeIntent(fields); err == nil {
		t.Error("unknown action decoded without error")
	}
}

func TestFillCodecRoundTrip(t *testing.T) {
	f := Fill{
		EventID:      "fl-1",
		IntentID:     "ev-1",
		Symbol:       "BTCUSDT",
		Action:       ActionScaleIn,
		Direction:    position.Short,
		LotID:        "lot-9",
		FillPrice:    98.42,
		FilledSize:   0.5,
		TS:           time.Date(2026, 8, 24, 12, 0, 1, 0, time.UTC),
		Status:       StatusFilled,
		Stage:        "SCALE_IN_2",
		MAThrAtEntry: 0.01,
	}

	got, err := DecodeFill(EncodeFill(f))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.LotID != f.LotID || got.Stage != f.Stage || got.MAThrAtEntry != f.MAThrAtEntry {
		t.Errorf("entry metadata lost: %+v", got)
	}
	if got.Status != StatusFilled || got.Direction != position.Short {
		t.Errorf("status/direction = %s/%s", got.Status, got.Direction)
	}
}

func TestDecodeFillRejectsUnknownStatus(t *testing.T) {
	f := Fill{Symbol: "BTCUSDT", Action: ActionInit, TS: time.Now(), Status: "MAYBE"}
	if _, err := DecodeFill(EncodeFill(f)); err == nil {
		t.Error("unknown status decoded without error")
	}
}
