package position

import (
	"testing"
	"time"
)

func TestCooldownWindows(t *testing.T) {
	c := NewCooldowns()
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	c.ArmScaleIn("BTCUSDT", now, 30*time.Minute)
	if !c.ScaleInActive("BTCUSDT", now.Add(29*time.Minute)) {
		t.Error("scale-in cooldown inactive inside the window")
	}
	if c.ScaleInActive("BTCUSDT", now.Add(31*time.Minute)) {
		t.Error("scale-in cooldown active past the window")
	}
	if c.ScaleInActive("ETHUSDT", now) {
		t.Error("cooldown leaked across symbols")
	}
}

func TestPendingIntentLifecycle(t *testing.T) {
	c := NewCooldowns()
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	c.SetPending("BTCUSDT", "ev-1", "INIT", now.Add(time.Minute))

	pi, expired := c.Pending("BTCUSDT", now.Add(30*time.Second))
	if expired || pi == nil || pi.IntentID != "ev-1" {
		t.Fatalf("Pending = %v, expired=%v; want ev-1, false", pi, expired)
	}

	// Wrong id does not clear.
	if c.ClearPending("BTCUSDT", "ev-other") {
		t.Error("ClearPending succeeded with wrong intent id")
	}
	if pi, _ := c.Pending("BTCUSDT", now); pi == nil {
		t.Fatal("pending vanished after mismatched clear")
	}

	if !c.ClearPending("BTCUSDT", "ev-1") {
		t.Error("ClearPending failed with matching id")
	}
	if pi, _ := c.Pending("BTCUSDT", now); pi != nil {
		t.Error("pending survived clear")
	}
}

func TestPendingIntentExpiry(t *testing.T) {
	c := NewCooldowns()
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	c.SetPending("BTCUSDT", "ev-1", "INIT", now.Add(time.Minute))

	pi, expired := c.Pending("BTCUSDT", now.Add(2*time.Minute))
	if pi != nil || !expired {
		t.Fatalf("expired read = %v, %v; want nil, true", pi, expired)
	}

	// Expiry is reported exactly once.
	if _, expired := c.Pending("BTCUSDT", now.Add(3*time.Minute)); expired {
		t.Error("expiry reported twice")
	}
}

func TestCooldownStateRoundTrip(t *testing.T) {
	c := NewCooldowns()
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	c.ArmScaleOut("BTCUSDT", now, time.Hour)
	c.SetPending("BTCUSDT", "ev-1", "SCALE_OUT", now.Add(time.Minute))

	st := c.State("BTCUSDT")

	restored := NewCooldowns()
	restored.Restore("BTCUSDT", st)
	if !restored.ScaleOutActive("BTCUSDT", now.Add(30*time.Minute)) {
		t.Error("scale-out cooldown lost in round trip")
	}
	if pi, _ := restored.Pending("BTCUSDT", now); pi == nil || pi.IntentID != "ev-1" {
		t.Errorf("pending lost in round trip: %v", pi)
	}
}
