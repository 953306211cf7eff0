package market

import (
	"math"
	"testing"
)

func TestIndicatorWarmup(t *testing.T) {
	ind := NewIndicatorCache(5, 3)

	for i := 0; i < 4; i++ {
		ind.OnCandleClose(100)
		if s := ind.Snapshot(); s.MAReady {
			t.Fatalf("MA ready after %d closes, want 5", i+1)
		}
	}

	ind.OnCandleClose(100)
	s := ind.Snapshot()
	if !s.MAReady {
		t.Fatal("MA not ready after full period")
	}
	if s.MA != 100 {
		t.Errorf("MA = %v, want 100", s.MA)
	}
}

func TestIndicatorMASlides(t *testing.T) {
	ind := NewIndicatorCache(3, 1)
	for _, c := range []float64{10, 20, 30, 40} {
		ind.OnCandleClose(c)
	}
	// Window is now {20, 30, 40}.
	if s := ind.Snapshot(); s.MA != 30 {
		t.Errorf("MA = %v, want 30", s.MA)
	}
}

func TestIndicatorMomentum(t *testing.T) {
	ind := NewIndicatorCache(100, 3)
	for _, c := range []float64{100, 101, 102, 99} {
		ind.OnCandleClose(c)
	}

	s := ind.Snapshot()
	if !s.MomOK {
		t.Fatal("momentum not available with momWindow+1 closes")
	}
	want := (99.0 - 100.0) / 100.0
	if math.Abs(s.Mom-want) > 1e-12 {
		t.Errorf("Mom = %v, want %v", s.Mom, want)
	}
}

func TestIndicatorRestore(t *testing.T) {
	ind := NewIndicatorCache(3, 1)
	ind.Restore([]float64{1, 2, 3, 4, 5}) // longer than the period

	s := ind.Snapshot()
	if !s.MAReady {
		t.Fatal("MA not ready after restore")
	}
	if s.MA != 4 { // {3,4,5}
		t.Errorf("MA = %v, want 4", s.MA)
	}
	if ind.LastClose() != 5 {
		t.Errorf("LastClose = %v, want 5", ind.LastClose())
	}
}
