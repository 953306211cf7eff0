package position

import (
	"errors"
	"testing"
	"time"
)

func lot(id string, dir Direction, price float64) Lot {
	return Lot{
		ID:         id,
		Symbol:     "BTCUSDT",
		Direction:  dir,
		EntryPrice: price,
		EntryTS:    time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		Size:       1,
		Stage:      StageInit,
	}
}

func TestBookAppendLimits(t *testing.T) {
	b := NewBook("BTCUSDT", 2)

	if err := b.Append(lot("a", Long, 100)); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := b.Append(lot("b", Short, 101)); !errors.Is(err, ErrDirectionConflict) {
		t.Errorf("opposite direction append: got %v, want ErrDirectionConflict", err)
	}
	if err := b.Append(lot("b", Long, 101)); err != nil {
		t.Fatalf("second append: %v", err)
	}
	if err := b.Append(lot("c", Long, 102)); !errors.Is(err, ErrMaxLotsExceeded) {
		t.Errorf("append past max: got %v, want ErrMaxLotsExceeded", err)
	}
}

func TestBookCloseByIDKeepsOrder(t *testing.T) {
	b := NewBook("BTCUSDT", 4)
	for _, id := range []string{"a", "b", "c"} {
		if err := b.Append(lot(id, Long, 100)); err != nil {
			t.Fatal(err)
		}
	}

	closed, err := b.CloseByID("b")
	if err != nil {
		t.Fatalf("CloseByID: %v", err)
	}
	if closed.ID != "b" {
		t.Errorf("closed %s, want b", closed.ID)
	}

	lots := b.Lots()
	if len(lots) != 2 || lots[0].ID != "a" || lots[1].ID != "c" {
		t.Errorf("remaining order wrong: %v", lots)
	}

	if _, err := b.CloseByID("zz"); !errors.Is(err, ErrLotNotFound) {
		t.Errorf("missing id: got %v, want ErrLotNotFound", err)
	}
}

func TestBookOldestNewest(t *testing.T) {
	b := NewBook("BTCUSDT", 4)
	b.Append(lot("a", Short, 100))
	b.Append(lot("b", Short, 99))

	if o, _ := b.Oldest(); o.ID != "a" {
		t.Errorf("oldest = %s, want a", o.ID)
	}
	if n, _ := b.Newest(); n.ID != "b" {
		t.Errorf("newest = %s, want b", n.ID)
	}
	if prev, ok := b.PrevEntryPrice(); !ok || prev != 99 {
		t.Errorf("PrevEntryPrice = %v, %v; want 99, true", prev, ok)
	}
}

func TestBookAvgEntryPriceWeighted(t *testing.T) {
	b := NewBook("BTCUSDT", 4)
	l1 := lot("a", Long, 100)
	l1.Size = 1
	l2 := lot("b", Long, 200)
	l2.Size = 3
	b.Append(l1)
	b.Append(l2)

	if avg := b.AvgEntryPrice(); avg != 175 {
		t.Errorf("AvgEntryPrice = %v, want 175", avg)
	}
}

func TestBookCloseAllAndRestore(t *testing.T) {
	b := NewBook("BTCUSDT", 4)
	b.Append(lot("a", Long, 100))
	b.Append(lot("b", Long, 101))

	closed := b.CloseAll()
	if len(closed) != 2 || b.Len() != 0 {
		t.Fatalf("CloseAll left %d closed, %d open", len(closed), b.Len())
	}

	b.Restore(closed)
	if b.Len() != 2 || b.Direction() != Long {
		t.Errorf("restore: len=%d dir=%s", b.Len(), b.Direction())
	}
}
