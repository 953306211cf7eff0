// Package position holds the per-symbol lot book and the cooldown
// registry gating strategy decisions.
package position

import (
	"errors"
	"sync"
	"time"
)

// Direction of a lot or book. A book never mixes directions.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Entry stages carried on lots.
const (
	StageInit    = "INIT"
	StageInit2   = "INIT2"
	StageInit3   = "INIT3"
	StageScaleIn = "SCALE_IN"
)

var (
	ErrMaxLotsExceeded   = errors.New("position book is full")
	ErrDirectionConflict = errors.New("lot direction conflicts with open book")
	ErrEmptyBook         = errors.New("position book is empty")
	ErrLotNotFound       = errors.New("lot not found in book")
)

// Lot is a single filled entry. Immutable after creation.
type Lot struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	EntryPrice   float64   `json:"entry_price"`
	EntryTS      time.Time `json:"entry_ts"`
	Size         float64   `json:"size"`
	Stage        string    `json:"stage"`
	MAThrAtEntry float64   `json:"ma_thr_at_entry"`
}

// Age returns how long the lot has been open.
func (l Lot) Age(now time.Time) time.Duration {
	return now.Sub(l.EntryTS)
}

// Book is the ordered lot list for one symbol. All mutations come from
// the symbol's lane; the mutex exists for read-only access from the ops
// surface.
type Book struct {
	mu      sync.RWMutex
	symbol  string
	maxLots int
	lots    []Lot // oldest -> newest
}

// NewBook creates an empty book for a symbol.
func NewBook(symbol string, maxLots int) *Book {
	return &Book{symbol: symbol, maxLots: maxLots}
}

// Symbol returns the symbol this book tracks.
func (b *Book) Symbol() string { return b.symbol }

// Append adds a lot at the newest end. Fails if the book is full or the
// direction conflicts with the open side.
func (b *Book) Append(lot Lot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lots) >= b.maxLots {
		return ErrMaxLotsExceeded
	}
	if len(b.lots) > 0 && b.lots[0].Direction != lot.Direction {
		return ErrDirectionConflict
	}
	b.lots = append(b.lots, lot)
	return nil
}

// CanAppend reports whether a lot of the given direction would be
// accepted, without mutating the book.
func (b *Book) CanAppend(dir Direction) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.lots) >= b.maxLots {
		return ErrMaxLotsExceeded
	}
	if len(b.lots) > 0 && b.lots[0].Direction != dir {
		return ErrDirectionConflict
	}
	return nil
}

// CloseOldest removes and returns the oldest lot.
func (b *Book) CloseOldest() (Lot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lots) == 0 {
		return Lot{}, ErrEmptyBook
	}
	lot := b.lots[0]
	b.lots = b.lots[1:]
	return lot, nil
}

// CloseNewest removes and returns the newest lot.
func (b *Book) CloseNewest() (Lot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lots) == 0 {
		return Lot{}, ErrEmptyBook
	}
	lot := b.lots[len(b.lots)-1]
	b.lots = b.lots[:len(b.lots)-1]
	return lot, nil
}

// CloseAll removes and returns all lots, oldest first.
func (b *Book) CloseAll() []Lot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.lots
	b.lots = nil
	return out
}

// CloseOldestN removes and returns the oldest n lots.
func (b *Book) CloseOldestN(n int) []Lot {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > len(b.lots) {
		n = len(b.lots)
	}
	out := b.lots[:n]
	b.lots = b.lots[n:]
	return out
}

// CloseByID removes and returns the lot with the given id. Remaining
// lots keep their order.
func (b *Book) CloseByID(id string) (Lot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, lot := range b.lots {
		if lot.ID == id {
			b.lots = append(b.lots[:i], b.lots[i+1:]...)
			return lot, nil
		}
	}
	return Lot{}, ErrLotNotFound
}

// Len returns the number of open lots.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lots)
}

// Direction returns the book's open side, or "" when empty.
func (b *Book) Direction() Direction {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.lots) == 0 {
		return ""
	}
	return b.lots[0].Direction
}

// Oldest returns the oldest lot.
func (b *Book) Oldest() (Lot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.lots) == 0 {
		return Lot{}, false
	}
	return b.lots[0], true
}

// Newest returns the newest lot.
func (b *Book) Newest() (Lot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.lots) == 0 {
		return Lot{}, false
	}
	return b.lots[len(b.lots)-1], true
}

// AvgEntryPrice returns the size-weighted mean entry price.
func (b *Book) AvgEntryPrice() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var sum, size float64
	for _, lot := range b.lots {
		sum += lot.EntryPrice * lot.Size
		size += lot.Size
	}
	if size == 0 {
		return 0
	}
	return sum / size
}

// PrevEntryPrice returns the entry price of the newest remaining lot,
// the SCALE_OUT reference.
func (b *Book) PrevEntryPrice() (float64, bool) {
	lot, ok := b.Newest()
	if !ok {
		return 0, false
	}
	return lot.EntryPrice, true
}

// Lots returns a copy of the open lots, oldest first.
func (b *Book) Lots() []Lot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Lot, len(b.lots))
	copy(out, b.lots)
	return out
}

// Restore replaces the book contents from a snapshot.
func (b *Book) Restore(lots []Lot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lots = make([]Lot, len(lots))
	copy(b.lots, lots)
}
