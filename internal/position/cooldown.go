package position

import (
	"sync"
	"time"
)

// Cooldown kinds.
const (
	KindScaleIn       = "scale_in"
	KindScaleOut      = "scale_out"
	KindPendingIntent = "pending_intent"
)

// PendingIntent marks an intent awaiting its fill. While present and
// unexpired it blocks the evaluator for the symbol.
type PendingIntent struct {
	IntentID  string    `json:"intent_id"`
	Action    string    `json:"action"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CooldownState is the serialisable view of one symbol's cooldowns.
type CooldownState struct {
	ScaleInUntil  time.Time      `json:"scale_in_until"`
	ScaleOutUntil time.Time      `json:"scale_out_until"`
	Pending       *PendingIntent `json:"pending,omitempty"`
}

// Cooldowns tracks per-symbol action cooldowns and the pending intent
// slot. Expiry is checked lazily at read time, so no background sweep
// is needed on the hot path.
type Cooldowns struct {
	mu     sync.RWMutex
	states map[string]*CooldownState
}

// NewCooldowns creates an empty registry.
func NewCooldowns() *Cooldowns {
	return &Cooldowns{states: make(map[string]*CooldownState)}
}

func (c *Cooldowns) state(symbol string) *CooldownState {
	st, ok := c.states[symbol]
	if !ok {
		st = &CooldownState{}
		c.states[symbol] = st
	}
	return st
}

// ArmScaleIn starts the scale-in cooldown from the given fill time.
func (c *Cooldowns) ArmScaleIn(symbol string, from time.Time, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state(symbol).ScaleInUntil = from.Add(d)
}

// ArmScaleOut starts the scale-out cooldown from the given fill time.
func (c *Cooldowns) ArmScaleOut(symbol string, from time.Time, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state(symbol).ScaleOutUntil = from.Add(d)
}

// ScaleInActive reports whether the scale-in cooldown is still running.
func (c *Cooldowns) ScaleInActive(symbol string, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.states[symbol]
	return ok && now.Before(st.ScaleInUntil)
}

// ScaleOutActive reports whether the scale-out cooldown is still running.
func (c *Cooldowns) ScaleOutActive(symbol string, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.states[symbol]
	return ok && now.Before(st.ScaleOutUntil)
}

// SetPending reserves the pending-intent slot for the symbol.
func (c *Cooldowns) SetPending(symbol, intentID, action string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state(symbol).Pending = &PendingIntent{
		IntentID:  intentID,
		Action:    action,
		ExpiresAt: expiresAt,
	}
}

// Pending returns the unexpired pending intent for the symbol. An
// expired entry is cleared and reported through the second return so
// the caller can count the timeout.
func (c *Cooldowns) Pending(symbol string, now time.Time) (pi *PendingIntent, expired bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[symbol]
	if !ok || st.Pending == nil {
		return nil, false
	}
	if now.After(st.Pending.ExpiresAt) {
		st.Pending = nil
		return nil, true
	}
	p := *st.Pending
	return &p, false
}

// ClearPending drops the pending intent if it matches intentID. An
// empty intentID clears unconditionally.
func (c *Cooldowns) ClearPending(symbol, intentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[symbol]
	if !ok || st.Pending == nil {
		return false
	}
	if intentID != "" && st.Pending.IntentID != intentID {
		return false
	}
	st.Pending = nil
	return true
}

// State returns a copy of the symbol's cooldown state for snapshots
// and the ops surface.
func (c *Cooldowns) State(symbol string) CooldownState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.states[symbol]
	if !ok {
		return CooldownState{}
	}
	out := *st
	if st.Pending != nil {
		p := *st.Pending
		out.Pending = &p
	}
	return out
}

// Restore replaces a symbol's cooldown state from a snapshot.
func (c *Cooldowns) Restore(symbol string, st CooldownState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := st
	if st.Pending != nil {
		p := *st.Pending
		cp.Pending = &p
	}
	c.states[symbol] = &cp
}
