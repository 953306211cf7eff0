// Package state persists per-symbol runtime state to Redis so a
// restarted generator resumes with its book, indicator warm-up and
// cooldowns intact.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"meanrev-trading-bot/internal/logging"
	"meanrev-trading-bot/internal/position"
)

// Snapshot is the serialised state of one symbol.
type Snapshot struct {
	Symbol    string                 `json:"symbol"`
	Lots      []position.Lot         `json:"lots"`
	Closes    []float64              `json:"closes"`
	Cooldowns position.CooldownState `json:"cooldowns"`
	SavedAt   time.Time              `json:"saved_at"`
}

// Store reads and writes snapshots keyed per symbol.
type Store struct {
	client *redis.Client
	prefix string
	log    *logging.Logger
}

// NewStore creates a snapshot store sharing the bus client.
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		log:    logging.WithComponent("state"),
	}
}

func (s *Store) key(symbol string) string {
	return s.prefix + ":state:" + symbol
}

// Save persists the symbol's snapshot.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	snap.SavedAt = time.Now().UTC()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.Symbol, err)
	}
	if err := s.client.Set(ctx, s.key(snap.Symbol), data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// Load returns the symbol's snapshot, or (nil, nil) when none exists.
func (s *Store) Load(ctx context.Context, symbol string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(symbol)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", symbol, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", symbol, err)
	}
	s.log.Info("snapshot restored",
		"symbol", symbol, "lots", len(snap.Lots), "closes", len(snap.Closes),
		"saved_at", snap.SavedAt.Format(time.RFC3339))
	return &snap, nil
}

// Delete removes the symbol's snapshot.
func (s *Store) Delete(ctx context.Context, symbol string) error {
	return s.client.Del(ctx, s.key(symbol)).Err()
}
