package signal

import (
	"context"

	"github.com/redis/go-redis/v9"

	"meanrev-trading-bot/config"
)

// NewRedisClient builds the bus client from configuration.
func NewRedisClient(cfg config.BusConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// IntentStream returns the per-symbol signal stream key.
func IntentStream(prefix, symbol string) string {
	return prefix + ":signals:" + symbol
}

// FillStream returns the shared fill stream key.
func FillStream(prefix string) string {
	return prefix + ":fills"
}

// QuarantineStream returns the key of the stream holding fills the
// reconciler refused to apply.
func QuarantineStream(prefix string) string {
	return prefix + ":quarantine"
}

func dedupeKeyName(prefix, key string) string {
	return prefix + ":dedupe:" + key
}

// AppliedKey is the idempotency marker an executor sets before acting
// on an intent.
func AppliedKey(prefix, eventID string) string {
	return prefix + ":applied:" + eventID
}

// Rewind moves a consumer group's delivery cursor on one stream. Use
// "0" to replay the whole retained log, or a concrete stream id to
// resume from a point in time.
func Rewind(ctx context.Context, client *redis.Client, stream, group, id string) error {
	return client.XGroupSetID(ctx, stream, group, id).Err()
}
