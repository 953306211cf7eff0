package signal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/logging"
	"meanrev-trading-bot/internal/metrics"
)

// ErrSkip tells the consumer to ack an entry it cannot ever process
// (poison payload). Any other handler error leaves the entry pending
// for redelivery.
var ErrSkip = errors.New("skip entry")

// Handler processes one stream entry.
type Handler func(ctx context.Context, stream, id string, values map[string]interface{}) error

// Consumer reads one or more streams through a consumer group. On
// start it drains entries that were delivered to this consumer name
// before a crash, then follows new entries; a background claim pass
// steals entries stuck pending on dead consumers.
type Consumer struct {
	client        *redis.Client
	streams       []string
	group         string
	name          string
	block         time.Duration
	claimInterval time.Duration
	claimIdle     time.Duration
	log           *logging.Logger
}

// NewConsumer creates a group consumer over the given streams.
func NewConsumer(client *redis.Client, cfg config.BusConfig, group, name string, streams []string) *Consumer {
	return &Consumer{
		client:        client,
		streams:       streams,
		group:         group,
		name:          name,
		block:         time.Duration(cfg.BlockSec) * time.Second,
		claimInterval: time.Duration(cfg.ClaimIntervalSec) * time.Second,
		claimIdle:     cfg.ClaimIdleThreshold(),
		log:           logging.WithComponent("bus-consumer").WithField("group", group),
	}
}

// EnsureGroups creates the consumer group on every stream, creating
// missing streams as empty. Existing groups are left untouched.
func (c *Consumer) EnsureGroups(ctx context.Context) error {
	for _, stream := range c.streams {
		err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return err
		}
	}
	return nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	if err := c.EnsureGroups(ctx); err != nil {
		return err
	}
	c.drainOwnPending(ctx, h)

	args := make([]string, 0, 2*len(c.streams))
	args = append(args, c.streams...)
	for range c.streams {
		args = append(args, ">")
	}

	nextClaim := time.Now().Add(c.claimInterval)
	for {
		if ctx.Err() != nil {
			return nil
		}

		if time.Now().After(nextClaim) {
			c.claimStale(ctx, h)
			nextClaim = time.Now().Add(c.claimInterval)
		}

		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  args,
			Count:    64,
			Block:    c.block,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			metrics.BusRetries.Inc()
			c.log.Warn("bus read failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, st := range res {
			for _, msg := range st.Messages {
				c.handle(ctx, st.Stream, msg, h)
			}
		}
	}
}

// drainOwnPending reprocesses entries delivered to this consumer name
// but never acked, so a restart picks up exactly where it crashed.
func (c *Consumer) drainOwnPending(ctx context.Context, h Handler) {
	args := make([]string, 0, 2*len(c.streams))
	args = append(args, c.streams...)
	for range c.streams {
		args = append(args, "0")
	}

	for {
		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  args,
			Count:    64,
		}).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				c.log.Warn("pending drain failed", "error", err)
			}
			return
		}

		n, acked := 0, 0
		for _, st := range res {
			for _, msg := range st.Messages {
				if c.handle(ctx, st.Stream, msg, h) {
					acked++
				}
				n++
			}
		}
		if n == 0 {
			return
		}
		// History reads return instantly, so a pass that acked nothing
		// would re-read the same failing entries in a tight loop. Leave
		// them pending; the claim pass retries them after the idle
		// threshold.
		if acked == 0 {
			c.log.Warn("pending entries not progressing, deferring to claim pass", "count", n)
			return
		}
	}
}

// claimStale takes over entries pending longer than the idle threshold
// on any consumer in the group.
func (c *Consumer) claimStale(ctx context.Context, h Handler) {
	for _, stream := range c.streams {
		start := "0-0"
		for {
			msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    c.group,
				Consumer: c.name,
				MinIdle:  c.claimIdle,
				Start:    start,
				Count:    64,
			}).Result()
			if err != nil {
				if ctx.Err() == nil {
					c.log.Warn("autoclaim failed", "stream", stream, "error", err)
				}
				return
			}
			for _, msg := range msgs {
				c.log.Info("claimed stale entry", "stream", stream, "id", msg.ID)
				c.handle(ctx, stream, msg, h)
			}
			if next == "0-0" || len(msgs) == 0 {
				break
			}
			start = next
		}
	}
}

// handle runs the handler and acks on success or skip. It reports
// whether the entry was acked; failed entries stay pending.
func (c *Consumer) handle(ctx context.Context, stream string, msg redis.XMessage, h Handler) bool {
	err := h(ctx, stream, msg.ID, msg.Values)
	switch {
	case err == nil:
	case errors.Is(err, ErrSkip):
		c.log.Warn("skipping unprocessable entry", "stream", stream, "id", msg.ID, "error", err)
	default:
		c.log.Error("handler failed, entry left pending", "stream", stream, "id", msg.ID, "error", err)
		return false
	}

	if err := c.client.XAck(ctx, stream, c.group, msg.ID).Err(); err != nil && ctx.Err() == nil {
		c.log.Warn("ack failed", "stream", stream, "id", msg.ID, "error", err)
	}
	return true
}
