package signal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/logging"
	"meanrev-trading-bot/internal/metrics"
)

const (
	publishAttempts = 3
	publishBackoff  = 200 * time.Millisecond
)

// Producer appends intent and fill events to the bus. Publishing an
// intent first claims its dedupe key, so a logically identical decision
// inside the window is silently suppressed.
type Producer struct {
	client *redis.Client
	cfg    config.BusConfig
	log    *logging.Logger
}

// NewProducer creates a producer over an established bus client.
func NewProducer(client *redis.Client, cfg config.BusConfig) *Producer {
	return &Producer{
		client: client,
		cfg:    cfg,
		log:    logging.WithComponent("bus-producer"),
	}
}

// PublishIntent appends the intent to its symbol's signal stream.
// Returns false with a nil error when the dedupe window suppressed it.
func (p *Producer) PublishIntent(ctx context.Context, in Intent) (bool, error) {
	window := time.Duration(p.cfg.DedupeWindowSec) * time.Second
	fresh, err := p.client.SetNX(ctx, dedupeKeyName(p.cfg.StreamPrefix, in.DedupeKey), in.EventID, window).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe claim: %w", err)
	}
	if !fresh {
		metrics.IntentsDeduped.WithLabelValues(in.Symbol).Inc()
		p.log.Debug("intent suppressed by dedupe window",
			"symbol", in.Symbol, "action", string(in.Action), "dedupe_key", in.DedupeKey)
		return false, nil
	}

	stream := IntentStream(p.cfg.StreamPrefix, in.Symbol)
	if err := p.add(ctx, stream, EncodeIntent(in)); err != nil {
		return false, err
	}

	metrics.IntentsPublished.WithLabelValues(in.Symbol, string(in.Action)).Inc()
	p.log.Info("intent published",
		"symbol", in.Symbol, "action", string(in.Action),
		"event_id", in.EventID, "reference_price", in.ReferencePrice)

	p.trim(ctx, stream)
	return true, nil
}

// PublishFill appends an executor's fill report to the fill stream.
func (p *Producer) PublishFill(ctx context.Context, f Fill) error {
	stream := FillStream(p.cfg.StreamPrefix)
	if err := p.add(ctx, stream, EncodeFill(f)); err != nil {
		return err
	}
	p.trim(ctx, stream)
	return nil
}

// Quarantine parks a fill the reconciler could not apply, with the
// violated invariant attached for manual inspection.
func (p *Producer) Quarantine(ctx context.Context, f Fill, reason string) error {
	fields := EncodeFill(f)
	fields["reason"] = reason
	return p.add(ctx, QuarantineStream(p.cfg.StreamPrefix), fields)
}

// add appends with a bounded retry on transient bus errors.
func (p *Producer) add(ctx context.Context, stream string, fields map[string]interface{}) error {
	backoff := publishBackoff
	var err error
	for attempt := 0; attempt < publishAttempts; attempt++ {
		if attempt > 0 {
			metrics.BusRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err = p.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: fields}).Err()
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("xadd %s: %w", stream, err)
}

// trim drops entries older than the retention horizon. Best effort: a
// failed trim only delays reclamation until the next publish.
func (p *Producer) trim(ctx context.Context, stream string) {
	cutoff := time.Now().Add(-time.Duration(p.cfg.RetentionDays) * 24 * time.Hour)
	minID := strconv.FormatInt(cutoff.UnixMilli(), 10) + "-0"
	if err := p.client.XTrimMinIDApprox(ctx, stream, minID, 0).Err(); err != nil {
		p.log.Warn("stream trim failed", "stream", stream, "error", err)
	}
}
