package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/logging"
	"meanrev-trading-bot/internal/signal"
)

// Executor reads intents from its consumer group, executes them
// through the broker and publishes fills. Intents are idempotent per
// event id: a redelivered intent that was already executed only
// re-acks.
type Executor struct {
	client   *redis.Client
	cfg      config.BusConfig
	lotSize  float64
	broker   Broker
	producer *signal.Producer
	consumer *signal.Consumer
	log      *logging.Logger
}

// New creates an executor consuming the signal streams of the given
// symbols.
func New(client *redis.Client, cfg config.BusConfig, lotSize float64, broker Broker, symbols []string) *Executor {
	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = signal.IntentStream(cfg.StreamPrefix, sym)
	}
	return &Executor{
		client:   client,
		cfg:      cfg,
		lotSize:  lotSize,
		broker:   broker,
		producer: signal.NewProducer(client, cfg),
		consumer: signal.NewConsumer(client, cfg, cfg.Group, cfg.Consumer, streams),
		log:      logging.WithComponent("executor").WithField("consumer", cfg.Consumer),
	}
}

// Run consumes until ctx is cancelled. The broker is disconnected on
// every exit path.
func (e *Executor) Run(ctx context.Context) error {
	defer func() {
		if err := e.broker.Disconnect(); err != nil {
			e.log.Warn("broker disconnect failed", "error", err)
		}
	}()

	e.log.Info("executor started", "group", e.cfg.Group)
	return e.consumer.Run(ctx, e.handle)
}

func (e *Executor) handle(ctx context.Context, stream, id string, values map[string]interface{}) error {
	in, err := signal.DecodeIntent(values)
	if err != nil {
		return fmt.Errorf("%w: %v", signal.ErrSkip, err)
	}

	// Claim the event before touching the broker. A redelivery after a
	// crash-post-execute must not double-execute.
	ttl := time.Duration(e.cfg.RetentionDays) * 24 * time.Hour
	fresh, err := e.client.SetNX(ctx, signal.AppliedKey(e.cfg.StreamPrefix, in.EventID), e.cfg.Consumer, ttl).Result()
	if err != nil {
		return fmt.Errorf("idempotency claim: %w", err)
	}
	if !fresh {
		e.log.Debug("intent already executed", "event_id", in.EventID)
		return nil
	}

	exec, err := e.broker.Execute(ctx, e.orderFor(in))
	if err != nil {
		if errors.Is(err, ErrOrderRejected) {
			e.log.Warn("order rejected",
				"symbol", in.Symbol, "action", string(in.Action), "event_id", in.EventID)
			return e.producer.PublishFill(ctx, e.fillFor(in, Execution{TS: time.Now().UTC()}, signal.StatusRejected))
		}
		// Transient broker failure: release the claim so a redelivery
		// can retry.
		e.client.Del(ctx, signal.AppliedKey(e.cfg.StreamPrefix, in.EventID))
		return fmt.Errorf("execute %s %s: %w", in.Symbol, in.Action, err)
	}

	status := signal.StatusFilled
	if exec.Size < e.orderFor(in).Size {
		status = signal.StatusPartial
	}

	e.log.Info("order executed",
		"symbol", in.Symbol, "action", string(in.Action),
		"price", exec.Price, "size", exec.Size, "event_id", in.EventID)
	return e.producer.PublishFill(ctx, e.fillFor(in, exec, status))
}

func (e *Executor) orderFor(in signal.Intent) Order {
	o := Order{
		Symbol:    in.Symbol,
		Direction: in.Direction,
		Price:     in.ReferencePrice,
	}
	if in.Action.IsEntry() {
		o.Size = in.Size
		return o
	}
	o.Reduce = true
	o.Size = e.lotSize * float64(len(in.TargetLots))
	return o
}

func (e *Executor) fillFor(in signal.Intent, exec Execution, status string) signal.Fill {
	f := signal.Fill{
		EventID:      uuid.New().String(),
		IntentID:     in.EventID,
		Symbol:       in.Symbol,
		Action:       in.Action,
		Direction:    in.Direction,
		TargetLots:   in.TargetLots,
		FillPrice:    exec.Price,
		FilledSize:   exec.Size,
		TS:           exec.TS,
		Status:       status,
		Stage:        in.Stage,
		MAThrAtEntry: in.MAThrAtEntry,
	}
	if in.Action.IsEntry() && status != signal.StatusRejected {
		f.LotID = uuid.New().String()
	}
	return f
}
