// Package strategy implements the mean-reversion decision engine. The
// evaluator is a pure function over the market snapshot, the position
// book, the cooldown registry and the run configuration; it emits at
// most one decision per tick.
package strategy

import (
	"fmt"
	"math"
	"time"

	"meanrev-trading-bot/config"
	"meanrev-trading-bot/internal/position"
	"meanrev-trading-bot/internal/signal"
)

// Input is everything one evaluation reads.
type Input struct {
	Symbol    string
	Price     float64
	MA        float64
	Mom       float64
	Book      *position.Book
	Cooldowns *position.Cooldowns
	Now       time.Time
}

// Decision is the evaluator's output: one action, its side and the
// lots it applies to.
type Decision struct {
	Action         signal.Action
	Direction      position.Direction
	ReferencePrice float64
	TargetLots     []string // lots to close, oldest first (exits only)
	Stage          string   // stage label for the new lot (entries only)
	MAThrAtEntry   float64  // threshold frozen onto the new lot (entries only)
}

// Evaluator holds the immutable strategy parameters.
type Evaluator struct {
	cfg config.StrategyConfig
}

// NewEvaluator creates an evaluator for the run configuration.
func NewEvaluator(cfg config.StrategyConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// AgeFactor is the piecewise SL/TP width multiplier. Bands are
// half-open at the lower bound: an age of exactly one hour falls in
// the [1h, 2h) band.
func AgeFactor(age time.Duration) float64 {
	switch {
	case age < time.Hour:
		return 3.0
	case age < 2*time.Hour:
		return 2.5
	case age < 12*time.Hour:
		return 2.0
	case age < 24*time.Hour:
		return 1.5
	default:
		return 1.0
	}
}

// Evaluate runs the rule ladder and returns the first decision whose
// guard holds, or nil. Exits dominate entries; mechanical per-lot
// stops dominate structural exits; risk reduction dominates risk
// addition. The caller is responsible for the pending-intent
// precondition.
func (e *Evaluator) Evaluate(in Input) *Decision {
	lots := in.Book.Lots()

	if len(lots) > 0 {
		if d := e.evaluateExits(in, lots); d != nil {
			return d
		}
		if d := e.evaluateAddOns(in, lots); d != nil {
			return d
		}
		return nil
	}

	return e.evaluateInit(in)
}

func (e *Evaluator) evaluateExits(in Input, lots []position.Lot) *Decision {
	side := lots[0].Direction
	oldest := lots[0]
	newest := lots[len(lots)-1]
	thr := e.cfg.MAThresholdEff

	// 1. STOP_LOSS on the oldest lot.
	factor := AgeFactor(oldest.Age(in.Now))
	slPct := oldest.MAThrAtEntry * factor
	if crossed(side.Opposite(), in.Price, oldest.EntryPrice, slPct) {
		return &Decision{
			Action:         signal.ActionStopLoss,
			Direction:      side,
			ReferencePrice: in.Price,
			TargetLots:     []string{oldest.ID},
		}
	}

	// 2. TAKE_PROFIT on the oldest lot, same width.
	if crossed(side, in.Price, oldest.EntryPrice, slPct) {
		return &Decision{
			Action:         signal.ActionTakeProfit,
			Direction:      side,
			ReferencePrice: in.Price,
			TargetLots:     []string{oldest.ID},
		}
	}

	// 3. NORMAL_EXIT: price through the MA band on the profit side
	// closes the whole book.
	if crossed(side, in.Price, in.MA, thr) {
		return &Decision{
			Action:         signal.ActionNormalExit,
			Direction:      side,
			ReferencePrice: in.Price,
			TargetLots:     lotIDs(lots),
		}
	}

	// 4. RISK_CONTROL: at 3-4 lots a modest favourable move trims risk.
	if len(lots) == 3 || len(lots) == 4 {
		avg := in.Book.AvgEntryPrice()
		if crossed(side, in.Price, avg, e.cfg.RiskControlThreshold) {
			targets := []string{oldest.ID}
			if len(lots) == 4 {
				targets = lotIDs(lots)
			}
			return &Decision{
				Action:         signal.ActionRiskControl,
				Direction:      side,
				ReferencePrice: in.Price,
				TargetLots:     targets,
			}
		}
	}

	// 5. NEAR_TOUCH: a fresh newest lot exits when price grazes the MA.
	if newest.Age(in.Now) <= time.Duration(e.cfg.NearTouchWindowSec)*time.Second &&
		math.Abs(in.Price-in.MA) <= e.cfg.NearTouchEps*in.MA {
		return &Decision{
			Action:         signal.ActionNearTouch,
			Direction:      side,
			ReferencePrice: in.Price,
			TargetLots:     []string{newest.ID},
		}
	}

	// 6. SCALE_OUT: newest lot only, referenced to the newest
	// remaining entry price. No momentum gate.
	if len(lots) >= 2 && !in.Cooldowns.ScaleOutActive(in.Symbol, in.Now) {
		prev, _ := in.Book.PrevEntryPrice()
		if crossed(side, in.Price, prev, 0) && crossed(side, in.Price, in.MA, thr/2) {
			return &Decision{
				Action:         signal.ActionScaleOut,
				Direction:      side,
				ReferencePrice: in.Price,
				TargetLots:     []string{newest.ID},
			}
		}
	}

	// 7. INIT_OUT: a lone lot exits on half-band plus momentum.
	if len(lots) == 1 && crossed(side, in.Price, in.MA, thr/2) && favourableMom(side, in.Mom) >= e.cfg.MomentumThreshold {
		return &Decision{
			Action:         signal.ActionInitOut,
			Direction:      side,
			ReferencePrice: in.Price,
			TargetLots:     []string{oldest.ID},
		}
	}

	return nil
}

func (e *Evaluator) evaluateAddOns(in Input, lots []position.Lot) *Decision {
	side := lots[0].Direction
	oldest := lots[0]
	newest := lots[len(lots)-1]
	thr := e.cfg.MAThresholdEff

	// 8. SCALE_IN: adverse move past the newest entry with adverse
	// momentum and price beyond the half band.
	if len(lots) < e.cfg.MaxLots && !in.Cooldowns.ScaleInActive(in.Symbol, in.Now) {
		adverse := crossed(side.Opposite(), in.Price, newest.EntryPrice, 0) && in.Price != newest.EntryPrice
		momOK := adverseMom(side, in.Mom) >= e.cfg.MomentumThreshold
		maOK := crossed(side.Opposite(), in.Price, in.MA, thr/2)
		if adverse && momOK && maOK {
			return &Decision{
				Action:         signal.ActionScaleIn,
				Direction:      side,
				ReferencePrice: in.Price,
				Stage:          fmt.Sprintf("%s_%d", position.StageScaleIn, len(lots)+1),
				MAThrAtEntry:   thr,
			}
		}
	}

	// 9. INIT2 / INIT3: ladder entries anchored to the INIT price
	// inside the watch window. INIT2 needs the book at exactly one
	// lot; INIT3 needs exactly two with INIT2 as the second.
	if oldest.Stage == position.StageInit &&
		oldest.Age(in.Now) <= time.Duration(e.cfg.InitWindowSec)*time.Second &&
		len(lots) < e.cfg.MaxLots {

		if len(lots) == 1 && crossed(side.Opposite(), in.Price, oldest.EntryPrice, thr) {
			return &Decision{
				Action:         signal.ActionInit2,
				Direction:      side,
				ReferencePrice: in.Price,
				Stage:          position.StageInit2,
				MAThrAtEntry:   thr,
			}
		}
		if len(lots) == 2 && lots[1].Stage == position.StageInit2 &&
			crossed(side.Opposite(), in.Price, oldest.EntryPrice, 2*thr) {
			return &Decision{
				Action:         signal.ActionInit3,
				Direction:      side,
				ReferencePrice: in.Price,
				Stage:          position.StageInit3,
				MAThrAtEntry:   thr,
			}
		}
	}

	return nil
}

func (e *Evaluator) evaluateInit(in Input) *Decision {
	thr := e.cfg.MAThresholdEff

	// 10. INIT LONG: price below the MA band with downward momentum.
	if crossed(position.Short, in.Price, in.MA, thr) && -in.Mom >= e.cfg.MomentumThreshold {
		return &Decision{
			Action:         signal.ActionInit,
			Direction:      position.Long,
			ReferencePrice: in.Price,
			Stage:          position.StageInit,
			MAThrAtEntry:   thr,
		}
	}

	// INIT SHORT: mirror image.
	if crossed(position.Long, in.Price, in.MA, thr) && in.Mom >= e.cfg.MomentumThreshold {
		return &Decision{
			Action:         signal.ActionInit,
			Direction:      position.Short,
			ReferencePrice: in.Price,
			Stage:          position.StageInit,
			MAThrAtEntry:   thr,
		}
	}

	return nil
}

// crossed reports whether price has moved past ref shifted by pct in
// the favourable direction for side. For LONG that is price >=
// ref*(1+pct); for SHORT price <= ref*(1-pct).
func crossed(side position.Direction, price, ref, pct float64) bool {
	if side == position.Long {
		return price >= ref*(1+pct)
	}
	return price <= ref*(1-pct)
}

// favourableMom returns the momentum component in the book's profit
// direction: positive mom favours LONG exits, negative favours SHORT.
func favourableMom(side position.Direction, mom float64) float64 {
	if side == position.Long {
		return mom
	}
	return -mom
}

// adverseMom returns the momentum component against the book: falling
// momentum is adverse for LONG, rising for SHORT.
func adverseMom(side position.Direction, mom float64) float64 {
	if side == position.Long {
		return -mom
	}
	return mom
}

func lotIDs(lots []position.Lot) []string {
	out := make([]string, len(lots))
	for i, l := range lots {
		out[i] = l.ID
	}
	return out
}
