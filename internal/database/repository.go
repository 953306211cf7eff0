package database

import (
	"context"
	"strings"

	"meanrev-trading-bot/internal/position"
	"meanrev-trading-bot/internal/signal"
)

// RecordIntent stores a published intent. Best effort: failures are
// logged, never propagated, so history lag cannot stall the pipeline.
func (db *DB) RecordIntent(ctx context.Context, in signal.Intent) {
	if db == nil {
		return
	}
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO intents (event_id, symbol, action, direction, reference_price, target_lots, stage, dedupe_key, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (event_id) DO NOTHING`,
		in.EventID, in.Symbol, string(in.Action), string(in.Direction),
		in.ReferencePrice, strings.Join(in.TargetLots, ","), in.Stage, in.DedupeKey, in.TS,
	)
	if err != nil {
		db.log.Warn("intent history insert failed", "event_id", in.EventID, "error", err)
	}
}

// RecordFill stores an executor fill report.
func (db *DB) RecordFill(ctx context.Context, f signal.Fill) {
	if db == nil {
		return
	}
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO fills (event_id, intent_id, symbol, action, status, fill_price, filled_size, ts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (event_id) DO NOTHING`,
		f.EventID, f.IntentID, f.Symbol, string(f.Action), f.Status,
		f.FillPrice, f.FilledSize, f.TS,
	)
	if err != nil {
		db.log.Warn("fill history insert failed", "event_id", f.EventID, "error", err)
	}
}

// RecordClosedLot stores a completed round trip with its realised PnL.
func (db *DB) RecordClosedLot(ctx context.Context, lot position.Lot, f signal.Fill) {
	if db == nil {
		return
	}

	pnl := (f.FillPrice - lot.EntryPrice) * lot.Size
	if lot.Direction == position.Short {
		pnl = -pnl
	}

	_, err := db.Pool.Exec(ctx,
		`INSERT INTO closed_lots (lot_id, symbol, direction, stage, entry_price, exit_price, size, exit_action, entry_ts, exit_ts, pnl)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (lot_id) DO NOTHING`,
		lot.ID, lot.Symbol, string(lot.Direction), lot.Stage,
		lot.EntryPrice, f.FillPrice, lot.Size, string(f.Action),
		lot.EntryTS, f.TS, pnl,
	)
	if err != nil {
		db.log.Warn("closed lot insert failed", "lot_id", lot.ID, "error", err)
	}
}

// ClosedLotStats is the per-symbol aggregate for the ops surface.
type ClosedLotStats struct {
	Symbol    string  `json:"symbol"`
	Trades    int64   `json:"trades"`
	Wins      int64   `json:"wins"`
	TotalPnl  float64 `json:"total_pnl"`
	AvgPnl    float64 `json:"avg_pnl"`
	WinRate   float64 `json:"win_rate"`
	WorstTrip float64 `json:"worst_trip"`
	BestTrip  float64 `json:"best_trip"`
}

// Stats aggregates closed-lot history per symbol.
func (db *DB) Stats(ctx context.Context) ([]ClosedLotStats, error) {
	if db == nil {
		return nil, nil
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT symbol,
		        COUNT(*),
		        COUNT(*) FILTER (WHERE pnl > 0),
		        COALESCE(SUM(pnl), 0),
		        COALESCE(AVG(pnl), 0),
		        COALESCE(MIN(pnl), 0),
		        COALESCE(MAX(pnl), 0)
		 FROM closed_lots
		 GROUP BY symbol
		 ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClosedLotStats
	for rows.Next() {
		var s ClosedLotStats
		if err := rows.Scan(&s.Symbol, &s.Trades, &s.Wins, &s.TotalPnl, &s.AvgPnl, &s.WorstTrip, &s.BestTrip); err != nil {
			return nil, err
		}
		if s.Trades > 0 {
			s.WinRate = float64(s.Wins) / float64(s.Trades)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
