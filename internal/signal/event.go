// Package signal defines the intent/fill event model and the Redis
// stream bus connecting the generator to its executors.
package signal

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"meanrev-trading-bot/internal/position"
)

// Action is the decision kind carried on an intent event.
type Action string

const (
	ActionInit        Action = "INIT"
	ActionInit2       Action = "INIT2"
	ActionInit3       Action = "INIT3"
	ActionScaleIn     Action = "SCALE_IN"
	ActionScaleOut    Action = "SCALE_OUT"
	ActionStopLoss    Action = "STOP_LOSS"
	ActionTakeProfit  Action = "TAKE_PROFIT"
	ActionNormalExit  Action = "NORMAL_EXIT"
	ActionRiskControl Action = "RISK_CONTROL"
	ActionNearTouch   Action = "NEAR_TOUCH"
	ActionInitOut     Action = "INIT_OUT"
)

// IsEntry reports whether the action opens a new lot.
func (a Action) IsEntry() bool {
	switch a {
	case ActionInit, ActionInit2, ActionInit3, ActionScaleIn:
		return true
	}
	return false
}

// Valid reports whether the action is one of the known kinds.
func (a Action) Valid() bool {
	switch a {
	case ActionInit, ActionInit2, ActionInit3, ActionScaleIn, ActionScaleOut,
		ActionStopLoss, ActionTakeProfit, ActionNormalExit, ActionRiskControl,
		ActionNearTouch, ActionInitOut:
		return true
	}
	return false
}

// Fill statuses reported by executors.
const (
	StatusFilled   = "FILLED"
	StatusPartial  = "PARTIAL"
	StatusRejected = "REJECTED"
)

// Intent is a strategy decision published on the signal stream.
type Intent struct {
	EventID        string             `json:"event_id"`
	Symbol         string             `json:"symbol"`
	Action         Action             `json:"action"`
	Direction      position.Direction `json:"direction"`
	ReferencePrice float64            `json:"reference_price"`
	TS             time.Time          `json:"ts"`
	TargetLots     []string           `json:"target_lots,omitempty"` // lot ids to close, oldest first
	Stage          string             `json:"stage,omitempty"`       // entry stage label
	Size           float64            `json:"size,omitempty"`        // entry size
	MAThrAtEntry   float64            `json:"ma_thr_at_entry,omitempty"`
	DedupeKey      string             `json:"dedupe_key"`
}

// Fill is an executor's report of what happened to an intent. Entry
// metadata (action, stage, threshold) is copied from the intent so the
// reconciler never has to look the intent back up.
type Fill struct {
	EventID      string             `json:"event_id"`
	IntentID     string             `json:"intent_id"`
	Symbol       string             `json:"symbol"`
	Action       Action             `json:"action"`
	Direction    position.Direction `json:"direction"`
	LotID        string             `json:"lot_id,omitempty"`
	TargetLots   []string           `json:"target_lots,omitempty"`
	FillPrice    float64            `json:"fill_price"`
	FilledSize   float64            `json:"filled_size"`
	TS           time.Time          `json:"ts"`
	Status       string             `json:"status"`
	Stage        string             `json:"stage,omitempty"`
	MAThrAtEntry float64            `json:"ma_thr_at_entry,omitempty"`
}

// DedupeKey fingerprints a logical decision: same symbol, action, book
// size, minute bucket and reference lot hash to the same key, so a
// re-evaluation within the window cannot publish twice.
func DedupeKey(symbol string, action Action, bookSize int, now time.Time, refLotID string) string {
	src := fmt.Sprintf("%s|%s|%d|%d|%s", symbol, action, bookSize, now.Unix()/60, refLotID)
	sum := sha1.Sum([]byte(src))
	return hex.EncodeToString(sum[:])
}

// EncodeIntent flattens an intent into Redis stream fields.
func EncodeIntent(in Intent) map[string]interface{} {
	return map[string]interface{}{
		"event_id":        in.EventID,
		"symbol":          in.Symbol,
		"action":          string(in.Action),
		"direction":       string(in.Direction),
		"reference_price": strconv.FormatFloat(in.ReferencePrice, 'f', -1, 64),
		"ts_ms":           strconv.FormatInt(in.TS.UnixMilli(), 10),
		"target_lots":     strings.Join(in.TargetLots, ","),
		"stage":           in.Stage,
		"size":            strconv.FormatFloat(in.Size, 'f', -1, 64),
		"ma_thr":          strconv.FormatFloat(in.MAThrAtEntry, 'f', -1, 64),
		"dedupe_key":      in.DedupeKey,
	}
}

// DecodeIntent rebuilds an intent from stream fields.
func DecodeIntent(values map[string]interface{}) (Intent, error) {
	get := func(k string) string {
		if v, ok := values[k].(string); ok {
			return v
		}
		return ""
	}

	action := Action(get("action"))
	if !action.Valid() {
		return Intent{}, fmt.Errorf("unknown action %q", get("action"))
	}

	price, err := strconv.ParseFloat(get("reference_price"), 64)
	if err != nil {
		return Intent{}, fmt.Errorf("bad reference_price: %w", err)
	}
	tsMs, err := strconv.ParseInt(get("ts_ms"), 10, 64)
	if err != nil {
		return Intent{}, fmt.Errorf("bad ts_ms: %w", err)
	}
	size, _ := strconv.ParseFloat(get("size"), 64)
	maThr, _ := strconv.ParseFloat(get("ma_thr"), 64)

	var targets []string
	if raw := get("target_lots"); raw != "" {
		targets = strings.Split(raw, ",")
	}

	return Intent{
		EventID:        get("event_id"),
		Symbol:         get("symbol"),
		Action:         action,
		Direction:      position.Direction(get("direction")),
		ReferencePrice: price,
		TS:             time.UnixMilli(tsMs).UTC(),
		TargetLots:     targets,
		Stage:          get("stage"),
		Size:           size,
		MAThrAtEntry:   maThr,
		DedupeKey:      get("dedupe_key"),
	}, nil
}

// EncodeFill flattens a fill into Redis stream fields.
func EncodeFill(f Fill) map[string]interface{} {
	return map[string]interface{}{
		"event_id":    f.EventID,
		"intent_id":   f.IntentID,
		"symbol":      f.Symbol,
		"action":      string(f.Action),
		"direction":   string(f.Direction),
		"lot_id":      f.LotID,
		"target_lots": strings.Join(f.TargetLots, ","),
		"fill_price":  strconv.FormatFloat(f.FillPrice, 'f', -1, 64),
		"filled_size": strconv.FormatFloat(f.FilledSize, 'f', -1, 64),
		"ts_ms":       strconv.FormatInt(f.TS.UnixMilli(), 10),
		"status":      f.Status,
		"stage":       f.Stage,
		"ma_thr":      strconv.FormatFloat(f.MAThrAtEntry, 'f', -1, 64),
	}
}

// DecodeFill rebuilds a fill from stream fields.
func DecodeFill(values map[string]interface{}) (Fill, error) {
	get := func(k string) string {
		if v, ok := values[k].(string); ok {
			return v
		}
		return ""
	}

	action := Action(get("action"))
	if !action.Valid() {
		return Fill{}, fmt.Errorf("unknown action %q", get("action"))
	}
	price, err := strconv.ParseFloat(get("fill_price"), 64)
	if err != nil {
		return Fill{}, fmt.Errorf("bad fill_price: %w", err)
	}
	size, _ := strconv.ParseFloat(get("filled_size"), 64)
	tsMs, err := strconv.ParseInt(get("ts_ms"), 10, 64)
	if err != nil {
		return Fill{}, fmt.Errorf("bad ts_ms: %w", err)
	}
	maThr, _ := strconv.ParseFloat(get("ma_thr"), 64)

	var targets []string
	if raw := get("target_lots"); raw != "" {
		targets = strings.Split(raw, ",")
	}

	status := get("status")
	switch status {
	case StatusFilled, StatusPartial, StatusRejected:
	default:
		return Fill{}, fmt.Errorf("unknown fill status %q", status)
	}

	return Fill{
		EventID:      get("event_id"),
		IntentID:     get("intent_id"),
		Symbol:       get("symbol"),
		Action:       action,
		Direction:    position.Direction(get("direction")),
		LotID:        get("lot_id"),
		TargetLots:   targets,
		FillPrice:    price,
		FilledSize:   size,
		TS:           time.UnixMilli(tsMs).UTC(),
		Status:       status,
		Stage:        get("stage"),
		MAThrAtEntry: maThr,
	}, nil
}
