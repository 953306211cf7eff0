// Package metrics exposes the pipeline's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meanrev_ticks_received_total",
		Help: "Market ticks accepted into the pipeline.",
	}, []string{"symbol"})

	TicksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meanrev_ticks_dropped_total",
		Help: "Market ticks dropped before evaluation.",
	}, []string{"symbol", "reason"}) // reason: stale, bad_input

	CandlesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meanrev_candles_closed_total",
		Help: "One-minute candles closed per symbol.",
	}, []string{"symbol"})

	IntentsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meanrev_intents_published_total",
		Help: "Intent events appended to the signal stream.",
	}, []string{"symbol", "action"})

	IntentsDeduped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meanrev_intents_deduped_total",
		Help: "Intent events suppressed by the dedupe window.",
	}, []string{"symbol"})

	IntentsTimedOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meanrev_intents_timed_out_total",
		Help: "Pending intents released by timeout without a fill.",
	}, []string{"symbol"})

	FillsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meanrev_fills_applied_total",
		Help: "Fill events applied to the position book.",
	}, []string{"symbol", "action"})

	FillsQuarantined = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meanrev_fills_quarantined_total",
		Help: "Fill events quarantined due to book invariant violations.",
	}, []string{"symbol"})

	FillsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meanrev_fills_rejected_total",
		Help: "Broker-rejected intents observed on the fill stream.",
	}, []string{"symbol"})

	BusRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meanrev_bus_retries_total",
		Help: "Transient bus errors retried with backoff.",
	})

	OpenLots = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meanrev_open_lots",
		Help: "Open lots per symbol.",
	}, []string{"symbol"})
)
