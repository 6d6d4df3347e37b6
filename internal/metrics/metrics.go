// Package metrics provides Prometheus instrumentation for the anchor
// engine: one package-level var block of promauto collectors, grouped by
// subsystem, with no tracing machinery layered on top (the engine logs
// with plain log.Printf at call-site boundaries instead).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Sampling ───────────────────────────────────────────────────────────────

// SamplesDrawn counts classifier-labeled perturbation samples committed to
// a candidate's statistics, by sampling strategy.
var SamplesDrawn = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "anchorengine",
	Subsystem: "sampling",
	Name:      "samples_drawn_total",
	Help:      "Total perturbation samples drawn and classified.",
}, []string{"strategy"})

// SessionDuration tracks the total wall time one sampling session spends
// in its Run call.
var SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "anchorengine",
	Subsystem: "sampling",
	Name:      "session_duration_seconds",
	Help:      "Wall time spent in one sampling session's Run call.",
	Buckets:   prometheus.DefBuckets,
})

// ─── Bandit ─────────────────────────────────────────────────────────────────

// BanditIterations counts identifier rounds/iterations, by variant.
var BanditIterations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "anchorengine",
	Subsystem: "bandit",
	Name:      "iterations_total",
	Help:      "Total bandit identifier rounds run, by variant.",
}, []string{"variant"})

// BanditBatchesRequested counts sampling batches the identifier requested
// from the sampling service, by variant.
var BanditBatchesRequested = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "anchorengine",
	Subsystem: "bandit",
	Name:      "batches_requested_total",
	Help:      "Total sample batches requested by the bandit identifier.",
}, []string{"variant"})

// ─── Anchor constructor ─────────────────────────────────────────────────────

// RoundsSearched counts beam-search rounds run across all construction runs.
var RoundsSearched = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "anchorengine",
	Subsystem: "anchor",
	Name:      "rounds_searched_total",
	Help:      "Total beam-search rounds run by the anchor constructor.",
})

// ConstructionDuration tracks one Construct call's wall time.
var ConstructionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "anchorengine",
	Subsystem: "anchor",
	Name:      "construction_duration_seconds",
	Help:      "Wall time spent constructing one anchor.",
	Buckets:   prometheus.DefBuckets,
})

// ConstructionOutcomes counts construction runs by terminal state
// (found_anchor, exhausted, failed).
var ConstructionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "anchorengine",
	Subsystem: "anchor",
	Name:      "construction_outcomes_total",
	Help:      "Total anchor construction runs by terminal state.",
}, []string{"state"})

// ─── Aggregator ─────────────────────────────────────────────────────────────

// AggregatorInputsFailed counts per-input construction failures the
// aggregator isolated and skipped instead of aborting the batch.
var AggregatorInputsFailed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "anchorengine",
	Subsystem: "aggregator",
	Name:      "inputs_failed_total",
	Help:      "Total per-input construction failures skipped by the aggregator.",
})

// AggregatorPassDuration tracks one RunAll call's wall time; the pickers
// are not included.
var AggregatorPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "anchorengine",
	Subsystem: "aggregator",
	Name:      "pass_duration_seconds",
	Help:      "Wall time spent running one aggregator pass over many inputs.",
	Buckets:   prometheus.DefBuckets,
})

// AggregatorPicked counts rows selected by the submodular or coverage
// picker, by picker name.
var AggregatorPicked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "anchorengine",
	Subsystem: "aggregator",
	Name:      "picked_total",
	Help:      "Total explanation rows selected by a global picker.",
}, []string{"picker"})
