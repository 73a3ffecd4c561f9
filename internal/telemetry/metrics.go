package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueueItemsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docpipe",
		Subsystem: "queue",
		Name:      "items_enqueued_total",
		Help:      "Total items enqueued, labelled by discovery source.",
	}, []string{"source"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "docpipe",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Items currently in each queue status.",
	}, []string{"status"})

	ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docpipe",
		Subsystem: "pipeline",
		Name:      "items_processed_total",
		Help:      "Total queue items settled, labelled by outcome.",
	}, []string{"outcome"})

	ItemDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "docpipe",
		Subsystem: "pipeline",
		Name:      "item_duration_seconds",
		Help:      "Per-item processing time in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	ExtractionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docpipe",
		Subsystem: "extract",
		Name:      "results_total",
		Help:      "Extraction results produced, labelled by type and method.",
	}, []string{"type", "method"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "docpipe",
		Subsystem: "resilience",
		Name:      "breaker_open",
		Help:      "1 when the named circuit breaker is open.",
	}, []string{"name"})

	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docpipe",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Language model calls, labelled by outcome.",
	}, []string{"outcome"})

	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docpipe",
		Subsystem: "scheduler",
		Name:      "task_runs_total",
		Help:      "Scheduled task runs, labelled by task and outcome.",
	}, []string{"task", "outcome"})
)
