// Package metrics defines the daemon's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts sync runs by terminal result.
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxd_sync_runs_total",
		Help: "Sync runs by result (completed, failed, cancelled).",
	}, []string{"result"})

	// SyncDuration observes end-to-end sync run duration.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inboxd_sync_duration_seconds",
		Help:    "End-to-end sync run duration.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// EmailsProcessed counts messages fetched and evaluated during sync.
	EmailsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxd_sync_emails_processed_total",
		Help: "Messages fetched and evaluated during sync.",
	})

	// EmailsIndexed counts messages that passed all stages and were
	// written to the vector store.
	EmailsIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inboxd_sync_emails_indexed_total",
		Help: "Messages admitted and written to the vector store.",
	})

	// GuardRejections counts prompt-injection rejections by stage
	// (ingestion, retrieval, question).
	GuardRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxd_guard_rejections_total",
		Help: "Prompt-injection guard rejections by stage.",
	}, []string{"stage"})

	// ClassifierRejections counts relevance rejections by deciding stage.
	ClassifierRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxd_classifier_rejections_total",
		Help: "Relevance classifier rejections by deciding stage.",
	}, []string{"stage"})

	// AskRequests counts answer-pipeline invocations by outcome.
	AskRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inboxd_ask_requests_total",
		Help: "Answer pipeline invocations by outcome (answered, refused, no_context, failed).",
	}, []string{"outcome"})
)
