// Package metrics exposes counters for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MirrorsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devpool",
		Name:      "mirrors_created_total",
		Help:      "Directory issues created for newly seen partner issues.",
	})

	MetadataUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devpool",
		Name:      "metadata_updates_total",
		Help:      "Directory issue metadata rewrites, by changed field.",
	}, []string{"field"})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devpool",
		Name:      "state_transitions_total",
		Help:      "Directory issue open/closed transitions, by rule.",
	}, []string{"rule"})

	IdentityOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devpool",
		Name:      "identity_repairs_total",
		Help:      "Identity repair attempts, by outcome.",
	}, []string{"outcome"})

	IssueFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devpool",
		Name:      "issue_failures_total",
		Help:      "Per-issue failures that were logged and skipped, by stage.",
	}, []string{"stage"})

	StorageBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devpool",
		Name:      "storage_batches_total",
		Help:      "Storage commits attempted, by result.",
	}, []string{"result"})

	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devpool",
		Name:      "sync_runs_total",
		Help:      "Completed sync passes, by result.",
	}, []string{"result"})
)
