package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the ledger.
type Metrics struct {
	EntriesAppended  *prometheus.CounterVec
	AppendConflicts  prometheus.Counter
	VerificationRuns prometheus.Counter
	CorruptedEntries prometheus.Counter
	EntriesPublished prometheus.Counter
	PublishFailures  prometheus.Counter
}

// New creates and registers all ledger metrics.
func New() *Metrics {
	return &Metrics{
		EntriesAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_ledger_entries_appended_total",
			Help: "Total ledger entries appended, by action kind",
		}, []string{"action"}),
		AppendConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_ledger_append_conflicts_total",
			Help: "Chain-head compare-and-swap conflicts during append",
		}),
		VerificationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_ledger_verification_runs_total",
			Help: "Full-chain verification scans executed",
		}),
		CorruptedEntries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_ledger_corrupted_entries_total",
			Help: "Corrupted entries found by verification scans",
		}),
		EntriesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_ledger_entries_published_total",
			Help: "Committed entries streamed to the export topic",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_ledger_publish_failures_total",
			Help: "Failed attempts to stream entries to the export topic",
		}),
	}
}
