package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for reasoning workspaces.
type Metrics struct {
	WorkspacesCreated prometheus.Counter
	Transitions       *prometheus.CounterVec
	FactsAdded        *prometheus.CounterVec
	MutationsRejected *prometheus.CounterVec
	MutationConflicts prometheus.Counter
	ActionsExecuted   prometheus.Counter
}

// New creates and registers all workspace metrics.
func New() *Metrics {
	return &Metrics{
		WorkspacesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_workspace_created_total",
			Help: "Reasoning workspaces created",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_workspace_transitions_total",
			Help: "State transitions applied, by from-state and event",
		}, []string{"from", "event"}),
		FactsAdded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_workspace_facts_added_total",
			Help: "Facts recorded, by provenance",
		}, []string{"provenance"}),
		MutationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_workspace_mutations_rejected_total",
			Help: "Mutations rejected before any write, by reason",
		}, []string{"reason"}),
		MutationConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_workspace_mutation_conflicts_total",
			Help: "Version conflicts between concurrent mutations of one workspace",
		}),
		ActionsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_workspace_actions_executed_total",
			Help: "Proposed actions marked executed",
		}),
	}
}
