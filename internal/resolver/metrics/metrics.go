package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for identity and document resolution.
type Metrics struct {
	ClientsCreated      prometheus.Counter
	ClientsMatched      *prometheus.CounterVec
	CasesCreated        prometheus.Counter
	DocumentsIngested   prometheus.Counter
	DocumentsDeduped    prometheus.Counter
	IdentityCreateRaces prometheus.Counter
}

// New creates and registers all resolver metrics.
func New() *Metrics {
	return &Metrics{
		ClientsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_resolver_clients_created_total",
			Help: "New client identities created",
		}),
		ClientsMatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_resolver_clients_matched_total",
			Help: "Incoming records matched to an existing client, by method",
		}, []string{"method"}),
		CasesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_resolver_cases_created_total",
			Help: "New cases created by association",
		}),
		DocumentsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_resolver_documents_ingested_total",
			Help: "Documents newly ingested",
		}),
		DocumentsDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_resolver_documents_deduplicated_total",
			Help: "Byte-identical re-ingestions skipped",
		}),
		IdentityCreateRaces: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docket_resolver_identity_create_races_total",
			Help: "Client creations lost to a concurrent insert and re-resolved",
		}),
	}
}
