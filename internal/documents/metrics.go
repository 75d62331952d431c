package documents

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	revisionsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docflow",
		Subsystem: "documents",
		Name:      "revisions_total",
		Help:      "Document revisions appended, by operation.",
	}, []string{"operation"})

	revisionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docflow",
		Subsystem: "documents",
		Name:      "revision_conflicts_total",
		Help:      "Revision allocations lost to a concurrent writer and retried.",
	})
)
