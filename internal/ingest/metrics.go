package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "docflow",
	Subsystem: "ingest",
	Name:      "records_total",
	Help:      "Upload records processed, by queue and outcome.",
}, []string{"queue", "outcome"})

const outcomeRejected = "rejected"
