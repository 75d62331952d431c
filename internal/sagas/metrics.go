package sagas

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sagasStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docflow",
		Subsystem: "sagas",
		Name:      "started_total",
		Help:      "Upload sagas started.",
	})

	sagasFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docflow",
		Subsystem: "sagas",
		Name:      "finished_total",
		Help:      "Upload sagas reaching a terminal status.",
	}, []string{"status"})

	stepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docflow",
		Subsystem: "sagas",
		Name:      "step_transitions_total",
		Help:      "Saga steps leaving pending, by service and status.",
	}, []string{"service", "status"})
)
