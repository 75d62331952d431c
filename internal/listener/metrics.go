package listener

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docflow",
		Subsystem: "listener",
		Name:      "deliveries_total",
		Help:      "Messages handled, by queue and outcome.",
	}, []string{"queue", "outcome"})

	handleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docflow",
		Subsystem: "listener",
		Name:      "handle_duration_seconds",
		Help:      "Time spent handling one message.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"queue"})

	reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docflow",
		Subsystem: "listener",
		Name:      "reconnects_total",
		Help:      "Subscription attempts that failed or were lost.",
	}, []string{"queue"})

	connected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "docflow",
		Subsystem: "listener",
		Name:      "connected",
		Help:      "1 while the queue has a live subscription.",
	}, []string{"queue"})

	deadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docflow",
		Subsystem: "listener",
		Name:      "dead_letters_total",
		Help:      "Messages and records published to a dead-letter subject.",
	}, []string{"queue"})
)
