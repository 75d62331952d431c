package main

import (
	"net/http"

	"github.com/JaimeStill/docflow/pkg/lifecycle"
	"github.com/JaimeStill/docflow/pkg/module"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func registerProbes(router *module.Router, checks ...lifecycle.ReadinessChecker) {
	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.HandleNative("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, c := range checks {
			if !c.Ready() {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("NOT READY"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	})

	router.Handle("GET /metrics", promhttp.Handler())
}
