// Package api assembles the document and saga systems into the HTTP module
// and the queue listeners of the service.
package api

import (
	"net/http"

	"github.com/JaimeStill/docflow/internal/config"
	"github.com/JaimeStill/docflow/pkg/middleware"
	"github.com/JaimeStill/docflow/pkg/module"
)

// NewModule creates the API module mounted at cfg.API.BasePath.
func NewModule(cfg *config.Config, runtime *Runtime, domain *Domain) *module.Module {
	mux := http.NewServeMux()
	registerRoutes(mux, runtime, domain)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.TrimSlash())
	m.Use(middleware.Metrics())
	m.Use(middleware.Logger(runtime.Logger))

	return m
}
