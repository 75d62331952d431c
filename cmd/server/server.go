package main

import (
	"time"

	"github.com/JaimeStill/docflow/internal/api"
	"github.com/JaimeStill/docflow/internal/config"
	"github.com/JaimeStill/docflow/internal/infrastructure"
	"github.com/JaimeStill/docflow/internal/server"
	"github.com/JaimeStill/docflow/pkg/module"
)

// Server coordinates the lifecycle of all subsystems.
type Server struct {
	cfg       *config.Config
	infra     *infrastructure.Infrastructure
	runtime   *api.Runtime
	domain    *api.Domain
	listeners *api.Listeners
	http      server.System
}

// NewServer creates and initializes the service with all subsystems.
func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	runtime := api.NewRuntime(cfg, infra)
	domain := api.NewDomain(cfg, runtime)
	listeners := api.NewListeners(cfg, runtime, domain)

	router := module.NewRouter()
	registerProbes(router, infra, listeners)
	router.Mount(api.NewModule(cfg, runtime, domain))

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
		"store", cfg.Store.Backend,
		"broker", cfg.Broker.Driver,
		"saga", cfg.Saga.IsEnabled(),
	)

	return &Server{
		cfg:       cfg,
		infra:     infra,
		runtime:   runtime,
		domain:    domain,
		listeners: listeners,
		http:      server.New(&cfg.Server, router, infra.Logger),
	}, nil
}

// Start begins all subsystems and returns once they are launched. Readiness
// follows when startup hooks finish.
func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}

	s.listeners.Start(s.infra.Lifecycle)
	api.ResumeSagas(s.cfg, s.runtime, s.domain)

	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("all subsystems ready")
	}()

	return nil
}

// Shutdown gracefully stops all subsystems within timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Lifecycle.Shutdown(timeout)
}
