package api

import (
	"sync/atomic"

	"github.com/JaimeStill/docflow/internal/config"
	"github.com/JaimeStill/docflow/internal/listener"
	"github.com/JaimeStill/docflow/pkg/lifecycle"
	"golang.org/x/sync/errgroup"
)

// Listeners runs one consume loop per queue. When any loop exhausts its
// reconnect policy the rest are stopped and Ready reports false.
type Listeners struct {
	runtime   *Runtime
	listeners []*listener.Listener
	running   atomic.Bool
}

// NewListeners creates the upload listeners and, when the orchestrator is
// enabled, the saga listeners.
func NewListeners(cfg *config.Config, runtime *Runtime, domain *Domain) *Listeners {
	policy := cfg.Broker.Reconnect.Policy()
	opts := []listener.Option{
		listener.WithDeadLetters(domain.DeadLetters),
		listener.WithRedelivery(cfg.Broker.Redelivery.Policy()),
	}

	add := func(ls []*listener.Listener, queue string, h listener.Handler) []*listener.Listener {
		return append(ls, listener.New(runtime.Broker, queue, h, policy, runtime.Logger, opts...))
	}

	var ls []*listener.Listener
	for _, queue := range cfg.Ingest.Queues() {
		ls = add(ls, queue, domain.Ingest.Uploads(queue))
	}

	if domain.Sagas != nil {
		q := domain.Sagas.Queues()
		ls = add(ls, q.SaveMetadata, domain.Ingest.SaveMetadata)
		ls = add(ls, q.DocumentUploaded, domain.Sagas.HandleDocumentUploaded)
		ls = add(ls, q.StepCompleted, domain.Sagas.HandleStepCompleted)
		ls = add(ls, q.StepFailed, domain.Sagas.HandleStepFailed)
	}

	return &Listeners{runtime: runtime, listeners: ls}
}

// Queues returns the consumed queue names.
func (l *Listeners) Queues() []string {
	out := make([]string, len(l.listeners))
	for i, ls := range l.listeners {
		out[i] = ls.Queue()
	}
	return out
}

// Ready reports whether every consume loop is still running.
func (l *Listeners) Ready() bool {
	return l.running.Load()
}

// Start launches the consume loops on the lifecycle context. Shutdown waits
// for every loop to return.
func (l *Listeners) Start(lc *lifecycle.Coordinator) {
	g, ctx := errgroup.WithContext(lc.Context())
	for _, ls := range l.listeners {
		g.Go(func() error { return ls.Run(ctx) })
	}
	l.running.Store(true)

	lc.OnShutdown(func() {
		err := g.Wait()
		l.running.Store(false)
		if err != nil {
			l.runtime.Logger.Error("listeners stopped", "error", err)
			return
		}
		l.runtime.Logger.Info("listeners stopped")
	})
}

// ResumeSagas republishes pending saga steps once the broker is reachable.
// Attempts follow the saga startup retry policy; after the cap the failure
// is logged and startup continues.
func ResumeSagas(cfg *config.Config, runtime *Runtime, domain *Domain) {
	if domain.Sagas == nil {
		return
	}

	lc := runtime.Lifecycle
	lc.OnStartup(func() {
		policy := cfg.Saga.StartupRetry.Policy()
		attempt := 0

		err := policy.Do(lc.Context(), func() error {
			attempt++
			_, err := domain.Sagas.Resume(lc.Context())
			if err != nil && lc.Context().Err() == nil {
				runtime.Logger.Warn("saga resume failed", "attempt", attempt, "error", err)
			}
			return err
		})
		if err != nil && lc.Context().Err() == nil {
			runtime.Logger.Error("saga resume abandoned", "attempts", attempt, "error", err)
		}
	})
}
