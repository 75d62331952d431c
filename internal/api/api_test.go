package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/docflow/internal/api"
	"github.com/JaimeStill/docflow/internal/config"
	"github.com/JaimeStill/docflow/internal/documents"
	"github.com/JaimeStill/docflow/internal/infrastructure"
	"github.com/JaimeStill/docflow/internal/sagas"
	"github.com/JaimeStill/docflow/pkg/broker"
	"github.com/JaimeStill/docflow/pkg/module"
	"github.com/JaimeStill/docflow/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	cfg       *config.Config
	infra     *infrastructure.Infrastructure
	domain    *api.Domain
	listeners *api.Listeners
	server    *httptest.Server
}

func newStack(t *testing.T, sagaEnabled bool) *stack {
	t.Helper()

	cfg := &config.Config{}
	cfg.Store.Backend = config.BackendMemory
	cfg.Broker.Driver = broker.DriverMemory
	cfg.Saga.Enabled = &sagaEnabled
	require.NoError(t, cfg.Finalize())

	infra, err := infrastructure.New(cfg)
	require.NoError(t, err)
	require.NoError(t, infra.Start())

	runtime := api.NewRuntime(cfg, infra)
	domain := api.NewDomain(cfg, runtime)
	listeners := api.NewListeners(cfg, runtime, domain)
	listeners.Start(infra.Lifecycle)

	router := module.NewRouter()
	router.Mount(api.NewModule(cfg, runtime, domain))
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		require.NoError(t, infra.Lifecycle.Shutdown(5*time.Second))
	})

	return &stack{cfg: cfg, infra: infra, domain: domain, listeners: listeners, server: server}
}

func (s *stack) request(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

const upload = `{
	"source": "storage-service",
	"idempotency_key": "upload-1",
	"brand": "Acme",
	"business_unit": "Pumps",
	"document_title": "Install Guide",
	"revision": "A",
	"bucket": "docs",
	"object_key": "manuals/install.pdf",
	"content_type": "application/pdf",
	"size_bytes": 4096,
	"checksum": "sha256:abc",
	"uploader_id": "7f1c2c8e-3a55-4a5e-9c1a-0a4b1b1f6d10",
	"upload_timestamp": "2024-03-01T10:00:00Z",
	"document_type": "manual"
}`

func TestListeners_Queues(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{"uploads.document", "uploads.bulk"},
		newStack(t, false).listeners.Queues())

	assert.ElementsMatch(t,
		[]string{
			"uploads.document", "uploads.bulk",
			"saga.save_metadata", "saga.document_uploaded", "saga.step.completed", "saga.step.failed",
		},
		newStack(t, true).listeners.Queues())
}

func TestUploadQueue_AppliesOnce(t *testing.T) {
	s := newStack(t, false)
	ctx := context.Background()

	require.NoError(t, s.infra.Broker.Publish(ctx, s.cfg.Ingest.DocumentQueue, []byte(upload)))
	require.NoError(t, s.infra.Broker.Publish(ctx, s.cfg.Ingest.DocumentQueue, []byte(upload)))

	mem := s.infra.Broker.(interface{ Pending(string) int })
	require.Eventually(t, func() bool {
		return mem.Pending(s.cfg.Ingest.DocumentQueue) == 0
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		page, err := s.domain.Documents.List(ctx, pagination.PageRequest{Page: 1, PageSize: 10}, documents.Filters{})
		return err == nil && page.Total == 1
	}, 5*time.Second, 10*time.Millisecond)

	resp, body := s.request(t, http.MethodGet, "/api/documents", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "install.pdf")
}

func TestSagaRoutes(t *testing.T) {
	s := newStack(t, true)

	resp, body := s.request(t, http.MethodPost, "/api/sagas", `{"document": `+upload+`}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var saga sagas.Saga
	require.NoError(t, json.Unmarshal(body, &saga))

	require.Eventually(t, func() bool {
		got, err := s.domain.Sagas.Find(context.Background(), saga.ID)
		return err == nil && len(got.Steps) == 3
	}, 5*time.Second, 10*time.Millisecond)

	resp, body = s.request(t, http.MethodGet, "/api/sagas/"+saga.ID.String(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), sagas.ServiceSearch)
}

func TestSagaRoutes_Disabled(t *testing.T) {
	s := newStack(t, false)

	resp, _ := s.request(t, http.MethodPost, "/api/sagas", `{"document": {}}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
