package documents_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/docflow/internal/documents"
	"github.com/JaimeStill/docflow/pkg/logging"
	"github.com/JaimeStill/docflow/pkg/pagination"
	"github.com/JaimeStill/docflow/pkg/routes"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMux() *http.ServeMux {
	sys := newSystem(documents.NewMemoryStore())
	h := documents.NewHandler(sys, logging.Discard(), pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}, 1<<20)

	mux := http.NewServeMux()
	routes.Register(mux, h.Routes())
	return mux
}

func do(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

const createBody = `{
	"file_name": "a.pdf",
	"file_size": 2048,
	"file_type": "application/pdf",
	"user_id": "7f1c2c8e-3a55-4a5e-9c1a-0a4b1b1f6d10",
	"storage_path": "documents/a.pdf",
	"version": 1,
	"checksum": "sha256:abc",
	"document_type": "manual",
	"acl": {"read": ["alice"], "write": []}
}`

func TestHandler_Lifecycle(t *testing.T) {
	mux := newMux()

	rec := do(t, mux, http.MethodPost, "/documents", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[documents.Document](t, rec)
	assert.Equal(t, 1, created.Revision)

	base := "/documents/" + created.DocumentID.String()

	rec = do(t, mux, http.MethodPut, base, `{"description": "v2", "revision": 99, "is_deleted": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[documents.Document](t, rec)
	assert.Equal(t, 2, updated.Revision)
	assert.False(t, updated.IsDeleted)

	rec = do(t, mux, http.MethodDelete, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[documents.Document](t, rec).IsDeleted)

	rec = do(t, mux, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodGet, base+"?include_deleted=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[documents.Document](t, rec).Revision)

	rec = do(t, mux, http.MethodGet, base+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]documents.Document](t, rec)
	require.Len(t, history, 3)
	assert.Equal(t, 3, history[0].Revision)
}

func TestHandler_Errors(t *testing.T) {
	mux := newMux()
	missing := "/documents/" + uuid.NewString()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"invalid id", http.MethodGet, "/documents/not-a-uuid", "", http.StatusBadRequest},
		{"unknown document", http.MethodGet, missing, "", http.StatusNotFound},
		{"empty history", http.MethodGet, missing + "/history", "", http.StatusNotFound},
		{"update unknown", http.MethodPut, missing, `{"description": "x"}`, http.StatusNotFound},
		{"delete unknown", http.MethodDelete, missing, "", http.StatusNotFound},
		{"create missing fields", http.MethodPost, "/documents", `{"file_name": "a.pdf"}`, http.StatusBadRequest},
		{"create scalar acl", http.MethodPost, "/documents", strings.Replace(createBody, `{"read": ["alice"], "write": []}`, `"public"`, 1), http.StatusBadRequest},
		{"create array body", http.MethodPost, "/documents", `[]`, http.StatusBadRequest},
		{"create malformed json", http.MethodPost, "/documents", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			body := decode[map[string]string](t, rec)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandler_List(t *testing.T) {
	mux := newMux()

	for range 3 {
		rec := do(t, mux, http.MethodPost, "/documents", createBody)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, mux, http.MethodGet, "/documents?page_size=2&document_type=manual", "")
	require.Equal(t, http.StatusOK, rec.Code)

	page := decode[pagination.PageResult[documents.Document]](t, rec)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Data, 2)
}
