package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/docflow/pkg/middleware"
)

func TestTrimSlash(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Path
	})
	h := middleware.TrimSlash()(next)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantPath   string
		wantLoc    string
	}{
		{"root preserved", "GET", "/", http.StatusOK, "/", ""},
		{"no slash", "GET", "/documents", http.StatusOK, "/documents", ""},
		{"get redirects", "GET", "/documents/?page=2", http.StatusMovedPermanently, "", "/documents?page=2"},
		{"put rewrites", "PUT", "/documents/abc/", http.StatusOK, "/documents/abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if seen != tt.wantPath {
				t.Errorf("path = %q, want %q", seen, tt.wantPath)
			}
			if loc := w.Header().Get("Location"); loc != tt.wantLoc {
				t.Errorf("Location = %q, want %q", loc, tt.wantLoc)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := middleware.Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/documents/x", nil))

	out := buf.String()
	for _, want := range []string{"msg=request", "method=GET", "uri=/api/documents/x", "status=404", "duration="} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestMetrics_PassesThrough(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.PathValue("id")))
	})

	w := httptest.NewRecorder()
	middleware.Metrics()(mux).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/abc", nil))

	if w.Body.String() != "abc" {
		t.Errorf("body = %q, want abc", w.Body.String())
	}
}
