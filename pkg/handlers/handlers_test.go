package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/docflow/pkg/handlers"
)

func TestRespondJSON(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.RespondJSON(w, http.StatusCreated, map[string]int{"revision": 1})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}
	if !strings.Contains(w.Body.String(), `"revision":1`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	w := httptest.NewRecorder()
	handlers.RespondError(w, logger, http.StatusNotFound, errors.New("document not found"))

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "document not found" {
		t.Errorf("error = %q", body["error"])
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("log = %s, want warn level for 404", buf.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		max     int64
		wantErr bool
	}{
		{"valid", `{"description":"v2"}`, 0, false},
		{"malformed", `{"description":`, 0, true},
		{"too large", `{"description":"0123456789"}`, 8, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPut, "/documents/x", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			var dst map[string]any
			err := handlers.DecodeJSON(w, r, tt.max, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, handlers.ErrBadRequest) {
				t.Errorf("DecodeJSON() error = %v, want ErrBadRequest", err)
			}
		})
	}
}
