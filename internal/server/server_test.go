package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"sitebook/internal/classifier"
	"sitebook/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	s, err := NewServer(cfg, filepath.Join(t.TempDir(), "data"), zap.NewNop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func TestServer_StatusAndCORS(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"database":"sqlite3"`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("cors header=%q", got)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/imports", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status=%d, want 204", w.Code)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown route status=%d, want 404", w.Code)
	}
}

func TestNewRefiner_FallsBackWithoutKey(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig().Classifier
	cfg.Enabled = true
	if _, ok := newRefiner(cfg, zap.NewNop()).(classifier.Noop); !ok {
		t.Fatalf("expected noop refiner without api key")
	}
	cfg.APIKey = "sk-test"
	if r := newRefiner(cfg, zap.NewNop()); !r.Enabled() {
		t.Fatalf("expected llm refiner with api key")
	}
}
