package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lemonjerome/low-cortisol-html/internal/config"
	"github.com/lemonjerome/low-cortisol-html/internal/llm"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Workspace.RootsDir = root
	cfg.Workspace.NamePrefix = "lch_"
	cfg.LLM.ChatModel = "mock-chat"
	cfg.LLM.EmbeddingModel = "mock-embed"
	cfg.Loop.TopKTools = 4
	cfg.Loop.CandidatePoolSize = 8
	cfg.Loop.MaxLoops = 2
	cfg.FastMode = true
	return New(cfg, llm.NewMockClient("DONE:"), nil)
}

func TestHandleCreateProjectRejectsBadName(t *testing.T) {
	s := testServer(t)
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	body, _ := json.Marshal(map[string]string{"name": "not_prefixed"})
	req := httptest.NewRequest("POST", "/api/create-project", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 for a non-lch_ project name, got %d", rec.Code)
	}
}

func TestHandleCreateProjectSucceeds(t *testing.T) {
	s := testServer(t)
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	body, _ := json.Marshal(map[string]string{"name": "lch_demo"})
	req := httptest.NewRequest("POST", "/api/create-project", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleStatusReportsNoRunInFlight(t *testing.T) {
	s := testServer(t)
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["run_in_flight"] != false {
		t.Fatalf("expected run_in_flight=false, got %+v", resp)
	}
}
