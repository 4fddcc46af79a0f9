// Package gateway is the Stream Gateway: an HTTP surface that bootstraps
// project workspaces and drives the Loop Controller for a task, relaying
// its progress as a newline-delimited JSON (NDJSON) event stream to the
// browser front end. Only one run is in flight at a time.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lemonjerome/low-cortisol-html/internal/actionlog"
	"github.com/lemonjerome/low-cortisol-html/internal/config"
	"github.com/lemonjerome/low-cortisol-html/internal/llm"
	"github.com/lemonjerome/low-cortisol-html/internal/runstore"
	"github.com/lemonjerome/low-cortisol-html/internal/workspace"
)

// Server is the Stream Gateway's HTTP server and run-state.
type Server struct {
	Config *config.Config
	Client llm.Client
	Logger *slog.Logger

	mu            sync.Mutex
	runInFlight   bool
	cancelRun     context.CancelFunc
	activeProject string
	runStores     map[string]*runstore.Store

	httpServer   *http.Server
	httpListener net.Listener
}

// New builds a Server bound to cfg and client. A nil logger defaults to
// a JSON handler over a writer that discards all output.
func New(cfg *config.Config, client llm.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(nilWriter{}, nil))
	}
	return &Server{Config: cfg, Client: client, Logger: logger, runStores: map[string]*runstore.Store{}}
}

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) { return len(p), nil }

// Start binds the HTTP server and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Config.Gateway.Host, s.Config.Gateway.Port)
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.Logger.Error("gateway server error", "error", err)
		}
	}()
	s.Logger.Info("gateway listening", "addr", addr)
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.Logger.Warn("gateway shutdown error", "error", err)
	}

	s.mu.Lock()
	for _, store := range s.runStores {
		store.Close()
	}
	s.runStores = map[string]*runstore.Store{}
	s.mu.Unlock()
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/set-workspaces-root", s.handleSetWorkspacesRoot)
	mux.HandleFunc("/api/create-project", s.handleCreateProject)
	mux.HandleFunc("/api/open-project", s.handleOpenProject)
	mux.HandleFunc("/api/open-main-html", s.handleOpenMainHTML)
	mux.HandleFunc("/api/clear-chat", s.handleClearChat)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/workspace/", s.handleWorkspaceFile)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"run_in_flight":  s.runInFlight,
		"active_project": s.activeProject,
		"workspace_root": s.Config.Workspace.RootsDir,
	})
}

func (s *Server) handleSetWorkspacesRoot(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	s.mu.Lock()
	s.Config.Workspace.RootsDir = body.Path
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "workspace_root": body.Path})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	result, err := workspace.EnsureWorkspace(s.Config.Workspace.RootsDir, body.Name, s.Config.Workspace.NamePrefix)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "root": result.Root, "created": result.Created})
}

func (s *Server) handleOpenProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if err := workspace.ValidateProjectName(body.Name, s.Config.Workspace.NamePrefix); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	s.mu.Lock()
	s.activeProject = body.Name
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "project": body.Name})
}

func (s *Server) handleOpenMainHTML(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	project := s.activeProject
	s.mu.Unlock()
	if project == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no project is open"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": "/workspace/index.html"})
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "stopped": s.runInFlight})
}

// handleRuns returns the persisted run ledger for the active project.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	project := s.activeProject
	s.mu.Unlock()
	if project == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no project is open"})
		return
	}
	root := filepath.Join(s.Config.Workspace.RootsDir, project)
	store, err := s.runStoreFor(root)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	runs, err := store.Recent(50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "runs": runs})
}

// runStoreFor returns the cached run store for root, opening it on first use.
func (s *Server) runStoreFor(root string) (*runstore.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.runStores[root]; ok {
		return store, nil
	}
	path := filepath.Join(root, actionlog.DirName, "runs.db")
	store, err := runstore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	s.runStores[root] = store
	return store, nil
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
