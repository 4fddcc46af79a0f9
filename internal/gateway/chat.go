package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/lemonjerome/low-cortisol-html/internal/actionlog"
	"github.com/lemonjerome/low-cortisol-html/internal/loop"
	"github.com/lemonjerome/low-cortisol-html/internal/planner"
	"github.com/lemonjerome/low-cortisol-html/internal/projectmemory"
	"github.com/lemonjerome/low-cortisol-html/internal/reranker"
	"github.com/lemonjerome/low-cortisol-html/internal/sandbox"
	"github.com/lemonjerome/low-cortisol-html/internal/toolcache"
	"github.com/lemonjerome/low-cortisol-html/internal/toolhost"
)

// wireEvent is the NDJSON wire shape every event line carries: the
// Controller's internal Event plus a "done" terminal marker.
type wireEvent struct {
	Type  string         `json:"type"`
	Stage string         `json:"stage,omitempty"`
	Text  string         `json:"text,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// handleChat streams one end-to-end run of the staged pipeline as
// NDJSON: one JSON object per line, flushed as it's produced, terminated
// by a "done" event. Only one run may be in flight at a time.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Project string `json:"project"`
		Task    string `json:"task"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	s.mu.Lock()
	if s.runInFlight {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]any{"error": "a run is already in flight"})
		return
	}
	s.runInFlight = true
	ctx, cancel := context.WithCancel(r.Context())
	s.cancelRun = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.runInFlight = false
		s.cancelRun = nil
		s.mu.Unlock()
		cancel()
	}()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)
	emit := func(e wireEvent) {
		_ = encoder.Encode(e)
		if flusher != nil {
			flusher.Flush()
		}
	}

	root := filepath.Join(s.Config.Workspace.RootsDir, body.Project)
	resolvedRoot, err := sandbox.ResolveWorkspaceRoot(root)
	if err != nil {
		emit(wireEvent{Type: "error", Text: err.Error()})
		emit(wireEvent{Type: "done"})
		return
	}

	controller, alog, err := s.buildController(resolvedRoot, func(e loop.Event) {
		emit(wireEvent{Type: e.Type, Stage: e.Stage, Text: e.Text, Data: e.Data})
	})
	if err != nil {
		emit(wireEvent{Type: "error", Text: err.Error()})
		emit(wireEvent{Type: "done"})
		return
	}
	if alog != nil {
		defer alog.Close()
	}

	result, err := controller.Run(ctx, body.Task)
	if err != nil {
		if ctx.Err() != nil {
			emit(wireEvent{Type: "stopped", Text: "run cancelled"})
		} else {
			emit(wireEvent{Type: "error", Text: err.Error()})
		}
		emit(wireEvent{Type: "done"})
		return
	}

	if store, serr := s.runStoreFor(resolvedRoot); serr == nil {
		if _, rerr := store.Record(body.Task, result); rerr != nil {
			s.Logger.Warn("record run failed", "error", rerr)
		}
	} else {
		s.Logger.Warn("open run store failed", "error", serr)
	}

	if result.StoppedReason != "completed" {
		emit(wireEvent{Type: "stopped", Text: humanReadableStopReason(result.StoppedReason)})
	}

	emit(wireEvent{Type: "chat_final", Text: result.Summary, Data: map[string]any{
		"stopped_reason":    result.StoppedReason,
		"iterations_run":    result.IterationsRun,
		"substantive_edits": result.SubstantiveEdits,
	}})
	emit(wireEvent{Type: "done"})
}

// humanReadableStopReason renders a Result.StoppedReason code as the
// human-readable message the stopped event carries.
func humanReadableStopReason(reason string) string {
	switch reason {
	case "no_progress":
		return "stopped: no forward progress across consecutive iterations"
	case "stop_prefix":
		return "stopped: the agent signaled it could not continue"
	case "max_iterations":
		return "stopped: reached the maximum iteration budget"
	case "transport_error":
		return "stopped: a tool or model transport error occurred"
	default:
		return "stopped: " + reason
	}
}

func (s *Server) buildController(root string, onEvent loop.EventSink) (*loop.Controller, *actionlog.Logger, error) {
	sb := sandbox.New(root)

	tools, err := toolhost.BuildCatalog(sb)
	if err != nil {
		return nil, nil, fmt.Errorf("build tool catalog: %w", err)
	}

	cachePath := filepath.Join(root, ".low-cortisol-html-logs", "tool_embeddings.json")
	cache, err := toolcache.Load(cachePath, s.Config.LLM.EmbeddingModel, s.Client)
	if err != nil {
		return nil, nil, fmt.Errorf("load tool embedding cache: %w", err)
	}

	projectMem := projectmemory.New(root, s.Config.LLM.EmbeddingModel, s.Client)

	pl := planner.New(s.Client, s.Config.LLM.ChatModel, s.Config.FastMode)
	rr := reranker.New(s.Client, s.Config.LLM.ChatModel)

	alog, err := actionlog.Open(root)
	if err != nil {
		return nil, nil, fmt.Errorf("open action log: %w", err)
	}

	ctrl := loop.New(root, tools, cache, projectMem, pl, rr, s.Client, s.Config.LLM.ChatModel)
	ctrl.TopKTools = s.Config.Loop.TopKTools
	ctrl.CandidatePoolSize = s.Config.Loop.CandidatePoolSize
	ctrl.MaxLoops = s.Config.Loop.MaxLoops
	ctrl.MinIterations = s.Config.Loop.MinBuildIterations
	ctrl.CompletionPrefix = s.Config.Loop.CompletionPrefix
	ctrl.StopPrefix = s.Config.Loop.StopPrefix
	ctrl.ActionLog = alog
	ctrl.OnEvent = onEvent

	return ctrl, alog, nil
}

// handleWorkspaceFile proxies a read-only view of files inside the active
// project's workspace, for the browser preview pane.
func (s *Server) handleWorkspaceFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	project := s.activeProject
	s.mu.Unlock()
	if project == "" {
		http.Error(w, "no project is open", http.StatusBadRequest)
		return
	}
	root := filepath.Join(s.Config.Workspace.RootsDir, project)
	resolvedRoot, err := sandbox.ResolveWorkspaceRoot(root)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rel := r.URL.Path[len("/workspace/"):]
	full, err := sandbox.ResolvePathInWorkspace(resolvedRoot, rel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, full)
}
