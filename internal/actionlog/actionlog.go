// Package actionlog appends one JSON line per tool call to the workspace's
// action log, independent of the orchestrator's own event stream.
package actionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// DirName and FileName locate the action log within a workspace.
const (
	DirName  = ".low-cortisol-html-logs"
	FileName = "tool_actions.log"
)

// Logger appends action records to one workspace's log file.
type Logger struct {
	mu   sync.Mutex
	path string
	file *os.File
}

type record struct {
	TimestampUTC string         `json:"timestamp_utc"`
	Stage        string         `json:"stage,omitempty"`
	Tool         string         `json:"tool"`
	Arguments    map[string]any `json:"arguments"`
	ResultOk     bool           `json:"result_ok"`
	Result       map[string]any `json:"result,omitempty"`
}

// Open creates (or appends to) the action log under workspaceRoot.
func Open(workspaceRoot string) (*Logger, error) {
	dir := filepath.Join(workspaceRoot, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create action log dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open action log: %w", err)
	}
	return &Logger{path: path, file: f}, nil
}

// Record appends one JSON line describing a completed tool call.
func (l *Logger) Record(stage, tool string, args map[string]any, result models.ToolResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := record{
		TimestampUTC: nowUTC(),
		Stage:        stage,
		Tool:         tool,
		Arguments:    args,
		ResultOk:     result.Ok,
		Result:       result.Result,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action log record: %w", err)
	}
	raw = append(raw, '\n')
	_, err = l.file.Write(raw)
	return err
}

// Close releases the underlying file handle.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

var nowUTC = func() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
