package runstore

import (
	"path/filepath"
	"testing"

	"github.com/lemonjerome/low-cortisol-html/internal/loop"
)

func TestRecordAndRecentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	result := &loop.Result{
		Ok:               true,
		Summary:          "built a todo app",
		IterationsRun:    3,
		StoppedReason:    "completed",
		SubstantiveEdits: 5,
		ValidationRuns:   1,
		TestRuns:         1,
	}
	id, err := store.Record("build a todo app", result)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if id == "" {
		t.Fatalf("expected a non-empty run id")
	}

	runs, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].ID != id || !runs[0].Ok || runs[0].Task != "build a todo app" {
		t.Fatalf("unexpected run row: %+v", runs[0])
	}
}

func TestOpenDefaultsToInMemory(t *testing.T) {
	store, err := Open("")
	if err != nil {
		t.Fatalf("Open(\"\") error = %v", err)
	}
	defer store.Close()
	runs, err := store.Recent(5)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs in a fresh in-memory store")
	}
}
