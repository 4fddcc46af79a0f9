package projectmemory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lemonjerome/low-cortisol-html/internal/llm"
)

func TestRefreshAndRetrieve(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<html><body>Hello</body></html>"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "node_modules", "x"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "node_modules", "x", "ignored.js"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write ignored fixture: %v", err)
	}

	mock := llm.NewMockClient("DONE:")
	mem := New(root, "mock-embed", mock)
	if err := mem.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, ok := mem.snapshots["node_modules/x/ignored.js"]; ok {
		t.Fatalf("node_modules should be ignored")
	}
	if _, ok := mem.snapshots["index.html"]; !ok {
		t.Fatalf("expected index.html to be indexed")
	}

	hits, err := mem.Retrieve(context.Background(), "hello page", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected at least one hit")
	}
}

func TestRefreshReusesUnchangedSnapshot(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "app.js")
	if err := os.WriteFile(path, []byte("console.log('hi')"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	mock := llm.NewMockClient("DONE:")
	mem := New(root, "mock-embed", mock)
	if err := mem.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	first := mem.snapshots["app.js"]

	if err := mem.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	second := mem.snapshots["app.js"]
	if first.ChangeCount != second.ChangeCount {
		t.Fatalf("unchanged file should not be re-embedded: %d vs %d", first.ChangeCount, second.ChangeCount)
	}
}

func TestMarkTouchedBoostsScore(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha content"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	mock := llm.NewMockClient("DONE:")
	mem := New(root, "mock-embed", mock)
	if err := mem.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for i := 0; i < 10; i++ {
		mem.MarkTouched("a.txt")
	}
	snap := mem.snapshots["a.txt"]
	if snap.TouchedCount != 10 {
		t.Fatalf("expected touched count 10, got %d", snap.TouchedCount)
	}
}
