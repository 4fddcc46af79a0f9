package projectmemory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReportsFileWrite(t *testing.T) {
	root := t.TempDir()
	m := New(root, "mock-embed", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	changed := make(chan string, 4)
	go func() {
		_ = m.Watch(ctx, func(rel string) { changed <- rel })
	}()

	// give the watcher a moment to install its directory watch before we write
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(root, "index.html")
	if err := os.WriteFile(path, []byte("<html></html>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case rel := <-changed:
		if rel != "index.html" {
			t.Fatalf("expected index.html, got %q", rel)
		}
	case <-time.After(1500 * time.Millisecond):
		t.Fatalf("timed out waiting for a watch event")
	}
}
