package projectmemory

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch adds an fsnotify watcher over every non-ignored directory under
// m.Root and calls onChange whenever a file is created, written, renamed,
// or removed. This is purely additive to Refresh's own mtime/size check:
// a caller can use it to trigger an out-of-cycle Refresh the moment a tool
// call writes a file, instead of waiting for the next poll. Watch blocks
// until ctx is done or the underlying watcher fails to start; callers run
// it in its own goroutine.
func (m *Memory) Watch(ctx context.Context, onChange func(rel string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	_ = filepath.WalkDir(m.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(m.Root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && isIgnored(rel) {
			return filepath.SkipDir
		}
		_ = watcher.Add(path)
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 && isProbablyDir(event.Name) {
				_ = watcher.Add(event.Name)
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, err := filepath.Rel(m.Root, event.Name)
			if err != nil || isIgnored(rel) {
				continue
			}
			if onChange != nil {
				onChange(rel)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			_ = err
		}
	}
}

func isProbablyDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
