// Package workspace creates and validates project workspace directories:
// the lch_-prefixed project root and its action-log directory.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lemonjerome/low-cortisol-html/internal/actionlog"
)

// BootstrapResult captures what EnsureWorkspace created versus what
// already existed.
type BootstrapResult struct {
	Root    string
	Created []string
	Existed []string
}

// ValidateProjectName enforces the hard lch_ naming precondition: a
// project directory name that does not start with prefix is rejected
// before any directory is touched.
func ValidateProjectName(name, prefix string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("project name is required")
	}
	if !strings.HasPrefix(trimmed, prefix) {
		return fmt.Errorf("project name %q must start with %q", trimmed, prefix)
	}
	if trimmed == prefix {
		return fmt.Errorf("project name %q must have a suffix after %q", trimmed, prefix)
	}
	return nil
}

// EnsureWorkspace creates rootsDir/name (validated against prefix) and
// its .low-cortisol-html-logs action-log directory, returning the
// resolved root and what was newly created.
func EnsureWorkspace(rootsDir, name, prefix string) (BootstrapResult, error) {
	result := BootstrapResult{}
	if err := ValidateProjectName(name, prefix); err != nil {
		return result, err
	}

	root := filepath.Join(rootsDir, name)
	result.Root = root

	if _, err := os.Stat(root); err == nil {
		result.Existed = append(result.Existed, root)
	} else if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(root, 0o755); mkErr != nil {
			return result, fmt.Errorf("create workspace root: %w", mkErr)
		}
		result.Created = append(result.Created, root)
	} else {
		return result, fmt.Errorf("stat workspace root: %w", err)
	}

	logDir := filepath.Join(root, actionlog.DirName)
	if _, err := os.Stat(logDir); err == nil {
		result.Existed = append(result.Existed, logDir)
	} else if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(logDir, 0o755); mkErr != nil {
			return result, fmt.Errorf("create action log dir: %w", mkErr)
		}
		result.Created = append(result.Created, logDir)
	} else {
		return result, fmt.Errorf("stat action log dir: %w", err)
	}

	return result, nil
}

// ListProjects returns the lch_-prefixed directory names directly under
// rootsDir, for the Stream Gateway's project picker.
func ListProjects(rootsDir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(rootsDir)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
