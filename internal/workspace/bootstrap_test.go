package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lemonjerome/low-cortisol-html/internal/actionlog"
)

func TestValidateProjectNameRequiresPrefix(t *testing.T) {
	if err := ValidateProjectName("my_app", "lch_"); err == nil {
		t.Fatalf("expected error for missing prefix")
	}
	if err := ValidateProjectName("lch_my_app", "lch_"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateProjectName("lch_", "lch_"); err == nil {
		t.Fatalf("expected error for bare prefix with no suffix")
	}
}

func TestEnsureWorkspaceCreatesDirs(t *testing.T) {
	rootsDir := t.TempDir()
	result, err := EnsureWorkspace(rootsDir, "lch_demo", "lch_")
	if err != nil {
		t.Fatalf("EnsureWorkspace: %v", err)
	}
	if len(result.Created) != 2 {
		t.Fatalf("expected root and log dir created, got %v", result.Created)
	}
	if _, err := os.Stat(filepath.Join(result.Root, actionlog.DirName)); err != nil {
		t.Fatalf("expected action log dir to exist: %v", err)
	}

	second, err := EnsureWorkspace(rootsDir, "lch_demo", "lch_")
	if err != nil {
		t.Fatalf("second EnsureWorkspace: %v", err)
	}
	if len(second.Created) != 0 || len(second.Existed) != 2 {
		t.Fatalf("expected idempotent second call, got %+v", second)
	}
}

func TestListProjectsFiltersByPrefix(t *testing.T) {
	rootsDir := t.TempDir()
	_ = os.Mkdir(filepath.Join(rootsDir, "lch_one"), 0o755)
	_ = os.Mkdir(filepath.Join(rootsDir, "other"), 0o755)

	names, err := ListProjects(rootsDir, "lch_")
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(names) != 1 || names[0] != "lch_one" {
		t.Fatalf("expected only lch_one, got %v", names)
	}
}
