package loop

import (
	"testing"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

func TestResolveToolNameAliases(t *testing.T) {
	cases := map[string]string{
		"edit_file":    "create_file",
		"write_file":   "create_file",
		"save_file":    "create_file",
		"open_file":    "read_file",
		"view_file":    "read_file",
		"list_files":   "list_directory",
		"create_file":  "create_file",
		"totally_odd":  "totally_odd",
	}
	for in, want := range cases {
		if got := ResolveToolName(in); got != want {
			t.Errorf("ResolveToolName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeArgumentsRewritesFilePath(t *testing.T) {
	out := NormalizeArguments("create_file", map[string]any{"file_path": "./foo.txt"})
	if out["relative_path"] != "foo.txt" {
		t.Fatalf("expected relative_path to be rewritten, got %+v", out)
	}
	if _, has := out["file_path"]; has {
		t.Fatalf("expected file_path to be removed")
	}
	if overwrite, _ := out["overwrite"].(bool); !overwrite {
		t.Fatalf("expected overwrite to default true for create_file")
	}
}

func TestNormalizeArgumentsStripsWorkspacePrefix(t *testing.T) {
	out := NormalizeArguments("read_file", map[string]any{"relative_path": "/workspace/index.html"})
	if out["relative_path"] != "index.html" {
		t.Fatalf("expected workspace prefix stripped, got %+v", out)
	}
}

func TestNormalizeToolCallsDedupes(t *testing.T) {
	calls := []models.ToolCallRequest{
		{Name: "edit_file", Arguments: map[string]any{"file_path": "a.txt", "content": "x"}},
		{Name: "create_file", Arguments: map[string]any{"relative_path": "a.txt", "content": "x", "overwrite": true}},
	}
	out := NormalizeToolCalls(calls)
	if len(out) != 1 {
		t.Fatalf("expected both calls to normalize to the same canonical call and dedupe, got %d: %+v", len(out), out)
	}
	if out[0].Name != "create_file" {
		t.Fatalf("expected canonical name create_file, got %q", out[0].Name)
	}
}
