package toolhost

import (
	"testing"

	"github.com/lemonjerome/low-cortisol-html/internal/sandbox"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

func TestRegisterDuplicateNameRejected(t *testing.T) {
	h := New()
	def := models.ToolDefinition{
		Name:    "dup",
		Handler: func(map[string]any) models.ToolResult { return models.Ok(nil) },
	}
	if err := h.Register(def); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := h.Register(def); err == nil {
		t.Fatalf("expected error on duplicate registration")
	}
}

func TestCallToolUnknown(t *testing.T) {
	h := New()
	result := h.CallTool("does_not_exist", nil)
	if result.Ok {
		t.Fatalf("expected transport failure for unknown tool")
	}
	if result.Error == nil || result.Error.Type != "ToolNotFound" {
		t.Fatalf("expected ToolNotFound error, got %+v", result.Error)
	}
}

func TestCallToolSchemaViolations(t *testing.T) {
	h := New()
	trueV := false
	def := models.ToolDefinition{
		Name: "scaffold_web_app",
		InputSchema: &models.Schema{
			Type: "object",
			Properties: map[string]*models.Schema{
				"app_dir": {Type: "string"},
			},
			Required:             []string{"app_dir"},
			AdditionalProperties: &trueV,
		},
		Handler: func(map[string]any) models.ToolResult { return models.Ok(nil) },
	}
	if err := h.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	result := h.CallTool("scaffold_web_app", map[string]any{"app_dir": "demo", "unexpected": "x"})
	if result.Ok {
		t.Fatalf("expected rejection of unexpected field")
	}
	if result.Error == nil {
		t.Fatal("expected error")
	}
}

func buildTestSandbox(t *testing.T) *sandbox.Sandbox {
	t.Helper()
	root := t.TempDir()
	resolved, err := sandbox.ResolveWorkspaceRoot(root)
	if err != nil {
		t.Fatalf("resolve workspace root: %v", err)
	}
	return sandbox.New(resolved)
}

func TestBuildCatalogRoundTrip(t *testing.T) {
	sb := buildTestSandbox(t)
	h, err := BuildCatalog(sb)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}

	writeResult := h.CallTool("create_file", map[string]any{
		"relative_path": "index.html",
		"content":       "<html></html>",
	})
	if !writeResult.Ok || writeResult.Result["ok"] != true {
		t.Fatalf("create_file failed: %+v", writeResult)
	}

	readResult := h.CallTool("read_file", map[string]any{"relative_path": "index.html"})
	if !readResult.Ok || readResult.Result["ok"] != true {
		t.Fatalf("read_file failed: %+v", readResult)
	}
	if readResult.Result["content"] != "<html></html>" {
		t.Fatalf("round-trip mismatch: %+v", readResult.Result)
	}
}

func TestBuildCatalogSandboxEscape(t *testing.T) {
	sb := buildTestSandbox(t)
	h, err := BuildCatalog(sb)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	result := h.CallTool("create_file", map[string]any{
		"relative_path": "../escape.txt",
		"content":       "x",
	})
	if result.Ok {
		t.Fatalf("expected sandbox escape to be a transport failure")
	}
	if result.Error == nil || result.Error.Type != "ValueError" {
		t.Fatalf("expected ValueError sandbox escape, got %+v", result.Error)
	}
}

func TestListToolsOrder(t *testing.T) {
	sb := buildTestSandbox(t)
	h, err := BuildCatalog(sb)
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	summaries := h.ListTools()
	if len(summaries) == 0 {
		t.Fatal("expected built-in tools to be registered")
	}
	seen := map[string]bool{}
	for _, s := range summaries {
		if seen[s.Name] {
			t.Fatalf("duplicate tool name in catalog: %s", s.Name)
		}
		seen[s.Name] = true
	}
}
