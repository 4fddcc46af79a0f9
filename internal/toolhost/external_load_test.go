package toolhost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lemonjerome/low-cortisol-html/internal/sandbox"
)

const echoManifest = `{
	"name": "say_hello",
	"description": "echoes a greeting (test fixture external tool)",
	"input_schema": {
		"type": "object",
		"properties": {"message": {"type": "string"}},
		"required": ["message"],
		"additionalProperties": false
	},
	"command": ["echo", "{{message}}"],
	"timeout_seconds": 5
}`

func TestLoadExternalToolsRegistersAndExecutesManifest(t *testing.T) {
	root := t.TempDir()
	extDir := filepath.Join(root, ExternalToolsDirName)
	if err := os.MkdirAll(extDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(extDir, "say_hello.json"), []byte(echoManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	h := New()
	sb := sandbox.New(root)
	if err := LoadExternalTools(h, sb, extDir); err != nil {
		t.Fatalf("LoadExternalTools: %v", err)
	}

	if _, ok := h.Get("say_hello"); !ok {
		t.Fatalf("expected say_hello to be registered")
	}

	result := h.CallTool("say_hello", map[string]any{"message": "hi"})
	if !result.Ok {
		t.Fatalf("expected call to reach the handler, got error %+v", result.Error)
	}
	stdout, _ := result.Result["stdout"].(string)
	if stdout != "hi\n" {
		t.Fatalf("expected stdout %q, got %q", "hi\n", stdout)
	}

	missingRequired := h.CallTool("say_hello", map[string]any{})
	if missingRequired.Ok {
		t.Fatalf("expected missing required 'message' to fail schema validation")
	}
}

func TestLoadExternalToolsToleratesMissingDirectory(t *testing.T) {
	h := New()
	sb := sandbox.New(t.TempDir())
	if err := LoadExternalTools(h, sb, filepath.Join(sb.Root, "does-not-exist")); err != nil {
		t.Fatalf("expected missing external-tools dir to be a no-op, got %v", err)
	}
	if len(h.Names()) != 0 {
		t.Fatalf("expected no tools registered, got %v", h.Names())
	}
}
