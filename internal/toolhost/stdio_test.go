package toolhost

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestServeStdioListTools(t *testing.T) {
	sb := buildTestSandbox(t)
	h, err := BuildCatalog(sb)
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}

	in := strings.NewReader(`{"action":"list_tools"}` + "\n")
	var out bytes.Buffer
	code := h.ServeStdio(in, &out)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	var resp stdioResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Ok {
		t.Fatalf("expected ok=true")
	}
}

func TestServeStdioCallToolUnknownTool(t *testing.T) {
	sb := buildTestSandbox(t)
	h, err := BuildCatalog(sb)
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}

	in := strings.NewReader(`{"action":"call_tool","tool":"nope","arguments":{}}` + "\n")
	var out bytes.Buffer
	code := h.ServeStdio(in, &out)
	if code != 1 {
		t.Fatalf("expected exit code 1 for unknown tool, got %d", code)
	}
}

func TestServeStdioUnknownAction(t *testing.T) {
	h := New()
	in := strings.NewReader(`{"action":"bogus"}` + "\n")
	var out bytes.Buffer
	code := h.ServeStdio(in, &out)
	if code != 1 {
		t.Fatalf("expected exit code 1 for unknown action, got %d", code)
	}
}
