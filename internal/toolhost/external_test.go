package toolhost

import (
	"testing"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

const externalToolSchema = `{
	"type": "object",
	"properties": {
		"url": {"type": "string", "pattern": "^https?://"},
		"max_results": {"type": "integer", "minimum": 1, "maximum": 20}
	},
	"required": ["url"],
	"additionalProperties": false
}`

func TestRegisterExternalValidatesAgainstFullJSONSchema(t *testing.T) {
	h := New()
	def := models.ToolDefinition{
		Name:        "fetch_reference",
		Description: "fetches a reference URL (external tool source)",
		Handler:     func(map[string]any) models.ToolResult { return models.Ok(map[string]any{"fetched": true}) },
	}
	if err := h.RegisterExternal(def, []byte(externalToolSchema)); err != nil {
		t.Fatalf("RegisterExternal: %v", err)
	}

	ok := h.CallTool("fetch_reference", map[string]any{"url": "https://example.com", "max_results": float64(5)})
	if !ok.Ok {
		t.Fatalf("expected valid call to succeed, got %+v", ok.Error)
	}

	badPattern := h.CallTool("fetch_reference", map[string]any{"url": "ftp://example.com"})
	if badPattern.Ok {
		t.Fatalf("expected pattern violation to fail validation")
	}

	missingRequired := h.CallTool("fetch_reference", map[string]any{"max_results": float64(3)})
	if missingRequired.Ok {
		t.Fatalf("expected missing required field to fail validation")
	}

	outOfRange := h.CallTool("fetch_reference", map[string]any{"url": "https://example.com", "max_results": float64(99)})
	if outOfRange.Ok {
		t.Fatalf("expected out-of-range max_results to fail validation")
	}
}
