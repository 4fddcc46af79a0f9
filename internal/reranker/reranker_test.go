package reranker

import (
	"context"
	"testing"

	"github.com/lemonjerome/low-cortisol-html/internal/llm"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

func TestRerankFallsBackOnUnparsableOutput(t *testing.T) {
	r := New(llm.NewMockClient("DONE:"), "mock-model")
	candidates := []models.ToolCandidate{
		{Name: "create_file", BaseScore: 0.5},
		{Name: "read_file", BaseScore: 0.9},
	}
	out, report := r.Rerank(context.Background(), "task", nil, candidates, 5)
	if report.Method != MethodFallback {
		t.Fatalf("mock client's free-form text should not parse, expected fallback, got %v", report.Method)
	}
	if len(out) != 2 || out[0].Name != "read_file" {
		t.Fatalf("fallback should preserve embedding ordering, got %+v", out)
	}
}

func TestRerankEmptyCandidates(t *testing.T) {
	r := New(llm.NewMockClient("DONE:"), "mock-model")
	out, report := r.Rerank(context.Background(), "task", nil, nil, 5)
	if len(out) != 0 {
		t.Fatalf("expected no candidates")
	}
	if report.Method != MethodFallback {
		t.Fatalf("expected fallback report for empty candidates")
	}
}
