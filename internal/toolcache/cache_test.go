package toolcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lemonjerome/low-cortisol-html/internal/llm"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

func sampleTools() []models.ToolDefinition {
	return []models.ToolDefinition{
		{Name: "create_file", Description: "write a file"},
		{Name: "read_file", Description: "read a file"},
		{Name: "run_unit_tests", Description: "run tests"},
	}
}

func TestEnsureVectorsAndRetrieve(t *testing.T) {
	dir := t.TempDir()
	mock := llm.NewMockClient("DONE:")
	c, err := Load(filepath.Join(dir, "vectors.json"), "mock-embed", mock)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tools := sampleTools()
	if err := c.EnsureVectors(context.Background(), tools); err != nil {
		t.Fatalf("ensure vectors: %v", err)
	}

	candidates, err := c.RetrieveCandidates(context.Background(), "write a file to disk", tools, 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
}

func TestTopNLowerBoundedAtOne(t *testing.T) {
	dir := t.TempDir()
	mock := llm.NewMockClient("DONE:")
	c, _ := Load(filepath.Join(dir, "vectors.json"), "mock-embed", mock)
	tools := sampleTools()
	_ = c.EnsureVectors(context.Background(), tools)

	candidates, err := c.RetrieveCandidates(context.Background(), "anything", tools, 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected top_n to be lower-bounded at 1, got %d", len(candidates))
	}
}

func TestModelMismatchInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.json")
	mock := llm.NewMockClient("DONE:")

	c1, _ := Load(path, "model-a", mock)
	_ = c1.EnsureVectors(context.Background(), sampleTools())

	c2, err := Load(path, "model-b", mock)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c2.vectors) != 0 {
		t.Fatalf("expected vectors to be invalidated on model mismatch, got %d", len(c2.vectors))
	}
}

func TestZeroNormScoresZero(t *testing.T) {
	if got := cosineSimilarity(nil, []float32{1, 2, 3}); got != 0 {
		t.Fatalf("expected 0 for zero-norm vector, got %v", got)
	}
	if got := cosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}); got != 0 {
		t.Fatalf("expected 0 for zero vector, got %v", got)
	}
}
