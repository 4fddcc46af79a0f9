package llm

import (
	"context"
	"fmt"
	"math"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// MockClient is the deterministic LLM Client used by end-to-end tests: the
// first chat call returns a fixed tool invocation, the second returns the
// completion prefix with no tool calls, and embeddings are derived from a
// seed rather than a live model. It never touches the network.
type MockClient struct {
	turn int
	// CompletionPrefix is injected so callers that customize the prefix
	// still get a mock client that satisfies termination logic.
	CompletionPrefix string
}

var _ Client = (*MockClient)(nil)

// NewMockClient builds a mock client with the given completion prefix,
// falling back to "DONE:" when it is empty.
func NewMockClient(completionPrefix string) *MockClient {
	if completionPrefix == "" {
		completionPrefix = "DONE:"
	}
	return &MockClient{CompletionPrefix: completionPrefix}
}

func (m *MockClient) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	m.turn++
	switch m.turn {
	case 1:
		return &ChatResponse{
			Content: "I will inspect the docs directory first.",
			ToolCalls: []models.ToolCallRequest{
				{
					ID:   "mock-call-1",
					Name: "sandbox_echo_path",
					Arguments: map[string]any{
						"relative_path": "docs",
					},
				},
			},
		}, nil
	default:
		return &ChatResponse{
			Content: fmt.Sprintf("%s tool call executed and response analyzed.", m.CompletionPrefix),
		}, nil
	}
}

// Embed computes a deterministic 8-dimension vector seeded from text's
// byte content, so repeated calls with the same text are identical and
// different texts diverge without needing a live embedding model.
func (m *MockClient) Embed(_ context.Context, _ string, text string) ([]float32, error) {
	const dims = 8
	vec := make([]float32, dims)
	seed := uint32(2166136261)
	for _, b := range []byte(text) {
		seed ^= uint32(b)
		seed *= 16777619
	}
	for i := 0; i < dims; i++ {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(math.Sin(float64(seed)))
	}
	return vec, nil
}

func (m *MockClient) EnsureModelsLoaded(context.Context, []string) error { return nil }

func (m *MockClient) WarmupModels(context.Context, string, string) error { return nil }
