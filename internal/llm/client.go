// Package llm is the chat + embed transport: streaming chat with tool-call
// extraction, embeddings, model warmup, and a deterministic mock mode for
// tests that never touches the network.
package llm

import (
	"context"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// ChatRequest is one call(s) to the chat endpoint.
type ChatRequest struct {
	Model       string
	Messages    []models.SessionMessage
	Tools       []models.ToolDefinition
	Stream      bool
	NumCtx      int
	NumPredict  int
	StreamLabel string // when non-empty, raw chunks are passed with this label to the client's Sink; with no Sink set nothing is relayed
	Device      string // device preference hint, forwarded as an Ollama option
}

// ChatResponse is the assembled result of a (possibly streamed) chat call.
type ChatResponse struct {
	Content      string
	ToolCalls    []models.ToolCallRequest
	InputTokens  int
	OutputTokens int
}

// Client is the LLM Client's full surface: chat, embed, and the warmup
// helpers used once at process start.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Embed(ctx context.Context, model, text string) ([]float32, error)
	EnsureModelsLoaded(ctx context.Context, models []string) error
	WarmupModels(ctx context.Context, chatModel, embedModel string) error
}

// StreamSink receives raw chat chunks as they arrive, for relay to the
// Stream Gateway's stderr sentinel protocol. A nil sink is a no-op.
type StreamSink func(stage, text string)
