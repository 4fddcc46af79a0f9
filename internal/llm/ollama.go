package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// OllamaClient implements Client against a local Ollama server's
// /api/chat and /api/embeddings endpoints.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	Sink       StreamSink
	Device     string
}

var _ Client = (*OllamaClient)(nil)

// NewOllamaClient builds a client bound to baseURL (default
// http://localhost:11434 when empty). Chat calls use a long read timeout
// (10 min); embed calls use a shorter one (2 min) via a derived context
// deadline at the call site.
func NewOllamaClient(baseURL string) *OllamaClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []openai.Tool       `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaChatResponse struct {
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	Error           string             `json:"error"`
	EvalCount       int                `json:"eval_count"`
	PromptEvalCount int                `json:"prompt_eval_count"`
}

type ollamaToolCall struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func toolsToOpenAI(tools []models.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		schemaMap := schemaToMap(t.InputSchema)
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return out
}

func schemaToMap(s *models.Schema) map[string]any {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return m
}

func buildOllamaMessages(messages []models.SessionMessage) []ollamaChatMessage {
	out := make([]ollamaChatMessage, 0, len(messages))
	toolNames := map[string]string{}
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID != "" && tc.Name != "" {
				toolNames[tc.ID] = tc.Name
			}
		}
	}
	for _, msg := range messages {
		role := string(msg.Role)
		if role == "" {
			role = "user"
		}
		switch msg.Role {
		case models.RoleAssistant:
			om := ollamaChatMessage{Role: role, Content: msg.Content}
			if len(msg.ToolCalls) > 0 {
				om.ToolCalls = make([]ollamaToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					args, err := json.Marshal(tc.Arguments)
					if err != nil || len(args) == 0 {
						args = json.RawMessage(`{}`)
					}
					om.ToolCalls[i] = ollamaToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: ollamaToolFunction{
							Name:      tc.Name,
							Arguments: args,
						},
					}
				}
			}
			out = append(out, om)
		case models.RoleTool:
			out = append(out, ollamaChatMessage{Role: role, Content: msg.Content, ToolName: msg.Name})
		default:
			out = append(out, ollamaChatMessage{Role: role, Content: msg.Content})
		}
	}
	return out
}

func toolCallKey(tc ollamaToolCall) string {
	if id := strings.TrimSpace(tc.ID); id != "" {
		return id
	}
	name := strings.TrimSpace(tc.Function.Name)
	args := strings.TrimSpace(string(tc.Function.Arguments))
	if name == "" && args == "" {
		return ""
	}
	return name + ":" + args
}

// Chat submits a streaming chat request and assembles the full response,
// relaying raw chunks to c.Sink when req.StreamLabel is set.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	options := map[string]any{}
	if req.NumCtx > 0 {
		options["num_ctx"] = req.NumCtx
	}
	if req.NumPredict > 0 {
		options["num_predict"] = req.NumPredict
	}
	device := req.Device
	if device == "" {
		device = c.Device
	}
	if device != "" && device != "auto" {
		// Ollama ignores unknown options, so a wrong guess never breaks a run.
		options["device"] = device
	}

	payload := ollamaChatRequest{
		Model:    req.Model,
		Stream:   true,
		Messages: buildOllamaMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		payload.Tools = toolsToOpenAI(req.Tools)
	}
	if len(options) > 0 {
		payload.Options = options
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("ollama chat status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var contentBuilder strings.Builder
	var toolCalls []models.ToolCallRequest
	emitted := map[string]struct{}{}
	var result ChatResponse

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return nil, fmt.Errorf("decode chat chunk: %w", err)
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("ollama chat error: %s", chunk.Error)
		}
		if chunk.Message != nil {
			if chunk.Message.Content != "" {
				contentBuilder.WriteString(chunk.Message.Content)
				if req.StreamLabel != "" && c.Sink != nil {
					c.Sink(req.StreamLabel, chunk.Message.Content)
				}
			}
			for _, tc := range chunk.Message.ToolCalls {
				key := toolCallKey(tc)
				if key == "" {
					key = uuid.NewString()
				}
				if _, ok := emitted[key]; ok {
					continue
				}
				emitted[key] = struct{}{}
				var args map[string]any
				if len(tc.Function.Arguments) > 0 {
					_ = json.Unmarshal(tc.Function.Arguments, &args)
				}
				id := tc.ID
				if id == "" {
					id = key
				}
				toolCalls = append(toolCalls, models.ToolCallRequest{
					ID:        id,
					Name:      strings.TrimSpace(tc.Function.Name),
					Arguments: args,
				})
			}
		}
		if chunk.Done {
			result.InputTokens = chunk.PromptEvalCount
			result.OutputTokens = chunk.EvalCount
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chat stream: %w", err)
	}

	result.Content = contentBuilder.String()
	result.ToolCalls = toolCalls
	return &result, nil
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns a single text's embedding via /api/embeddings.
func (c *OllamaClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	req := embeddingRequest{Model: model, Prompt: text}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("ollama embed status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}
	return result.Embedding, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ollamaPullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// EnsureModelsLoaded pulls any of the named models that are not already
// present on the Ollama server.
func (c *OllamaClient) EnsureModelsLoaded(ctx context.Context, models []string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build tags request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	present := map[string]bool{}
	if resp.StatusCode == http.StatusOK {
		var tags ollamaTagsResponse
		if err := json.NewDecoder(resp.Body).Decode(&tags); err == nil {
			for _, m := range tags.Models {
				present[m.Name] = true
			}
		}
	}

	for _, model := range models {
		if model == "" || present[model] {
			continue
		}
		if err := c.pull(ctx, model); err != nil {
			return fmt.Errorf("pull model %q: %w", model, err)
		}
	}
	return nil
}

func (c *OllamaClient) pull(ctx context.Context, model string) error {
	body, err := json.Marshal(ollamaPullRequest{Name: model, Stream: false})
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return fmt.Errorf("pull status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}
	return nil
}

// WarmupModels issues one trivial chat and one trivial embed call to warm
// the backend's model cache before the first real run.
func (c *OllamaClient) WarmupModels(ctx context.Context, chatModel, embedModel string) error {
	if chatModel != "" {
		_, err := c.Chat(ctx, ChatRequest{
			Model:    chatModel,
			Messages: []models.SessionMessage{{Role: models.RoleUser, Content: "ping"}},
		})
		if err != nil {
			return fmt.Errorf("warm up chat model: %w", err)
		}
	}
	if embedModel != "" {
		if _, err := c.Embed(ctx, embedModel, "ping"); err != nil {
			return fmt.Errorf("warm up embedding model: %w", err)
		}
	}
	return nil
}
