// Package reranker asks the LLM to score candidate tools given the task
// and plan, falling back to the embedding ordering when the model's
// output doesn't parse or yields nothing usable.
package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lemonjerome/low-cortisol-html/internal/llm"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// Method names the reranking strategy actually used for a call.
type Method string

const (
	MethodModel    Method = "model_reranker"
	MethodFallback Method = "embedding_fallback"
)

// Report describes the outcome of one Rerank call.
type Report struct {
	Method Method `json:"method"`
	Reason string `json:"reason,omitempty"`
}

// Reranker issues the reranking call.
type Reranker struct {
	Client llm.Client
	Model  string
}

func New(client llm.Client, model string) *Reranker {
	return &Reranker{Client: client, Model: model}
}

type rankingEntry struct {
	Name  string `json:"name"`
	Score any    `json:"score"`
}

type rerankEnvelope struct {
	Rankings []rankingEntry `json:"rankings"`
	Reason   string         `json:"reason"`
}

func buildPrompt(task string, plan *models.Plan, candidates []models.ToolCandidate) string {
	var sb strings.Builder
	sb.WriteString("Task: " + task + "\n")
	if plan != nil {
		sb.WriteString("Subgoal: " + plan.Subgoal + "\n")
	}
	sb.WriteString("Rank these candidate tools for relevance. Respond with JSON only: ")
	sb.WriteString(`{"rankings":[{"name":"...","score":0.0}],"reason":"..."}` + "\n")
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- %s (base_score=%.3f): %s\n", c.Name, c.BaseScore, c.Description)
	}
	return sb.String()
}

// Rerank scores candidates via one LLM call and returns the top K in
// descending rerank-score order, alongside a report naming the method
// actually used. Unknown names in the model's output are dropped;
// non-numeric scores are ignored. On parse failure or an empty result it
// falls back to the incoming (embedding) ordering.
func (r *Reranker) Rerank(ctx context.Context, task string, plan *models.Plan, candidates []models.ToolCandidate, topK int) ([]models.ToolCandidate, Report) {
	if len(candidates) == 0 {
		return candidates, Report{Method: MethodFallback, Reason: "no candidates"}
	}

	resp, err := r.Client.Chat(ctx, llm.ChatRequest{
		Model: r.Model,
		Messages: []models.SessionMessage{
			{Role: models.RoleUser, Content: buildPrompt(task, plan, candidates)},
		},
	})
	if err != nil {
		return fallback(candidates, topK, "reranker transport error: "+err.Error())
	}

	var env rerankEnvelope
	if jsonErr := json.Unmarshal([]byte(strings.TrimSpace(llm.StripThinkTags(resp.Content))), &env); jsonErr != nil {
		return fallback(candidates, topK, "reranker output did not parse as JSON")
	}
	if len(env.Rankings) == 0 {
		return fallback(candidates, topK, "reranker returned no rankings")
	}

	knownNames := map[string]models.ToolCandidate{}
	for _, c := range candidates {
		knownNames[c.Name] = c
	}
	scored := make([]models.ToolCandidate, 0, len(env.Rankings))
	for _, entry := range env.Rankings {
		base, known := knownNames[entry.Name]
		if !known {
			continue
		}
		score, numeric := entry.Score.(float64)
		if !numeric {
			continue
		}
		base.RerankScore = score
		scored = append(scored, base)
	}
	if len(scored) == 0 {
		return fallback(candidates, topK, "reranker named no known tools")
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].RerankScore > scored[j].RerankScore })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, Report{Method: MethodModel, Reason: env.Reason}
}

func fallback(candidates []models.ToolCandidate, topK int, reason string) ([]models.ToolCandidate, Report) {
	out := append([]models.ToolCandidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].BaseScore > out[j].BaseScore })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, Report{Method: MethodFallback, Reason: reason}
}
