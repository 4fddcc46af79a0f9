// Package planner makes the single LLM call that produces a structured
// Plan: retrieval query, phases, active phase, and supporting hints. Its
// JSON extraction is robust to partial or malformed model output, and a
// fast-mode switch bypasses the model entirely with a deterministic plan.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lemonjerome/low-cortisol-html/internal/llm"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

const systemPrompt = `You are the planning stage of a local coding agent. Given a task, ` +
	`respond with a single JSON object only, no prose, no code fences, shaped as:
{"subgoal":"...","retrieval_query":"...","tool_hints":["..."],"rationale":"...",` +
	`"development_phases":["..."],"active_phase":"...","suggested_features":["..."],` +
	`"unit_test_plan":["..."]}`

// Planner issues the single planning call.
type Planner struct {
	Client         llm.Client
	Model          string
	FastMode       bool
	IterationLabel string
}

// New builds a Planner. When fastMode is true, Plan never calls the
// model and instead returns the deterministic six-phase plan.
func New(client llm.Client, model string, fastMode bool) *Planner {
	return &Planner{Client: client, Model: model, FastMode: fastMode, IterationLabel: "iteration-1"}
}

// Plan produces a structured Plan for task.
func (p *Planner) Plan(ctx context.Context, task string) (*models.Plan, error) {
	if p.FastMode {
		plan := &models.Plan{}
		plan.WithDefaults(task, p.IterationLabel)
		return plan, nil
	}

	resp, err := p.Client.Chat(ctx, llm.ChatRequest{
		Model: p.Model,
		Messages: []models.SessionMessage{
			{Role: models.RoleSystem, Content: systemPrompt},
			{Role: models.RoleUser, Content: task},
		},
	})
	if err != nil {
		// TransportError: surfaced to the caller, which treats a failed
		// planning call as a run-level transport error per the taxonomy.
		return nil, fmt.Errorf("planner chat: %w", err)
	}

	plan := parsePlan(resp.Content)
	plan.WithDefaults(task, p.IterationLabel)
	return plan, nil
}

// parsePlan implements the ParseError-tolerant contract: try a full
// parse, then a balanced-brace sub-parse; on total failure return a zero
// Plan for WithDefaults to fill in.
func parsePlan(content string) *models.Plan {
	var plan models.Plan
	trimmed := strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(trimmed), &plan); err == nil {
		return &plan
	}
	if snippet := balancedBraceSnippet(trimmed); snippet != "" {
		if err := json.Unmarshal([]byte(snippet), &plan); err == nil {
			return &plan
		}
	}
	return &models.Plan{}
}

func balancedBraceSnippet(text string) string {
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
