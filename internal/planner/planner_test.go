package planner

import (
	"context"
	"testing"

	"github.com/lemonjerome/low-cortisol-html/internal/llm"
)

func TestFastModeSkipsModel(t *testing.T) {
	p := New(llm.NewMockClient("DONE:"), "mock-model", true)
	plan, err := p.Plan(context.Background(), "build a hello page")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.DevelopmentPhases) != 6 {
		t.Fatalf("expected 6 deterministic phases, got %d", len(plan.DevelopmentPhases))
	}
	if plan.RetrievalQuery != "build a hello page" {
		t.Fatalf("expected retrieval_query to default to the task")
	}
}

func TestParsePlanFallsBackOnGarbage(t *testing.T) {
	plan := parsePlan("not json at all")
	plan.WithDefaults("task", "iter-1")
	if plan.Subgoal != "task" {
		t.Fatalf("expected subgoal to default to the task")
	}
	if plan.ActivePhase != "iter-1" {
		t.Fatalf("expected active_phase to default")
	}
}

func TestParsePlanBalancedBraceFallback(t *testing.T) {
	noisy := "Sure, here is the plan: {\"subgoal\":\"x\",\"active_phase\":\"p1\"} — let me know!"
	plan := parsePlan(noisy)
	if plan.Subgoal != "x" || plan.ActivePhase != "p1" {
		t.Fatalf("expected balanced-brace extraction, got %+v", plan)
	}
}
