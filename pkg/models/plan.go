package models

// Plan is the structured object produced by a single Planner call. All
// fields default to a usable zero value when the model's JSON output
// fails to parse or omits a field.
type Plan struct {
	Subgoal            string   `json:"subgoal"`
	RetrievalQuery     string   `json:"retrieval_query"`
	ToolHints          []string `json:"tool_hints"`
	Rationale          string   `json:"rationale"`
	DevelopmentPhases  []string `json:"development_phases"`
	ActivePhase        string   `json:"active_phase"`
	SuggestedFeatures  []string `json:"suggested_features"`
	UnitTestPlan       []string `json:"unit_test_plan"`
}

// DefaultPhases is the deterministic six-phase plan used by fast mode and
// as a fallback when the Planner's JSON output cannot be parsed at all.
var DefaultPhases = []string{
	"scaffold",
	"layout",
	"styling",
	"interactivity",
	"validation",
	"polish",
}

// WithDefaults fills any zero-valued fields with task-derived or
// deterministic defaults, per the Planner's robust-parse contract.
func (p *Plan) WithDefaults(task string, iterationLabel string) {
	if p.RetrievalQuery == "" {
		p.RetrievalQuery = task
	}
	if p.ActivePhase == "" {
		p.ActivePhase = iterationLabel
	}
	if len(p.DevelopmentPhases) == 0 {
		p.DevelopmentPhases = append([]string(nil), DefaultPhases...)
	}
	if p.Subgoal == "" {
		p.Subgoal = task
	}
}
