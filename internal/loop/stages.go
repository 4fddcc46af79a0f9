// Package loop is the Loop Controller: the staged pipeline that composes
// the Planner, Reranker, LLM Client, Tool Host, Project Memory, and
// Session Memory into bounded iterations, with progress and termination
// guards.
package loop

// Stage is one named phase of the staged pipeline, each with a fixed
// allowed-tool set and prompt template.
type Stage string

const (
	StagePlan     Stage = "plan"
	StageCode     Stage = "code"
	StageValidate Stage = "validate"
)

// Stages is the fixed execution order of the staged pipeline.
var Stages = []Stage{StagePlan, StageCode, StageValidate}

// StageTools is the fixed allowed-tool set per stage; calls to tools
// outside a stage's set are dropped silently.
var StageTools = map[Stage][]string{
	StagePlan: {
		"plan_web_build",
		"list_directory",
		"read_file",
		"sandbox_echo_path",
	},
	StageCode: {
		"create_file",
		"read_file",
		"list_directory",
		"append_to_file",
		"insert_after_marker",
		"replace_range",
		"scaffold_web_app",
	},
	StageValidate: {
		"validate_web_app",
		"run_unit_tests",
		"read_file",
		"list_directory",
	},
}

// IsAllowed reports whether name is in stage's allowed-tool set.
func IsAllowed(stage Stage, name string) bool {
	for _, allowed := range StageTools[stage] {
		if allowed == name {
			return true
		}
	}
	return false
}

// ToolsForStage returns the catalog-filtered tool name list for a stage.
func ToolsForStage(stage Stage, catalogNames []string) []string {
	allowed := StageTools[stage]
	allowedSet := map[string]bool{}
	for _, a := range allowed {
		allowedSet[a] = true
	}
	out := make([]string, 0, len(allowed))
	for _, name := range catalogNames {
		if allowedSet[name] {
			out = append(out, name)
		}
	}
	return out
}
