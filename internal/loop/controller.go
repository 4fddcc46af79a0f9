package loop

import (
	"context"
	"fmt"
	"strings"

	"github.com/lemonjerome/low-cortisol-html/internal/actionlog"
	"github.com/lemonjerome/low-cortisol-html/internal/llm"
	"github.com/lemonjerome/low-cortisol-html/internal/planner"
	"github.com/lemonjerome/low-cortisol-html/internal/projectmemory"
	"github.com/lemonjerome/low-cortisol-html/internal/reranker"
	"github.com/lemonjerome/low-cortisol-html/internal/sessionmemory"
	"github.com/lemonjerome/low-cortisol-html/internal/toolcache"
	"github.com/lemonjerome/low-cortisol-html/internal/toolhost"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// Event is one progress notification the Controller emits as it runs. The
// Stream Gateway maps these onto the NDJSON wire protocol.
type Event struct {
	Type  string         `json:"type"`
	Stage string         `json:"stage,omitempty"`
	Text  string         `json:"text,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// EventSink receives Controller progress events. A nil sink is a no-op.
type EventSink func(Event)

const systemPrompt = `You are a local coding agent building a small HTML/CSS/JS web application ` +
	`inside a sandboxed workspace directory. Work one stage at a time, calling only the tools ` +
	`offered to you this turn. Prefer small, verifiable edits. When a stage's work is complete, ` +
	`reply with a message starting "DONE:" and no further tool calls.`

var writeTools = map[string]bool{
	"create_file":         true,
	"append_to_file":      true,
	"insert_after_marker": true,
	"replace_range":       true,
	"scaffold_web_app":    true,
}

var mutateInPlaceTools = map[string]bool{
	"append_to_file":      true,
	"insert_after_marker": true,
	"replace_range":       true,
}

var readTools = map[string]bool{
	"read_file":         true,
	"list_directory":    true,
	"sandbox_echo_path": true,
}

const coreFiles = "index.html styles.css app.js"

// Controller is the Loop Controller: the staged pipeline that composes
// every other component into bounded iterations, with progress and
// termination guards.
type Controller struct {
	WorkspaceRoot string
	Tools         *toolhost.Host
	Cache         *toolcache.Cache
	ProjectMem    *projectmemory.Memory
	SessionMem    *sessionmemory.Memory
	Planner       *planner.Planner
	Reranker      *reranker.Reranker
	Client        llm.Client
	ActionLog     *actionlog.Logger
	Model         string

	TopKTools         int
	CandidatePoolSize int
	MaxLoops          int
	MinIterations     int

	// CompletionPrefix and StopPrefix are the literal markers by which the
	// assistant signals end-of-run vs give-up (spec's completion-prefix /
	// stop-prefix termination). Checked as string prefixes of the
	// stage-turn's trimmed, think-tag-stripped content.
	CompletionPrefix string
	StopPrefix       string

	OnEvent EventSink
}

// Result is the Controller's final, single-object return value.
type Result struct {
	Ok                bool   `json:"ok"`
	Summary           string `json:"summary"`
	IterationsRun     int    `json:"iterations_run"`
	StoppedReason     string `json:"stopped_reason"`
	SubstantiveEdits  int    `json:"substantive_edits"`
	ValidationRuns    int    `json:"validation_runs"`
	TestRuns          int    `json:"test_runs"`
}

func (c *Controller) emit(e Event) {
	if c.OnEvent != nil {
		c.OnEvent(e)
	}
}

// New builds a Controller with TopKTools/CandidatePoolSize/MaxLoops
// defaulted when left zero.
func New(workspaceRoot string, tools *toolhost.Host, cache *toolcache.Cache, projectMem *projectmemory.Memory,
	pl *planner.Planner, rr *reranker.Reranker, client llm.Client, model string) *Controller {
	return &Controller{
		WorkspaceRoot:     workspaceRoot,
		Tools:             tools,
		Cache:             cache,
		ProjectMem:        projectMem,
		Planner:           pl,
		Reranker:          rr,
		Client:            client,
		Model:             model,
		TopKTools:         6,
		CandidatePoolSize: 12,
		MaxLoops:          8,
		MinIterations:     2,
		CompletionPrefix:  "DONE:",
		StopPrefix:        "STOP:",
	}
}

// Run drives the staged pipeline to completion or termination for a
// single task, returning exactly one Result.
func (c *Controller) Run(ctx context.Context, task string) (*Result, error) {
	c.SessionMem = sessionmemory.New(systemPrompt, task)
	state := newIterationState()

	if c.ProjectMem != nil {
		watchCtx, cancelWatch := context.WithCancel(ctx)
		defer cancelWatch()
		go func() {
			_ = c.ProjectMem.Watch(watchCtx, func(rel string) {
				c.ProjectMem.MarkTouched(rel)
			})
		}()
	}

	plan, err := c.Planner.Plan(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("loop controller: plan stage: %w", err)
	}
	c.emit(Event{Type: "status", Stage: string(StagePlan), Text: "plan ready", Data: map[string]any{"subgoal": plan.Subgoal}})

	stopped := ""
	iteration := 0
loopIterations:
	for iteration = 1; iteration <= c.MaxLoops; iteration++ {
		for _, stage := range Stages {
			if c.shouldSkipStage(stage, state) {
				state.ConsecutiveDeferrals++
				continue
			}
			state.ConsecutiveDeferrals = 0
			state.StagesExecuted[stage] = true

			progressed, err := c.runStage(ctx, stage, task, plan, state, iteration)
			if err != nil {
				c.emit(Event{Type: "error", Stage: string(stage), Text: err.Error()})
				stopped = "transport_error"
				break loopIterations
			}
			if stage == StageValidate {
				state.ValidationRuns++
				state.ChangedFilesSinceValidation = map[string]bool{}
			}
			if state.StopSignaled {
				stopped = "stop_prefix"
				break loopIterations
			}
			if state.CompletionSignaled {
				stopped = "completed"
				break loopIterations
			}
			if !progressed {
				state.NoProgressCount++
			} else {
				state.NoProgressCount = 0
			}
			if state.NoProgressCount >= maxNoProgressIterations {
				stopped = "no_progress"
				break loopIterations
			}
		}

		if c.allStagesExecutedAndStable(state) {
			stopped = "completed"
			break loopIterations
		}
	}
	if stopped == "" {
		stopped = "max_iterations"
		iteration = c.MaxLoops
	}

	summary := c.synthesizeSummary(ctx, task, stopped)
	return &Result{
		Ok:               stopped == "completed",
		Summary:          summary,
		IterationsRun:    iteration,
		StoppedReason:    stopped,
		SubstantiveEdits: state.SubstantiveEditCount,
		ValidationRuns:   state.ValidationRuns,
		TestRuns:         state.TestRuns,
	}, nil
}

func (c *Controller) allStagesExecutedAndStable(state *IterationState) bool {
	for _, s := range Stages {
		if !state.StagesExecuted[s] {
			return false
		}
	}
	return len(state.ChangedFilesSinceValidation) == 0 && state.SubstantiveEditCount > 0 && state.LastValidationOk
}

// completionGaps reports every unmet completion-prefix precondition
// (spec's "completion gaps"): minimum iterations, an HTML/CSS/JS file
// created, a test file created, a successful validation, and a
// successful test run. An empty return means the run may terminate.
func (c *Controller) completionGaps(iteration int, state *IterationState) []string {
	var gaps []string
	if iteration < c.MinIterations {
		gaps = append(gaps, "minimum iterations not reached")
	}
	if !state.hasWrittenHTML() {
		gaps = append(gaps, "no HTML file created")
	}
	if !state.hasWrittenCSS() {
		gaps = append(gaps, "no CSS file created")
	}
	if !state.hasWrittenJS() {
		gaps = append(gaps, "no JS file created")
	}
	if !state.hasWrittenTestFile() {
		gaps = append(gaps, "no test file created")
	}
	if !state.LastValidationOk {
		gaps = append(gaps, "no successful validation")
	}
	if !state.LastTestOk {
		gaps = append(gaps, "no successful test run")
	}
	return gaps
}

func (c *Controller) coreFilesPresent() bool {
	for _, name := range strings.Fields(coreFiles) {
		res := c.Tools.CallTool("read_file", map[string]any{"relative_path": name, "max_bytes": 1})
		if !res.Ok {
			return false
		}
		if ok, _ := res.Result["ok"].(bool); !ok {
			return false
		}
	}
	return true
}

func (c *Controller) shouldSkipStage(stage Stage, state *IterationState) bool {
	switch stage {
	case StageValidate:
		return state.ShouldDeferValidation(c.coreFilesPresent())
	default:
		return false
	}
}

// runStage executes one stage's curated-tool LLM turn (with one
// empty-response retry) and dispatches every resulting tool call,
// reporting whether the stage made forward progress.
func (c *Controller) runStage(ctx context.Context, stage Stage, task string, plan *models.Plan, state *IterationState, iteration int) (bool, error) {
	if err := c.ProjectMem.Refresh(ctx); err != nil {
		c.emit(Event{Type: "status", Stage: string(stage), Text: "project memory refresh failed: " + err.Error()})
	}

	selected, err := c.selectTools(ctx, stage, task, plan)
	if err != nil {
		return false, fmt.Errorf("select tools for stage %s: %w", stage, err)
	}

	retrieval, _ := c.ProjectMem.Retrieve(ctx, plan.RetrievalQuery, 5)
	retrievalCtx := projectmemory.BuildRetrievalContext(c.WorkspaceRoot, retrieval, 2, 4000)

	prompt := c.buildStagePrompt(stage, task, plan, retrievalCtx)
	c.SessionMem.Append(models.SessionMessage{Role: models.RoleUser, Content: prompt})

	resp, err := c.chatWithRetry(ctx, stage, selected)
	if err != nil {
		return false, err
	}

	calls := NormalizeToolCalls(llm.ExtractToolCalls(resp))
	content := llm.StripThinkTags(resp.Content)
	c.SessionMem.Append(models.SessionMessage{
		Role:      models.RoleAssistant,
		Content:   content,
		ToolCalls: calls,
	})

	c.checkTermination(stage, strings.TrimSpace(content), len(calls), iteration, state)

	progressed := false
	for _, call := range calls {
		if !IsAllowed(stage, call.Name) {
			continue
		}
		sig := models.MarshalCanonicalKey(call.Name, call.Arguments)
		if streak := state.RecordToolSignature(sig); streak >= maxRepeatedSignature {
			continue
		}

		if mutateInPlaceTools[call.Name] {
			if rel, ok := call.Arguments["relative_path"].(string); ok && state.NeedsReadBeforeWrite(rel) {
				c.SessionMem.Append(models.SessionMessage{
					Role:    models.RoleTool,
					Name:    call.Name,
					Content: "deferred: re-read the current file content before issuing a structured edit",
				})
				continue
			}
		}

		if call.Name == "run_unit_tests" && state.ShouldDeferTests(state.ValidationPassedOnce, state.hasTestFileChangeSinceTests()) {
			c.SessionMem.Append(models.SessionMessage{
				Role:    models.RoleTool,
				Name:    call.Name,
				Content: "deferred: run_unit_tests requires a prior successful validation and a changed test file",
			})
			continue
		}

		result := c.Tools.CallTool(call.Name, call.Arguments)
		if c.ActionLog != nil {
			_ = c.ActionLog.Record(string(stage), call.Name, call.Arguments, result)
		}
		c.emit(Event{Type: "action", Stage: string(stage), Text: call.Name, Data: map[string]any{"arguments": call.Arguments, "ok": result.Ok}})

		if rel, ok := call.Arguments["relative_path"].(string); ok {
			if writeTools[call.Name] && result.Ok {
				if ok, _ := result.Result["ok"].(bool); ok {
					state.RecordWrite(rel)
					c.ProjectMem.MarkTouched(rel)
					progressed = true
				}
			}
			if readTools[call.Name] {
				state.RecordRead(rel)
			}
		}
		switch call.Name {
		case "validate_web_app":
			if result.Ok {
				ok, _ := result.Result["ok"].(bool)
				state.LastValidationOk = ok
				if ok {
					state.ValidationPassedOnce = true
				}
			}
		case "run_unit_tests":
			if result.Ok {
				state.TestRuns++
				state.ChangedFilesSinceTests = map[string]bool{}
				passed, _ := result.Result["passed"].(bool)
				state.LastTestOk = passed
			}
		}
		if stage == StageValidate {
			progressed = true
		}

		c.SessionMem.Append(models.SessionMessage{
			Role:    models.RoleTool,
			Name:    call.Name,
			Content: toolResultText(result),
		})
	}

	return progressed, nil
}

// checkTermination implements the completion-prefix / stop-prefix
// termination checks and forced-completion normalization: a stage turn
// whose content starts with StopPrefix ends the run immediately; one
// starting with CompletionPrefix ends it only once every completion gap
// is closed; and prose that reads as completion (no tool calls, some
// content) but carries neither prefix is normalized the same way rather
// than silently dropped.
func (c *Controller) checkTermination(stage Stage, content string, callCount int, iteration int, state *IterationState) {
	switch {
	case c.StopPrefix != "" && strings.HasPrefix(content, c.StopPrefix):
		state.StopSignaled = true
	case c.CompletionPrefix != "" && strings.HasPrefix(content, c.CompletionPrefix):
		if gaps := c.completionGaps(iteration, state); len(gaps) == 0 {
			state.CompletionSignaled = true
		} else {
			c.emit(Event{Type: "status", Stage: string(stage), Text: "completion claimed with gaps remaining: " + strings.Join(gaps, "; ")})
			c.SessionMem.Append(models.SessionMessage{Role: models.RoleUser, Content: "Not yet complete: " + strings.Join(gaps, "; ") + ". Continue working."})
		}
	case content != "" && callCount == 0:
		if gaps := c.completionGaps(iteration, state); len(gaps) == 0 {
			state.CompletionSignaled = true
			c.emit(Event{Type: "status", Stage: string(stage), Text: "normalized implicit completion (missing prefix)"})
		} else {
			c.SessionMem.Append(models.SessionMessage{Role: models.RoleUser, Content: "Continue: " + strings.Join(gaps, "; ") + "."})
		}
	}
}

// chatWithRetry issues the chat call and, if the model returns neither
// content nor tool calls, nudges it once before giving up.
func (c *Controller) chatWithRetry(ctx context.Context, stage Stage, tools []models.ToolDefinition) (*llm.ChatResponse, error) {
	resp, err := c.Client.Chat(ctx, llm.ChatRequest{
		Model:       c.Model,
		Messages:    c.SessionMem.Messages(),
		Tools:       tools,
		StreamLabel: string(stage),
	})
	if err != nil {
		return nil, fmt.Errorf("chat stage %s: %w", stage, err)
	}
	if strings.TrimSpace(resp.Content) == "" && len(resp.ToolCalls) == 0 {
		c.SessionMem.Append(models.SessionMessage{Role: models.RoleUser, Content: "Continue: call a tool or report what you completed."})
		resp, err = c.Client.Chat(ctx, llm.ChatRequest{
			Model:       c.Model,
			Messages:    c.SessionMem.Messages(),
			Tools:       tools,
			StreamLabel: string(stage),
		})
		if err != nil {
			return nil, fmt.Errorf("chat stage %s retry: %w", stage, err)
		}
	}
	return resp, nil
}

// selectTools runs candidate retrieval, reranking, and stage-forced
// inclusion, capped at TopKTools.
func (c *Controller) selectTools(ctx context.Context, stage Stage, task string, plan *models.Plan) ([]models.ToolDefinition, error) {
	var allDefs []models.ToolDefinition
	for _, s := range c.Tools.ListTools() {
		def, _ := c.Tools.Get(s.Name)
		allDefs = append(allDefs, def)
	}
	if err := c.Cache.EnsureVectors(ctx, allDefs); err != nil {
		return nil, err
	}

	candidates, err := c.Cache.RetrieveCandidates(ctx, plan.RetrievalQuery, allDefs, c.CandidatePoolSize)
	if err != nil {
		return nil, err
	}
	ranked, report := c.Reranker.Rerank(ctx, task, plan, candidates, c.TopKTools)
	c.emit(Event{Type: "status", Stage: string(stage), Text: "tool selection: " + string(report.Method)})

	selectedNames := map[string]bool{}
	for _, r := range ranked {
		selectedNames[r.Name] = true
	}
	for _, forced := range StageTools[stage] {
		selectedNames[forced] = true
	}

	var out []models.ToolDefinition
	for _, def := range allDefs {
		if selectedNames[def.Name] && IsAllowed(stage, def.Name) {
			out = append(out, def)
		}
	}
	if len(out) > c.TopKTools {
		out = out[:c.TopKTools]
	}
	return out, nil
}

func (c *Controller) buildStagePrompt(stage Stage, task string, plan *models.Plan, retrievalCtx string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Stage: %s\nTask: %s\nSubgoal: %s\nActive phase: %s\n", stage, task, plan.Subgoal, plan.ActivePhase)
	if len(plan.DevelopmentPhases) > 0 {
		sb.WriteString("Development phases: " + strings.Join(plan.DevelopmentPhases, ", ") + "\n")
	}
	sb.WriteString(retrievalCtx)
	switch stage {
	case StagePlan:
		sb.WriteString("\nConfirm the plan is workable, inspecting the workspace if useful.\n")
	case StageCode:
		sb.WriteString("\nImplement the current phase using the available file tools.\n")
	case StageValidate:
		sb.WriteString("\nValidate the application structure and run its unit tests if present.\n")
	}
	return sb.String()
}

func (c *Controller) synthesizeSummary(ctx context.Context, task, stopped string) string {
	resp, err := c.Client.Chat(ctx, llm.ChatRequest{
		Model: c.Model,
		Messages: append(c.SessionMem.Messages(), models.SessionMessage{
			Role:    models.RoleUser,
			Content: "Summarize what was built and any remaining work, in two or three sentences. No tool calls.",
		}),
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return fmt.Sprintf("Run ended (%s) for task %q after best-effort iteration.", stopped, task)
	}
	return llm.StripThinkTags(resp.Content)
}

func toolResultText(result models.ToolResult) string {
	if !result.Ok {
		if result.Error != nil {
			return fmt.Sprintf("transport error [%s]: %s", result.Error.Type, result.Error.Message)
		}
		return "transport error"
	}
	if ok, _ := result.Result["ok"].(bool); !ok {
		if msg, ok := result.Result["error"].(string); ok {
			return "failed: " + msg
		}
		return "failed"
	}
	return "ok"
}
