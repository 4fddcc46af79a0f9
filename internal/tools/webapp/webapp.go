// Package webapp implements the scaffold/validate/plan tools specific to
// generated HTML/CSS/JS applications, plus the sandbox_echo_path probe.
package webapp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lemonjerome/low-cortisol-html/internal/sandbox"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// Tools bundles the web-app tool handlers bound to one sandbox.
type Tools struct {
	SB *sandbox.Sandbox
}

func New(sb *sandbox.Sandbox) *Tools { return &Tools{SB: sb} }

func asString(v any) (string, bool) { s, ok := v.(string); return s, ok }

const (
	defaultIndexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>%s</title>
  <link rel="stylesheet" href="styles.css">
</head>
<body>
  <main id="app"></main>
  <script src="app.js"></script>
</body>
</html>
`
	defaultStylesCSS = `body {
  font-family: system-ui, sans-serif;
  margin: 0;
  padding: 2rem;
}
`
	defaultAppJS = `document.addEventListener('DOMContentLoaded', () => {
  const app = document.getElementById('app');
  if (app) {
    app.textContent = 'Ready.';
  }
});
`
	defaultTestsJS = `// Minimal smoke test; real assertions are added as features land.
function assertTrue(condition, message) {
  if (!condition) {
    throw new Error(message || 'assertion failed');
  }
}

assertTrue(true, 'sanity check');
console.log('tests passed');
`
)

// ScaffoldWebApp implements scaffold_web_app(app_dir, app_title?): create
// a minimal index.html/styles.css/app.js/tests.js set for any file that
// does not already exist.
func (t *Tools) ScaffoldWebApp(args map[string]any) models.ToolResult {
	appDir, _ := asString(args["app_dir"])
	title, _ := asString(args["app_title"])
	if title == "" {
		title = "Generated App"
	}
	if appDir == "" {
		appDir = "."
	}

	resolvedDir, err := t.SB.Resolve(appDir)
	if err != nil {
		return sandboxErr(err)
	}
	if err := os.MkdirAll(resolvedDir, 0o755); err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("create directory: %v", err), nil)
	}

	created := []string{}
	files := map[string]string{
		"index.html": fmt.Sprintf(defaultIndexHTML, title),
		"styles.css": defaultStylesCSS,
		"app.js":     defaultAppJS,
		"tests.js":   defaultTestsJS,
	}
	for name, content := range files {
		target := filepath.Join(resolvedDir, name)
		if _, statErr := os.Stat(target); statErr == nil {
			continue
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return models.Fail("ToolFailure", fmt.Sprintf("write %s: %v", name, err), nil)
		}
		created = append(created, filepath.Join(appDir, name))
	}
	return models.Ok(map[string]any{"app_dir": appDir, "created_files": toAnySlice(created)})
}

// ValidateWebApp implements validate_web_app(app_dir): verify the
// required files exist and index.html references both styles.css and
// app.js.
func (t *Tools) ValidateWebApp(args map[string]any) models.ToolResult {
	appDir, _ := asString(args["app_dir"])
	if appDir == "" {
		appDir = "."
	}
	resolvedDir, err := t.SB.Resolve(appDir)
	if err != nil {
		return sandboxErr(err)
	}

	required := []string{"index.html", "styles.css", "app.js"}
	var missing []string
	for _, name := range required {
		if _, statErr := os.Stat(filepath.Join(resolvedDir, name)); statErr != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return models.Fail("ToolFailure", "required files are missing", map[string]any{
			"missing_files": toAnySlice(missing),
		})
	}

	indexRaw, err := os.ReadFile(filepath.Join(resolvedDir, "index.html"))
	if err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("read index.html: %v", err), nil)
	}
	index := string(indexRaw)
	var missingRefs []string
	if !strings.Contains(index, "styles.css") {
		missingRefs = append(missingRefs, "<link> to styles.css")
	}
	if !strings.Contains(index, "app.js") {
		missingRefs = append(missingRefs, "<script> to app.js")
	}
	if len(missingRefs) > 0 {
		return models.Fail("ToolFailure", "index.html is missing required references", map[string]any{
			"missing_references": toAnySlice(missingRefs),
		})
	}
	return models.Ok(map[string]any{"app_dir": appDir})
}

// PlanWebBuild implements plan_web_build(summary, prompt_features?):
// returns a fixed 8-phase plan envelope.
func (t *Tools) PlanWebBuild(args map[string]any) models.ToolResult {
	summary, _ := asString(args["summary"])
	phases := []string{
		"scaffold", "structure", "styling", "interactivity",
		"data_and_state", "accessibility", "validation", "polish",
	}
	return models.Ok(map[string]any{
		"summary": summary,
		"phases":  toAnySlice(phases),
	})
}

// SandboxEchoPath implements sandbox_echo_path(relative_path), a metadata
// probe used by tests and the mock LLM provider's first scripted turn.
func (t *Tools) SandboxEchoPath(args map[string]any) models.ToolResult {
	rel, _ := asString(args["relative_path"])
	resolved, err := t.SB.Resolve(rel)
	if err != nil {
		return sandboxErr(err)
	}
	info, statErr := os.Stat(resolved)
	exists := statErr == nil
	result := map[string]any{"relative_path": rel, "exists": exists}
	if exists {
		result["is_dir"] = info.IsDir()
		result["size_bytes"] = info.Size()
	}
	return models.Ok(result)
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func sandboxErr(err error) models.ToolResult {
	if err == sandbox.ErrSandboxEscape {
		return models.TransportError("ValueError", "Path escapes workspace sandbox")
	}
	return models.TransportError("InvalidArgument", err.Error())
}
