package toolhost

import (
	"fmt"
	"path/filepath"

	"github.com/lemonjerome/low-cortisol-html/internal/sandbox"
	execTools "github.com/lemonjerome/low-cortisol-html/internal/tools/exec"
	"github.com/lemonjerome/low-cortisol-html/internal/tools/files"
	"github.com/lemonjerome/low-cortisol-html/internal/tools/webapp"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

func req(required ...string) []string { return required }

// BuildCatalog registers every built-in tool against sb and returns the
// populated Host. Tool names here are the canonical names used in
// STAGE_TOOLS allow-lists and in the alias table.
func BuildCatalog(sb *sandbox.Sandbox) (*Host, error) {
	h := New()
	f := files.New(sb)
	w := webapp.New(sb)
	e := execTools.New(sb)

	defs := []models.ToolDefinition{
		{
			Name:        "create_file",
			Description: "Write UTF-8 text to a file in the workspace. Refuses to overwrite unless overwrite=true.",
			InputSchema: schemaObject(map[string]*models.Schema{
				"relative_path": stringSchema("Path relative to the workspace root."),
				"content":       stringSchema("File contents to write."),
				"overwrite":     boolSchema("Allow overwriting an existing file."),
			}, req("relative_path", "content")),
			Handler: f.CreateFile,
		},
		{
			Name:        "read_file",
			Description: "Read up to max_bytes bytes of a workspace file, UTF-8 lossy-decoded.",
			InputSchema: schemaObject(map[string]*models.Schema{
				"relative_path": stringSchema("Path relative to the workspace root."),
				"max_bytes":     integerSchema("Maximum bytes to read (1-200000)."),
			}, req("relative_path")),
			Handler: f.ReadFile,
		},
		{
			Name:        "list_directory",
			Description: "List entries of a workspace directory.",
			InputSchema: schemaObject(map[string]*models.Schema{
				"relative_path":  stringSchema("Directory relative to the workspace root."),
				"include_hidden": boolSchema("Include dotfiles and dot-directories."),
			}),
			Handler: f.ListDirectory,
		},
		{
			Name:        "append_to_file",
			Description: "Append text to a workspace file, creating it if needed.",
			InputSchema: schemaObject(map[string]*models.Schema{
				"relative_path":  stringSchema("Path relative to the workspace root."),
				"content":        stringSchema("Text to append."),
				"ensure_newline": boolSchema("Ensure a trailing newline before appending."),
			}, req("relative_path", "content")),
			Handler: f.AppendToFile,
		},
		{
			Name:        "insert_after_marker",
			Description: "Insert content immediately after the first or last occurrence of a marker string.",
			InputSchema: schemaObject(map[string]*models.Schema{
				"relative_path": stringSchema("Path relative to the workspace root."),
				"marker":        stringSchema("Literal marker text to search for."),
				"content":       stringSchema("Content to insert after the marker."),
				"occurrence":    stringSchema("Which occurrence to use: first or last."),
			}, req("relative_path", "marker", "content")),
			Handler: f.InsertAfterMarker,
		},
		{
			Name:        "replace_range",
			Description: "Replace a 1-based inclusive line range with new content.",
			InputSchema: schemaObject(map[string]*models.Schema{
				"relative_path": stringSchema("Path relative to the workspace root."),
				"start_line":    integerSchema("First line to replace (1-based, inclusive)."),
				"end_line":      integerSchema("Last line to replace (1-based, inclusive)."),
				"content":       stringSchema("Replacement content."),
				"allow_empty":   boolSchema("Allow an empty replacement (effectively a deletion)."),
			}, req("relative_path", "start_line", "end_line")),
			Handler: f.ReplaceRange,
		},
		{
			Name:        "scaffold_web_app",
			Description: "Create a minimal index.html/styles.css/app.js/tests.js set for files that do not already exist.",
			InputSchema: schemaObject(map[string]*models.Schema{
				"app_dir":   stringSchema("Directory relative to the workspace root."),
				"app_title": stringSchema("Title used in the scaffolded index.html."),
			}, req("app_dir")),
			Handler: w.ScaffoldWebApp,
		},
		{
			Name:        "validate_web_app",
			Description: "Verify required web-app files exist and index.html references styles.css and app.js.",
			InputSchema: schemaObject(map[string]*models.Schema{
				"app_dir": stringSchema("Directory relative to the workspace root."),
			}, req("app_dir")),
			Handler: w.ValidateWebApp,
		},
		{
			Name:        "run_unit_tests",
			Description: "Execute a test file with a node-like runner and report pass/fail.",
			InputSchema: schemaObject(map[string]*models.Schema{
				"test_file":       stringSchema("Test file path relative to the workspace root."),
				"timeout_seconds": integerSchema("Timeout in seconds (1-120)."),
			}, req("test_file")),
			Handler: e.RunUnitTests,
		},
		{
			Name:        "plan_web_build",
			Description: "Return a fixed 8-phase web-app build plan envelope.",
			InputSchema: schemaObject(map[string]*models.Schema{
				"summary":         stringSchema("One-line summary of the requested app."),
				"prompt_features": &models.Schema{Type: "array", Items: &models.Schema{Type: "string"}},
			}, req("summary")),
			Handler: w.PlanWebBuild,
		},
		{
			Name:        "sandbox_echo_path",
			Description: "Report existence and basic metadata for a workspace-relative path; used for sandbox probes.",
			InputSchema: schemaObject(map[string]*models.Schema{
				"relative_path": stringSchema("Path relative to the workspace root."),
			}, req("relative_path")),
			Handler: w.SandboxEchoPath,
		},
	}

	for _, def := range defs {
		if err := h.Register(def); err != nil {
			return nil, err
		}
	}

	if err := LoadExternalTools(h, sb, filepath.Join(sb.Root, ExternalToolsDirName)); err != nil {
		return nil, fmt.Errorf("load external tools: %w", err)
	}

	return h, nil
}
