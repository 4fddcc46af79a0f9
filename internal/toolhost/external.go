package toolhost

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lemonjerome/low-cortisol-html/internal/sandbox"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// ExternalToolsDirName is the workspace-relative directory BuildCatalog
// scans for external tool manifests. Absent is the common case: a plain
// workspace carries no external tools and LoadExternalTools is a no-op.
const ExternalToolsDirName = "external-tools"

// ExternalToolManifest describes one tool sourced from outside the
// built-in catalog (an MCP-style declared tool): its name, description,
// a full JSON Schema document for its arguments, and the sandboxed
// command used to invoke it. {{field}} tokens in Command are substituted
// with the matching argument's string form at call time.
type ExternalToolManifest struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	InputSchema    json.RawMessage `json:"input_schema"`
	Command        []string        `json:"command"`
	TimeoutSeconds int             `json:"timeout_seconds"`
}

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// LoadExternalTools reads every *.json manifest in dir and registers it
// against h via RegisterExternal, so its arguments are validated with the
// full jsonschema/v5 compiler rather than this package's built-in schema
// subset. A missing dir is not an error: external tools are optional.
func LoadExternalTools(h *Host, sb *sandbox.Sandbox, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read external tools dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read external tool manifest %s: %w", entry.Name(), err)
		}
		var manifest ExternalToolManifest
		if err := json.Unmarshal(raw, &manifest); err != nil {
			return fmt.Errorf("parse external tool manifest %s: %w", entry.Name(), err)
		}
		if manifest.Name == "" || len(manifest.Command) == 0 {
			return fmt.Errorf("external tool manifest %s: name and command are required", entry.Name())
		}
		if manifest.TimeoutSeconds == 0 {
			manifest.TimeoutSeconds = 30
		}

		def := models.ToolDefinition{
			Name:        manifest.Name,
			Description: manifest.Description,
			InputSchema: bestEffortSchema(manifest.InputSchema),
			Handler:     externalCommandHandler(sb, manifest),
		}
		if err := h.RegisterExternal(def, manifest.InputSchema); err != nil {
			return fmt.Errorf("register external tool %s: %w", manifest.Name, err)
		}
	}
	return nil
}

// externalCommandHandler builds the tool handler for one manifest: it
// substitutes argument values into the command template and runs it
// through the sandbox's filtered subprocess runner, the same path
// run_unit_tests uses.
func externalCommandHandler(sb *sandbox.Sandbox, manifest ExternalToolManifest) func(args map[string]any) models.ToolResult {
	return func(args map[string]any) models.ToolResult {
		argv := make([]string, len(manifest.Command))
		for i, token := range manifest.Command {
			argv[i] = substitutePlaceholders(token, args)
		}
		res, err := sb.RunSafeCommand(argv, "", manifest.TimeoutSeconds)
		if err != nil {
			return models.TransportError("InvalidArgument", err.Error())
		}
		return models.Ok(map[string]any{
			"exit_code": res.ExitCode,
			"stdout":    res.Stdout,
			"stderr":    res.Stderr,
			"timed_out": res.TimedOut,
		})
	}
}

func substitutePlaceholders(token string, args map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(token, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := args[name]; ok {
			return fmt.Sprint(v)
		}
		return match
	})
}

// bestEffortSchema decodes rawSchema into this package's schema subset for
// catalog display and embedding purposes only; call-time validation
// always uses the full document via ValidateExternalSchema. Keywords
// outside the subset (oneOf, pattern, $ref, ...) are silently ignored
// here, not rejected.
func bestEffortSchema(rawSchema json.RawMessage) *models.Schema {
	var schema models.Schema
	if err := json.Unmarshal(rawSchema, &schema); err != nil {
		return nil
	}
	return &schema
}
