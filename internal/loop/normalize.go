package loop

import (
	"sort"
	"strings"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// aliasTable maps a model-emitted tool name to the catalog's canonical
// name, per the normalization rule in step 7 of the per-stage algorithm.
var aliasTable = map[string]string{
	"edit_file":  "create_file",
	"write_file": "create_file",
	"save_file":  "create_file",
	"open_file":  "read_file",
	"view_file":  "read_file",
	"list_files": "list_directory",
}

// canonicalNames is used for substring fuzzy-matching an unrecognized
// name against the real catalog.
var canonicalNames = []string{
	"create_file", "read_file", "list_directory", "append_to_file",
	"insert_after_marker", "replace_range", "scaffold_web_app",
	"validate_web_app", "run_unit_tests", "plan_web_build", "sandbox_echo_path",
}

// ResolveToolName normalizes a model-emitted tool name to its canonical
// catalog name: exact alias match first, then substring fuzzy match,
// falling back to the name unchanged.
func ResolveToolName(name string) string {
	if canonical, ok := aliasTable[name]; ok {
		return canonical
	}
	for _, candidate := range canonicalNames {
		if candidate == name {
			return candidate
		}
	}
	lower := strings.ToLower(name)
	for _, candidate := range canonicalNames {
		if strings.Contains(candidate, lower) || strings.Contains(lower, candidate) {
			return candidate
		}
	}
	return name
}

// NormalizeArguments rewrites argument keys and values per step 7: map
// file_path -> relative_path, default overwrite=true for writes, and
// strip a leading "./", "/workspace/" or "workspace/" from relative_path.
// Other absolute paths are passed through unchanged.
func NormalizeArguments(toolName string, args map[string]any) map[string]any {
	if args == nil {
		args = map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}

	if v, ok := out["file_path"]; ok {
		if _, hasRel := out["relative_path"]; !hasRel {
			out["relative_path"] = v
		}
		delete(out, "file_path")
	}

	if rel, ok := out["relative_path"].(string); ok {
		out["relative_path"] = normalizePath(rel)
	}

	if toolName == "create_file" {
		if _, present := out["overwrite"]; !present {
			out["overwrite"] = true
		}
	}
	return out
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/workspace/")
	p = strings.TrimPrefix(p, "workspace/")
	return p
}

// NormalizeToolCalls resolves aliases, rewrites arguments, and dedupes by
// canonical (name, arguments) key, preserving first-seen order.
func NormalizeToolCalls(calls []models.ToolCallRequest) []models.ToolCallRequest {
	seen := map[string]bool{}
	var out []models.ToolCallRequest
	for _, c := range calls {
		name := ResolveToolName(c.Name)
		args := NormalizeArguments(name, c.Arguments)
		key := canonicalKey(name, args)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, models.ToolCallRequest{ID: c.ID, Name: name, Arguments: args})
	}
	return out
}

func canonicalKey(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return models.MarshalCanonicalKey(name, args)
}
