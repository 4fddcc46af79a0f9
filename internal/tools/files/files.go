// Package files implements the workspace file-manipulation tools backed
// by the sandbox: create, read, list, append, marker-insert, and
// range-replace.
package files

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lemonjerome/low-cortisol-html/internal/sandbox"
	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

const (
	// MinReadBytes and MaxReadBytes bound read_file's max_bytes argument.
	MinReadBytes = 1
	MaxReadBytes = 200_000
)

func boolPtr(b bool) *bool { return &b }

func schemaObject(props map[string]*models.Schema, required ...string) *models.Schema {
	return &models.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: boolPtr(false),
	}
}

func stringSchema(desc string) *models.Schema  { return &models.Schema{Type: "string", Description: desc} }
func boolSchema(desc string) *models.Schema    { return &models.Schema{Type: "boolean", Description: desc} }
func integerSchema(desc string) *models.Schema { return &models.Schema{Type: "integer", Description: desc} }

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func asInt(v any, def int) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		_ = def
		return 0, false
	}
}

// Tools bundles the file tool handlers bound to one sandbox.
type Tools struct {
	SB *sandbox.Sandbox
}

// New builds the file tool set over sb.
func New(sb *sandbox.Sandbox) *Tools {
	return &Tools{SB: sb}
}

// CreateFile implements create_file(relative_path, content, overwrite?).
func (t *Tools) CreateFile(args map[string]any) models.ToolResult {
	rel, _ := asString(args["relative_path"])
	content, _ := asString(args["content"])
	overwrite := asBool(args["overwrite"], false)

	resolved, err := t.SB.Resolve(rel)
	if err != nil {
		return sandboxErr(err)
	}
	if err := sandbox.EnsureTextSizeWithinLimit(content); err != nil {
		return models.Fail("InvalidArgument", err.Error(), nil)
	}
	if !overwrite {
		if _, statErr := os.Stat(resolved); statErr == nil {
			return models.Fail("InvalidArgument", "file exists and overwrite is false", map[string]any{"relative_path": rel})
		}
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("create directory: %v", err), nil)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("write file: %v", err), nil)
	}
	return models.Ok(map[string]any{"relative_path": rel, "bytes_written": len(content)})
}

// ReadFile implements read_file(relative_path, max_bytes?).
func (t *Tools) ReadFile(args map[string]any) models.ToolResult {
	rel, _ := asString(args["relative_path"])
	maxBytes := MaxReadBytes
	if raw, present := args["max_bytes"]; present {
		n, ok := asInt(raw, MaxReadBytes)
		if !ok {
			return models.TransportError("InvalidArgument", "max_bytes must be an integer")
		}
		if n < MinReadBytes || n > MaxReadBytes {
			return models.Fail("InvalidArgument", fmt.Sprintf("max_bytes must be between %d and %d", MinReadBytes, MaxReadBytes), nil)
		}
		maxBytes = n
	}

	resolved, err := t.SB.Resolve(rel)
	if err != nil {
		return sandboxErr(err)
	}
	f, err := os.Open(resolved)
	if err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("open file: %v", err), map[string]any{"relative_path": rel})
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("stat file: %v", err), nil)
	}

	buf := make([]byte, maxBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return models.Fail("ToolFailure", fmt.Sprintf("read file: %v", err), nil)
	}
	truncated := info.Size() > int64(n)
	return models.Ok(map[string]any{
		"relative_path": rel,
		"content":       string(buf[:n]),
		"truncated":     truncated,
		"size_bytes":    info.Size(),
	})
}

// ListDirectory implements list_directory(relative_path?, include_hidden?).
func (t *Tools) ListDirectory(args map[string]any) models.ToolResult {
	rel, _ := asString(args["relative_path"])
	includeHidden := asBool(args["include_hidden"], false)

	if rel == "" {
		rel = "."
	}
	resolved, err := t.SB.Resolve(rel)
	if err != nil {
		return sandboxErr(err)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("list directory: %v", err), nil)
	}
	type entry struct {
		Name  string `json:"name"`
		IsDir bool   `json:"is_dir"`
		IsFile bool  `json:"is_file"`
	}
	var out []entry
	for _, e := range entries {
		if !includeHidden && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, entry{Name: e.Name(), IsDir: e.IsDir(), IsFile: !e.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	entriesAny := make([]any, len(out))
	for i, e := range out {
		entriesAny[i] = map[string]any{"name": e.Name, "is_dir": e.IsDir, "is_file": e.IsFile}
	}
	return models.Ok(map[string]any{"relative_path": rel, "entries": entriesAny})
}

// AppendToFile implements append_to_file(relative_path, content, ensure_newline?).
func (t *Tools) AppendToFile(args map[string]any) models.ToolResult {
	rel, _ := asString(args["relative_path"])
	content, _ := asString(args["content"])
	ensureNewline := asBool(args["ensure_newline"], false)

	resolved, err := t.SB.Resolve(rel)
	if err != nil {
		return sandboxErr(err)
	}
	if ensureNewline && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	existing, _ := os.ReadFile(resolved)
	if err := sandbox.EnsureTextSizeWithinLimit(string(existing) + content); err != nil {
		return models.Fail("InvalidArgument", err.Error(), nil)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("create directory: %v", err), nil)
	}
	f, err := os.OpenFile(resolved, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("open file: %v", err), nil)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("append file: %v", err), nil)
	}
	return models.Ok(map[string]any{"relative_path": rel, "bytes_appended": len(content)})
}

// InsertAfterMarker implements insert_after_marker(relative_path, marker,
// content, occurrence). It fails (semantic ToolFailure) if marker is absent.
func (t *Tools) InsertAfterMarker(args map[string]any) models.ToolResult {
	rel, _ := asString(args["relative_path"])
	marker, _ := asString(args["marker"])
	content, _ := asString(args["content"])
	occurrence, _ := asString(args["occurrence"])
	if occurrence == "" {
		occurrence = "first"
	}

	resolved, err := t.SB.Resolve(rel)
	if err != nil {
		return sandboxErr(err)
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("open file: %v", err), nil)
	}
	text := string(raw)

	var idx int
	switch occurrence {
	case "last":
		idx = strings.LastIndex(text, marker)
	default:
		idx = strings.Index(text, marker)
	}
	if idx < 0 {
		return models.Fail("ToolFailure", "marker not found in file", map[string]any{"relative_path": rel, "marker": marker})
	}
	insertAt := idx + len(marker)
	newText := text[:insertAt] + content + text[insertAt:]
	if err := sandbox.EnsureTextSizeWithinLimit(newText); err != nil {
		return models.Fail("InvalidArgument", err.Error(), nil)
	}
	if err := os.WriteFile(resolved, []byte(newText), 0o644); err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("write file: %v", err), nil)
	}
	return models.Ok(map[string]any{"relative_path": rel, "inserted_at": insertAt})
}

// ReplaceRange implements replace_range(relative_path, start_line,
// end_line, content, allow_empty?). Lines are 1-based inclusive;
// out-of-range bounds are clamped and reported via effective_start_line /
// effective_end_line.
func (t *Tools) ReplaceRange(args map[string]any) models.ToolResult {
	rel, _ := asString(args["relative_path"])
	startLine, _ := asInt(args["start_line"], 1)
	endLine, _ := asInt(args["end_line"], startLine)
	content, _ := asString(args["content"])
	allowEmpty := asBool(args["allow_empty"], false)

	if endLine < startLine {
		return models.Fail("InvalidArgument", "end_line must be >= start_line", nil)
	}
	if content == "" && !allowEmpty {
		return models.Fail("InvalidArgument", "empty replacement requires allow_empty", nil)
	}

	resolved, err := t.SB.Resolve(rel)
	if err != nil {
		return sandboxErr(err)
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("open file: %v", err), nil)
	}
	lines := strings.Split(string(raw), "\n")
	total := len(lines)

	effectiveStart := startLine
	if effectiveStart < 1 {
		effectiveStart = 1
	}
	if effectiveStart > total {
		effectiveStart = total
	}
	effectiveEnd := endLine
	if effectiveEnd > total {
		effectiveEnd = total
	}
	if effectiveEnd < effectiveStart {
		effectiveEnd = effectiveStart
	}

	before := lines[:effectiveStart-1]
	after := lines[effectiveEnd:]
	var replacement []string
	if content != "" {
		replacement = strings.Split(content, "\n")
	}

	newLines := append(append(append([]string{}, before...), replacement...), after...)
	newText := strings.Join(newLines, "\n")
	if err := sandbox.EnsureTextSizeWithinLimit(newText); err != nil {
		return models.Fail("InvalidArgument", err.Error(), nil)
	}
	if err := os.WriteFile(resolved, []byte(newText), 0o644); err != nil {
		return models.Fail("ToolFailure", fmt.Sprintf("write file: %v", err), nil)
	}
	return models.Ok(map[string]any{
		"relative_path":       rel,
		"effective_start_line": effectiveStart,
		"effective_end_line":   effectiveEnd,
	})
}

func sandboxErr(err error) models.ToolResult {
	switch err {
	case sandbox.ErrSandboxEscape:
		return models.TransportError("ValueError", "Path escapes workspace sandbox")
	case sandbox.ErrEmptyPath, sandbox.ErrPathTooLong, sandbox.ErrPathNullByte, sandbox.ErrPathAbsolute:
		return models.TransportError("InvalidArgument", err.Error())
	default:
		return models.TransportError("InvalidArgument", err.Error())
	}
}
