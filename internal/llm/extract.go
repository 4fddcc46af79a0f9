package llm

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

var thinkTagPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)
var fencedCodeBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// StripThinkTags removes <think>...</think> reasoning blocks from model
// output before any tool-call extraction is attempted.
func StripThinkTags(content string) string {
	return thinkTagPattern.ReplaceAllString(content, "")
}

// ExtractFencedBlocks returns the content of every fenced code block,
// side-emitted for callers that want to surface code separately from
// prose, and the remaining text with those blocks removed.
func ExtractFencedBlocks(content string) (blocks []string, remainder string) {
	matches := fencedCodeBlockPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil, content
	}
	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(content[last:m[0]])
		blocks = append(blocks, strings.TrimSpace(content[m[2]:m[3]]))
		last = m[1]
	}
	sb.WriteString(content[last:])
	return blocks, sb.String()
}

// ExtractToolCalls implements extract_tool_calls: if the message already
// carries structured tool_calls, those are normalized and returned.
// Otherwise content is scanned for JSON objects shaped like tool
// invocations — directly, inside fenced code blocks, or as
// {tool_calls:[...]}/{function:{name,arguments}} shapes — deduped by
// canonical key. Extraction is best-effort and never panics or errors on
// malformed input; it simply returns fewer calls.
func ExtractToolCalls(resp *ChatResponse) []models.ToolCallRequest {
	if resp == nil {
		return nil
	}
	if len(resp.ToolCalls) > 0 {
		return dedupeToolCalls(resp.ToolCalls)
	}

	content := StripThinkTags(resp.Content)
	blocks, remainder := ExtractFencedBlocks(content)

	var found []models.ToolCallRequest
	for _, block := range blocks {
		found = append(found, scanForToolCalls(block)...)
	}
	found = append(found, scanForToolCalls(remainder)...)

	return dedupeToolCalls(found)
}

// candidateEnvelope covers the JSON shapes a model might emit for a tool
// call: {name,arguments}, {tool,arguments}, {function:{name,arguments}},
// or {tool_calls:[...]}.
type candidateEnvelope struct {
	Name      string          `json:"name"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
	ToolCalls []candidateEnvelope `json:"tool_calls"`
}

func scanForToolCalls(text string) []models.ToolCallRequest {
	var out []models.ToolCallRequest
	for _, snippet := range findBalancedBraceSnippets(text) {
		var env candidateEnvelope
		if err := json.Unmarshal([]byte(snippet), &env); err != nil {
			continue
		}
		out = append(out, flattenEnvelope(env)...)
	}
	return out
}

func flattenEnvelope(env candidateEnvelope) []models.ToolCallRequest {
	var out []models.ToolCallRequest
	if len(env.ToolCalls) > 0 {
		for _, nested := range env.ToolCalls {
			out = append(out, flattenEnvelope(nested)...)
		}
		return out
	}
	name := env.Name
	var argsRaw json.RawMessage
	if name == "" && env.Tool != "" {
		name = env.Tool
		argsRaw = env.Arguments
	} else if env.Function != nil {
		name = env.Function.Name
		argsRaw = env.Function.Arguments
	} else {
		argsRaw = env.Arguments
	}
	if name == "" {
		return nil
	}
	var args map[string]any
	if len(argsRaw) > 0 {
		_ = json.Unmarshal(argsRaw, &args)
	}
	if args == nil {
		args = map[string]any{}
	}
	out = append(out, models.ToolCallRequest{Name: name, Arguments: args})
	return out
}

// findBalancedBraceSnippets scans text for every top-level {...} span with
// balanced braces (ignoring braces inside string literals), used as the
// balanced-brace sub-parse fallback after a whole-string JSON parse fails.
func findBalancedBraceSnippets(text string) []string {
	var snippets []string
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
					snippets = append(snippets, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return snippets
}

func dedupeToolCalls(calls []models.ToolCallRequest) []models.ToolCallRequest {
	seen := map[string]struct{}{}
	var out []models.ToolCallRequest
	for _, c := range calls {
		key := canonicalKey(c.Name, c.Arguments)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// canonicalKey renders (name, arguments) with sorted keys so dedup is not
// sensitive to non-deterministic JSON field ordering.
func canonicalKey(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]any, len(args))
	for _, k := range keys {
		ordered[k] = args[k]
	}
	return models.MarshalCanonicalKey(name, ordered)
}
