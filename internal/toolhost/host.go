// Package toolhost is the catalog of named tools, per-tool schema
// validation, dispatch, and the structured two-layer result envelope
// every call returns. It never lets a handler panic escape across the
// tool boundary uncaught.
package toolhost

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lemonjerome/low-cortisol-html/pkg/models"
)

// Host holds a name-unique tool catalog.
type Host struct {
	mu             sync.RWMutex
	tools          map[string]models.ToolDefinition
	order          []string
	externalSchema map[string][]byte
}

// New builds an empty Host.
func New() *Host {
	return &Host{tools: map[string]models.ToolDefinition{}}
}

// Register adds a tool to the catalog. Registering a name twice is an
// error: tool names are unique within a catalog and immutable once
// registered.
func (h *Host) Register(def models.ToolDefinition) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q has no handler", def.Name)
	}
	h.tools[def.Name] = def
	h.order = append(h.order, def.Name)
	return nil
}

// RegisterExternal adds a tool sourced from outside the built-in catalog
// (e.g. an MCP-style list_tools payload), validating its calls against the
// full JSON Schema document rawSchema rather than this package's built-in
// schema subset. def.InputSchema may be left nil; it's only used for the
// catalog summary sent to the chat endpoint, not for call-time validation.
func (h *Host) RegisterExternal(def models.ToolDefinition, rawSchema []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q has no handler", def.Name)
	}
	h.tools[def.Name] = def
	h.order = append(h.order, def.Name)
	if h.externalSchema == nil {
		h.externalSchema = map[string][]byte{}
	}
	h.externalSchema[def.Name] = rawSchema
	return nil
}

// ToolSummary is the name/description/schema triple ListTools returns.
type ToolSummary struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema *models.Schema `json:"input_schema"`
}

// ListTools returns every registered tool's summary, in registration order.
func (h *Host) ListTools() []ToolSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ToolSummary, 0, len(h.order))
	for _, name := range h.order {
		def := h.tools[name]
		out = append(out, ToolSummary{Name: def.Name, Description: def.Description, InputSchema: def.InputSchema})
	}
	return out
}

// Get returns a single tool's definition, for callers (e.g. the Embedding
// Cache) that need the schema without going through CallTool.
func (h *Host) Get(name string) (models.ToolDefinition, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	def, ok := h.tools[name]
	return def, ok
}

// Names returns every registered tool name in a stable sorted order.
func (h *Host) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.tools))
	for name := range h.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallTool validates arguments against the tool's schema and invokes its
// handler, recovering any panic into a transport-layer ToolFailure so a
// single bad tool can never bring down a run.
func (h *Host) CallTool(name string, args map[string]any) (result models.ToolResult) {
	h.mu.RLock()
	def, ok := h.tools[name]
	h.mu.RUnlock()
	if !ok {
		return models.TransportError("ToolNotFound", fmt.Sprintf("unknown tool %q", name))
	}

	h.mu.RLock()
	rawSchema, isExternal := h.externalSchema[name]
	h.mu.RUnlock()
	if isExternal {
		if err := ValidateExternalSchema(rawSchema, args); err != nil {
			return models.TransportError("InvalidArgument", err.Error())
		}
	} else if err := ValidateArguments(def.InputSchema, args); err != nil {
		return models.TransportError("InvalidArgument", err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			result = models.TransportError("ToolFailure", fmt.Sprintf("tool %q panicked: %v", name, r))
		}
	}()

	return def.Handler(args)
}
