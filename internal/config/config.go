// Package config loads the orchestrator's YAML/JSON5 configuration file,
// resolving $include directives and environment overrides, and exposes
// the resolved settings every other package runs from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the orchestrator's full configuration surface.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	LLM       LLMConfig       `yaml:"llm"`
	Loop      LoopConfig      `yaml:"loop"`
	Memory    MemoryConfig    `yaml:"memory"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Device    string          `yaml:"device"`
	FastMode  bool            `yaml:"fast_mode"`
	MockTool  bool            `yaml:"mock_tool_call"`
	Warmup    bool            `yaml:"warmup"`
}

// WorkspaceConfig governs where projects live and how they're named.
type WorkspaceConfig struct {
	RootsDir   string `yaml:"roots_dir"`
	NamePrefix string `yaml:"name_prefix"`
}

// LLMConfig points at the local model server and names the two models in
// use: one for chat, one for embeddings.
type LLMConfig struct {
	BaseURL        string `yaml:"base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	NumCtx         int    `yaml:"num_ctx"`
	NumPredict     int    `yaml:"num_predict"`
}

// LoopConfig bounds the Loop Controller's iteration and tool-selection
// budgets.
type LoopConfig struct {
	MaxLoops                int    `yaml:"max_loops"`
	MinBuildIterations      int    `yaml:"min_build_iterations"`
	MaxNoProgressIterations int    `yaml:"max_no_progress_iterations"`
	MaxFilesPerIteration    int    `yaml:"max_files_per_iteration"`
	TopKTools               int    `yaml:"top_k_tools"`
	CandidatePoolSize       int    `yaml:"candidate_pool_size"`
	CompletionPrefix        string `yaml:"completion_prefix"`
	StopPrefix              string `yaml:"stop_prefix"`
}

// MemoryConfig bounds Session Memory's compaction behavior.
type MemoryConfig struct {
	SessionByteBudget int `yaml:"session_byte_budget"`
	SessionTailCount  int `yaml:"session_tail_count"`
}

// GatewayConfig configures the NDJSON streaming HTTP gateway.
type GatewayConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// Load reads path, resolves $include directives and ${VAR} environment
// expansion, decodes strictly (unknown fields are an error), applies
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefaults behaves like Load, except an empty path skips file
// loading entirely and starts from a zero Config before applying
// environment overrides, defaults, and validation. Useful for CLI entry
// points where a config file is optional.
func LoadOrDefaults(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := &Config{}
		applyEnvOverrides(cfg)
		applyDefaults(cfg)
		if err := validateConfig(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LOW_CORTISOL_LLM_BASE_URL")); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LOW_CORTISOL_CHAT_MODEL")); v != "" {
		cfg.LLM.ChatModel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOW_CORTISOL_EMBEDDING_MODEL")); v != "" {
		cfg.LLM.EmbeddingModel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOW_CORTISOL_WORKSPACE_ROOTS_DIR")); v != "" {
		cfg.Workspace.RootsDir = v
	}
	if v := strings.TrimSpace(os.Getenv("LOW_CORTISOL_DEVICE")); v != "" {
		cfg.Device = v
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_FAST_MODE")); v != "" {
		cfg.FastMode = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv("ORCHESTRATOR_MOCK_TOOLCALL")); v != "" {
		cfg.MockTool = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv("LOW_CORTISOL_MAX_LOOPS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Loop.MaxLoops = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOW_CORTISOL_TOP_K_TOOLS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Loop.TopKTools = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOW_CORTISOL_GATEWAY_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = n
		}
	}
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Workspace.RootsDir == "" {
		cfg.Workspace.RootsDir = "."
	}
	if cfg.Workspace.NamePrefix == "" {
		cfg.Workspace.NamePrefix = "lch_"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.ChatModel == "" {
		cfg.LLM.ChatModel = "qwen2.5-coder:7b"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.LLM.NumCtx == 0 {
		cfg.LLM.NumCtx = 8192
	}
	if cfg.LLM.NumPredict == 0 {
		cfg.LLM.NumPredict = 2048
	}
	if cfg.Loop.MaxLoops == 0 {
		cfg.Loop.MaxLoops = 8
	}
	if cfg.Loop.MinBuildIterations == 0 {
		cfg.Loop.MinBuildIterations = 2
	}
	if cfg.Loop.MaxNoProgressIterations == 0 {
		cfg.Loop.MaxNoProgressIterations = 3
	}
	if cfg.Loop.MaxFilesPerIteration == 0 {
		cfg.Loop.MaxFilesPerIteration = 10
	}
	if cfg.Loop.TopKTools == 0 {
		cfg.Loop.TopKTools = 6
	}
	if cfg.Loop.CandidatePoolSize == 0 {
		cfg.Loop.CandidatePoolSize = 12
	}
	if cfg.Loop.CompletionPrefix == "" {
		cfg.Loop.CompletionPrefix = "DONE:"
	}
	if cfg.Loop.StopPrefix == "" {
		cfg.Loop.StopPrefix = "STOP:"
	}
	if cfg.Memory.SessionByteBudget == 0 {
		cfg.Memory.SessionByteBudget = 30_000
	}
	if cfg.Memory.SessionTailCount == 0 {
		cfg.Memory.SessionTailCount = 12
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8787
	}
	if cfg.Gateway.MetricsPort == 0 {
		cfg.Gateway.MetricsPort = 9090
	}
	if cfg.Device == "" {
		cfg.Device = "auto"
	}
}

var validDevices = map[string]bool{"auto": true, "cuda": true, "mps": true, "cpu": true}

func validateConfig(cfg *Config) error {
	if !validDevices[cfg.Device] {
		return fmt.Errorf("device: must be one of auto, cuda, mps, cpu, got %q", cfg.Device)
	}
	if !strings.HasPrefix(cfg.Workspace.NamePrefix, "lch_") {
		return fmt.Errorf("workspace.name_prefix: must start with \"lch_\"")
	}
	if cfg.Loop.TopKTools < 1 {
		return fmt.Errorf("loop.top_k_tools: must be at least 1")
	}
	if cfg.Loop.CandidatePoolSize < cfg.Loop.TopKTools {
		return fmt.Errorf("loop.candidate_pool_size: must be at least loop.top_k_tools")
	}
	return nil
}
