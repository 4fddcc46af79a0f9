package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadOrDefaultsWithEmptyPathSkipsFile(t *testing.T) {
	cfg, err := LoadOrDefaults("")
	if err != nil {
		t.Fatalf("LoadOrDefaults(\"\") error = %v", err)
	}
	if cfg.Workspace.NamePrefix != "lch_" {
		t.Fatalf("expected default name prefix, got %q", cfg.Workspace.NamePrefix)
	}
	if cfg.LLM.ChatModel == "" {
		t.Fatalf("expected a default chat model")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `workspace:
  roots_dir: /tmp/projects
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.ChatModel == "" {
		t.Fatalf("expected a default chat model")
	}
	if cfg.Workspace.NamePrefix != "lch_" {
		t.Fatalf("expected default name prefix lch_, got %q", cfg.Workspace.NamePrefix)
	}
	if cfg.Loop.MaxLoops != 8 {
		t.Fatalf("expected default max_loops 8, got %d", cfg.Loop.MaxLoops)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `workspace:
  roots_dir: /tmp/projects
  bogus_field: true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadRejectsBadNamePrefix(t *testing.T) {
	path := writeConfig(t, `workspace:
  name_prefix: other_
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for name prefix not starting with lch_")
	}
}

func TestLoadRejectsBadDevice(t *testing.T) {
	path := writeConfig(t, `device: tpu`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid device")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("LOW_CORTISOL_CHAT_MODEL", "llama3.1:8b")
	t.Setenv("LOW_CORTISOL_TOP_K_TOOLS", "9")
	t.Setenv("ORCHESTRATOR_FAST_MODE", "true")

	path := writeConfig(t, `llm:
  chat_model: qwen2.5-coder:7b
loop:
  top_k_tools: 4
  candidate_pool_size: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.ChatModel != "llama3.1:8b" {
		t.Fatalf("expected chat model override, got %q", cfg.LLM.ChatModel)
	}
	if cfg.Loop.TopKTools != 9 {
		t.Fatalf("expected top_k_tools override, got %d", cfg.Loop.TopKTools)
	}
	if !cfg.FastMode {
		t.Fatalf("expected fast mode override")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("LOW_CORTISOL_TEST_BASE_URL", "http://127.0.0.1:9999")
	path := writeConfig(t, `llm:
  base_url: ${LOW_CORTISOL_TEST_BASE_URL}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.BaseURL != "http://127.0.0.1:9999" {
		t.Fatalf("expected expanded base url, got %q", cfg.LLM.BaseURL)
	}
}
