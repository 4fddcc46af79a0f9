// Command lowcortisol drives the staged coding-agent pipeline: given a task
// description and a sandboxed workspace directory, it plans, writes, and
// validates a small HTML/CSS/JS web application using a local chat model.
//
// Usage:
//
//	lowcortisol --workspace-root ./lch_demo --task "build a todo list app"
//	lowcortisol serve --config config.yaml
//	lowcortisol tools-serve --workspace-root ./lch_demo
//
// Environment variables (see internal/config):
//
//	LOW_CORTISOL_LLM_BASE_URL, LOW_CORTISOL_CHAT_MODEL, LOW_CORTISOL_EMBEDDING_MODEL,
//	LOW_CORTISOL_WORKSPACE_ROOTS_DIR, LOW_CORTISOL_DEVICE, LOW_CORTISOL_MAX_LOOPS,
//	LOW_CORTISOL_TOP_K_TOOLS, LOW_CORTISOL_GATEWAY_PORT, ORCHESTRATOR_FAST_MODE,
//	ORCHESTRATOR_MOCK_TOOLCALL
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lemonjerome/low-cortisol-html/internal/actionlog"
	"github.com/lemonjerome/low-cortisol-html/internal/config"
	"github.com/lemonjerome/low-cortisol-html/internal/devicedetect"
	"github.com/lemonjerome/low-cortisol-html/internal/gateway"
	"github.com/lemonjerome/low-cortisol-html/internal/llm"
	"github.com/lemonjerome/low-cortisol-html/internal/loop"
	"github.com/lemonjerome/low-cortisol-html/internal/planner"
	"github.com/lemonjerome/low-cortisol-html/internal/projectmemory"
	"github.com/lemonjerome/low-cortisol-html/internal/reranker"
	"github.com/lemonjerome/low-cortisol-html/internal/runstore"
	"github.com/lemonjerome/low-cortisol-html/internal/sandbox"
	"github.com/lemonjerome/low-cortisol-html/internal/toolcache"
	"github.com/lemonjerome/low-cortisol-html/internal/toolhost"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var flags struct {
	configPath     string
	workspaceRoot  string
	task           string
	chatModel      string
	embeddingModel string
	topKTools      int
	candidatePool  int
	device         string
	maxLoops       int
	warmup         bool
	mockToolCall   bool
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command and its subcommands.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lowcortisol",
		Short: "A local coding agent that builds HTML/CSS/JS apps inside a sandboxed workspace",
		Long: `lowcortisol drives a staged plan/code/validate pipeline against a local chat
model, executing sandboxed filesystem tools to build a small web application
inside a workspace directory whose name carries the lch_ prefix.

Run with --workspace-root and --task for a single direct run, or use the
serve subcommand to expose the same pipeline over an NDJSON HTTP gateway
for a browser front end.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		RunE:         runDirect,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.yaml (optional, $include-aware)")
	rootCmd.PersistentFlags().StringVar(&flags.workspaceRoot, "workspace-root", "", "path to the lch_-prefixed project workspace")
	rootCmd.PersistentFlags().StringVar(&flags.task, "task", "", "task description for the agent to build")
	rootCmd.PersistentFlags().StringVar(&flags.chatModel, "model", "", "override the configured chat model")
	rootCmd.PersistentFlags().StringVar(&flags.embeddingModel, "embedding-model", "", "override the configured embedding model")
	rootCmd.PersistentFlags().IntVar(&flags.topKTools, "top-k-tools", 0, "override the number of tools offered per turn")
	rootCmd.PersistentFlags().IntVar(&flags.candidatePool, "candidate-pool-size", 0, "override the retrieval candidate pool size")
	rootCmd.PersistentFlags().StringVar(&flags.device, "device", "", "inference device: auto, cuda, mps, or cpu")
	rootCmd.PersistentFlags().IntVar(&flags.maxLoops, "max-loops", 0, "override the maximum number of pipeline iterations")
	rootCmd.PersistentFlags().BoolVar(&flags.warmup, "warmup", false, "warm the chat and embedding models before running")
	rootCmd.PersistentFlags().BoolVar(&flags.mockToolCall, "mock-tool-call", false, "use the in-memory mock LLM client instead of Ollama")

	rootCmd.AddCommand(buildServeCmd(), buildToolsServeCmd())
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefaults(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.chatModel != "" {
		cfg.LLM.ChatModel = flags.chatModel
	}
	if flags.embeddingModel != "" {
		cfg.LLM.EmbeddingModel = flags.embeddingModel
	}
	if flags.topKTools > 0 {
		cfg.Loop.TopKTools = flags.topKTools
	}
	if flags.candidatePool > 0 {
		cfg.Loop.CandidatePoolSize = flags.candidatePool
	}
	if flags.device != "" {
		cfg.Device = flags.device
	}
	if flags.maxLoops > 0 {
		cfg.Loop.MaxLoops = flags.maxLoops
	}
	if flags.mockToolCall {
		cfg.MockTool = true
	}
	if flags.warmup {
		cfg.Warmup = true
	}
	return cfg, nil
}

func buildClient(cfg *config.Config) llm.Client {
	if cfg.MockTool {
		return llm.NewMockClient("DONE:")
	}
	client := llm.NewOllamaClient(cfg.LLM.BaseURL)
	client.Device = devicedetect.Resolve(cfg.Device)
	return client
}

func runDirect(cmd *cobra.Command, args []string) error {
	if flags.workspaceRoot == "" || flags.task == "" {
		return fmt.Errorf("--workspace-root and --task are required for a direct run")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := buildClient(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Warmup {
		if err := client.WarmupModels(ctx, cfg.LLM.ChatModel, cfg.LLM.EmbeddingModel); err != nil {
			slog.Warn("model warmup failed", "error", err)
		}
	}

	resolvedRoot, err := sandbox.ResolveWorkspaceRoot(flags.workspaceRoot)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}

	controller, alog, err := buildController(cfg, client, resolvedRoot, func(e loop.Event) {
		line, _ := json.Marshal(e)
		fmt.Fprintln(os.Stderr, string(line))
	})
	if err != nil {
		return err
	}
	if alog != nil {
		defer alog.Close()
	}

	result, err := controller.Run(ctx, flags.task)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	if store, serr := runstore.Open(filepath.Join(resolvedRoot, actionlog.DirName, "runs.db")); serr == nil {
		if _, rerr := store.Record(flags.task, result); rerr != nil {
			slog.Warn("record run failed", "error", rerr)
		}
		store.Close()
	} else {
		slog.Warn("open run store failed", "error", serr)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(out))
	if !result.Ok {
		os.Exit(1)
	}
	return nil
}

// buildController wires the sandbox, tool catalog, caches, and LLM-backed
// planning stages into a single Loop Controller rooted at root.
func buildController(cfg *config.Config, client llm.Client, root string, onEvent loop.EventSink) (*loop.Controller, *actionlog.Logger, error) {
	sb := sandbox.New(root)

	tools, err := toolhost.BuildCatalog(sb)
	if err != nil {
		return nil, nil, fmt.Errorf("build tool catalog: %w", err)
	}

	cachePath := filepath.Join(root, actionlog.DirName, "tool_embeddings.json")
	cache, err := toolcache.Load(cachePath, cfg.LLM.EmbeddingModel, client)
	if err != nil {
		return nil, nil, fmt.Errorf("load tool embedding cache: %w", err)
	}

	projectMem := projectmemory.New(root, cfg.LLM.EmbeddingModel, client)
	pl := planner.New(client, cfg.LLM.ChatModel, cfg.FastMode)
	rr := reranker.New(client, cfg.LLM.ChatModel)

	alog, err := actionlog.Open(root)
	if err != nil {
		return nil, nil, fmt.Errorf("open action log: %w", err)
	}

	ctrl := loop.New(root, tools, cache, projectMem, pl, rr, client, cfg.LLM.ChatModel)
	ctrl.TopKTools = cfg.Loop.TopKTools
	ctrl.CandidatePoolSize = cfg.Loop.CandidatePoolSize
	ctrl.MaxLoops = cfg.Loop.MaxLoops
	ctrl.MinIterations = cfg.Loop.MinBuildIterations
	ctrl.CompletionPrefix = cfg.Loop.CompletionPrefix
	ctrl.StopPrefix = cfg.Loop.StopPrefix
	ctrl.ActionLog = alog
	ctrl.OnEvent = onEvent

	return ctrl, alog, nil
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Stream Gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := buildClient(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.Warmup {
				if err := client.WarmupModels(ctx, cfg.LLM.ChatModel, cfg.LLM.EmbeddingModel); err != nil {
					slog.Warn("model warmup failed", "error", err)
				}
			}

			srv := gateway.New(cfg, client, slog.Default())
			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("start gateway: %w", err)
			}

			<-ctx.Done()
			srv.Stop(context.Background())
			return nil
		},
	}
}

func buildToolsServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools-serve",
		Short: "Serve the tool catalog over a single stdin/stdout JSON request-response",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.workspaceRoot == "" {
				return fmt.Errorf("--workspace-root is required")
			}
			resolvedRoot, err := sandbox.ResolveWorkspaceRoot(flags.workspaceRoot)
			if err != nil {
				return fmt.Errorf("resolve workspace root: %w", err)
			}
			sb := sandbox.New(resolvedRoot)
			host, err := toolhost.BuildCatalog(sb)
			if err != nil {
				return fmt.Errorf("build tool catalog: %w", err)
			}
			code := host.ServeStdio(os.Stdin, os.Stdout)
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
}
