// Command orchestratord serves the knowledge-base question-answering
// orchestrator over HTTP/SSE.
//
// Usage:
//
//	orchestratord serve --config config.yaml
//	orchestratord validate --config config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kbagents/orchestrator/pkg/apierror"
	"github.com/kbagents/orchestrator/pkg/auth"
	"github.com/kbagents/orchestrator/pkg/config"
	"github.com/kbagents/orchestrator/pkg/faq"
	"github.com/kbagents/orchestrator/pkg/llm"
	"github.com/kbagents/orchestrator/pkg/logger"
	"github.com/kbagents/orchestrator/pkg/observability"
	"github.com/kbagents/orchestrator/pkg/orchestration/agentexec"
	"github.com/kbagents/orchestrator/pkg/orchestration/agentregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/dag"
	"github.com/kbagents/orchestrator/pkg/orchestration/evaluator"
	"github.com/kbagents/orchestrator/pkg/orchestration/intent"
	"github.com/kbagents/orchestrator/pkg/orchestration/orchestrator"
	"github.com/kbagents/orchestrator/pkg/orchestration/parallel"
	"github.com/kbagents/orchestrator/pkg/orchestration/permission"
	"github.com/kbagents/orchestrator/pkg/orchestration/sqlstore"
	"github.com/kbagents/orchestrator/pkg/orchestration/toolregistry"
	"github.com/kbagents/orchestrator/pkg/orchestration/types"
	"github.com/kbagents/orchestrator/pkg/orchestration/writer"
	"github.com/kbagents/orchestrator/pkg/server"
	"github.com/kbagents/orchestrator/pkg/tools"
	"github.com/kbagents/orchestrator/pkg/vectorstore"
	"github.com/kbagents/orchestrator/pkg/webcontent"
)

// CLI mirrors hector's kong-based shape (cmd/hector/main.go): a handful of
// subcommands sharing a --config flag and logger overrides.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the orchestration server."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"orchestrator.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or custom)."`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	fmt.Printf("orchestratord version %s\n", version)
	return nil
}

// ValidateCmd loads and validates a config file without starting anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	loader, err := config.NewLoader(config.LoaderOptions{Path: cli.Config})
	if err != nil {
		return err
	}
	if _, err := loader.Load(); err != nil {
		return fmt.Errorf("config is invalid: %w", err)
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}

// ServeCmd starts the HTTP/SSE server.
type ServeCmd struct {
	Port int `help:"Override the configured port." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	loader, err := config.NewLoader(config.LoaderOptions{Path: cli.Config})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	level, err := logger.ParseLevel(firstNonEmpty(cli.LogLevel, cfg.Logger.Level))
	if err != nil {
		return err
	}
	var logOutput *os.File
	logFile := firstNonEmpty(cli.LogFile, cfg.Logger.File)
	if logFile != "" {
		f, cleanup, err := logger.OpenLogFile(logFile)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer cleanup()
		logOutput = f
	}
	logger.Init(level, logOutput, firstNonEmpty(cli.LogFormat, cfg.Logger.Format))
	log := logger.GetLogger()

	if cfg.AppMode == "develop" {
		apierror.SetAppMode(apierror.ModeDevelopment)
	} else {
		apierror.SetAppMode(apierror.ModeProduction)
	}

	dbPool := config.NewDBPool()
	defer dbPool.Close()

	db, err := dbPool.Get(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	store, err := sqlstore.New(ctx, db, cfg.Storage.DriverName())
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}

	faqSyncer := faq.NewSyncer(sqlstore.FAQStore{Store: store}, sqlstore.QueryLogRepository{Store: store}, log)
	queryLogWriter := writer.NewQueryLogWriter(sqlstore.QueryLogRepository{Store: store}, sqlstore.QueryLogRepository{Store: store}, faqSyncer, log)
	traceWriter := writer.NewTraceWriter(sqlstore.TraceRepository{Store: store}, log)
	queryLogWriter.Start(ctx, writer.QueryLogFlushInterval)
	defer queryLogWriter.Stop()
	traceWriter.Start(ctx, writer.TraceFlushInterval)
	defer traceWriter.Stop()

	toolReg, err := buildToolRegistry(cfg, log)
	if err != nil {
		return fmt.Errorf("building tools: %w", err)
	}
	agentReg := agentregistry.New(toolReg)
	perms := permission.New()

	defaultLLM, err := buildChatClient(cfg, "default")
	if err != nil {
		return fmt.Errorf("building default llm: %w", err)
	}
	byKindLLM := map[types.AgentKind]agentexec.ChatClient{}
	for _, kind := range types.AllAgentKinds {
		if name, ok := cfg.AgentLLMs[kind]; ok && name != "" && name != "default" {
			c, err := buildChatClient(cfg, name)
			if err != nil {
				return fmt.Errorf("building llm for agent kind %s: %w", kind, err)
			}
			byKindLLM[kind] = c
		}
	}
	executor := agentexec.New(agentReg, toolReg, perms, defaultLLM, log).WithAgentLLMs(byKindLLM)

	var classifier *intent.Classifier
	var synthesisLLM orchestrator.SynthesisLLM
	var nextActionsLLM orchestrator.NextActionLLM
	var agentKindLLM orchestrator.AgentKindLLM

	if cfg.SynthesisLLM != "" {
		c, err := buildLLMClient(cfg, cfg.SynthesisLLM)
		if err != nil {
			return fmt.Errorf("building synthesis llm: %w", err)
		}
		if c != nil {
			synthesisLLM = c
		}
	}
	if cfg.NextActionsLLM != "" {
		c, err := buildLLMClient(cfg, cfg.NextActionsLLM)
		if err != nil {
			return fmt.Errorf("building next-actions llm: %w", err)
		}
		if c != nil {
			nextActionsLLM = c
		}
	}

	defaultClient, err := buildLLMClient(cfg, "default")
	if err != nil {
		return fmt.Errorf("building default llm: %w", err)
	}
	var decomposer dag.LLMDecomposer
	var llmEvaluator evaluator.LLMEvaluator
	if defaultClient != nil {
		classifier = intent.New(defaultClient, log)
		agentKindLLM = defaultClient
		decomposer = defaultClient
		llmEvaluator = defaultClient
	}

	dagBuilder := dag.New(decomposer, cfg.Orchestration.MaxSubtasks > 0)
	parallelExe := parallel.New(executor, evaluator.NewSynthesisEvaluator())
	eval := evaluator.New(llmEvaluator)

	var webFetcher orchestrator.WebFetcher
	if cfg.Tools.WebFetch.TimeoutSeconds > 0 {
		webFetcher = webcontent.New(webcontent.Config{Timeout: cfg.Tools.WebFetch.Timeout()})
	}

	orch := orchestrator.New(
		agentReg, toolReg, perms, executor, classifier, dagBuilder, parallelExe, eval,
		synthesisLLM, nextActionsLLM, webFetcher,
		&queryLoggerAdapter{w: queryLogWriter}, agentKindLLM,
		traceWriter,
	)

	var validator *auth.JWTValidator
	if cfg.Server.Auth != nil {
		validator, err = auth.NewValidatorFromConfig(cfg.Server.Auth)
		if err != nil {
			return fmt.Errorf("building auth validator: %w", err)
		}
	}

	var obs *observability.Manager
	if cfg.Observability != nil {
		obs, err = observability.NewFromConfig(ctx, cfg.Observability)
		if err != nil {
			return fmt.Errorf("building observability manager: %w", err)
		}
		defer obs.Shutdown(context.Background())
	}

	srv := server.NewHTTPServer(&cfg.Server, orch, validator, obs, log)

	fmt.Printf("\norchestratord ready on %s\n", cfg.Server.Address())
	fmt.Printf("  health:    http://%s/health\n", cfg.Server.Address())
	fmt.Printf("  classify:  http://%s/v1/classify\n", cfg.Server.Address())
	fmt.Printf("  execute:   http://%s/v1/agents/execute\n", cfg.Server.Address())
	fmt.Printf("  stream:    http://%s/v1/agents/stream\n", cfg.Server.Address())
	if obs != nil && obs.MetricsEnabled() {
		fmt.Printf("  metrics:   http://%s%s\n", cfg.Server.Address(), obs.MetricsEndpoint())
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// buildLLMClient constructs an *llm.Client for the named LLM config entry,
// returning (nil, nil) if cfg.LLMs has no such entry.
func buildLLMClient(cfg *config.Config, name string) (*llm.Client, error) {
	llmCfg, ok := cfg.LLMs[name]
	if !ok {
		return nil, nil
	}
	provider, err := llm.New(llmCfg.ToProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("llm %q: %w", name, err)
	}
	return llm.NewClient(provider), nil
}

// buildChatClient resolves and constructs the ChatClient bound to a named
// LLM config entry, defaulting that config entry's name to "default".
func buildChatClient(cfg *config.Config, name string) (agentexec.ChatClient, error) {
	c, err := buildLLMClient(cfg, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("no llm named %q configured", name)
	}
	return c, nil
}

// buildToolRegistry constructs every tool implementation named by
// SPEC_FULL.md §6 and registers it. Tools needing infrastructure this
// config doesn't name (vector store, graph, issue tracker) are skipped,
// leaving agents that depend on them to fail at permission/lookup time
// rather than at startup.
func buildToolRegistry(cfg *config.Config, log *slog.Logger) (*toolregistry.Registry, error) {
	reg := toolregistry.New(log)

	reg.Register(tools.NewWebFetch(tools.WebFetchConfig{
		Timeout:         cfg.Tools.WebFetch.Timeout(),
		MaxRetries:      cfg.Tools.WebFetch.MaxRetries,
		MaxResponseSize: cfg.Tools.WebFetch.MaxResponseSize,
		AllowedDomains:  cfg.Tools.WebFetch.AllowedDomains,
		DeniedDomains:   cfg.Tools.WebFetch.DeniedDomains,
		AllowRedirects:  cfg.Tools.WebFetch.AllowRedirects,
		MaxRedirects:    cfg.Tools.WebFetch.MaxRedirects,
	}))

	shellDenyCfg := tools.ShellConfig{
		DeniedCommands: append(append([]string{}, tools.DefaultDeniedCommands...), cfg.Tools.Shell.ExtraDeniedCommands...),
		WorkingDir:     cfg.Tools.Shell.WorkingDir,
		Timeout:        cfg.Tools.Shell.Timeout(),
	}
	if cfg.Tools.ShellPlugin.Enabled {
		reg.Register(tools.NewPluginShell(cfg.Tools.ShellPlugin.Path, shellDenyCfg))
	} else {
		reg.Register(tools.NewShell(shellDenyCfg))
	}

	for _, mcpCfg := range cfg.Tools.MCP {
		reg.RegisterForKinds(tools.NewMCPProxy(mcpCfg.Name, mcpCfg.Command, mcpCfg.Args), types.AgentCode, types.AgentPlanner)
	}

	if cfg.Tools.IMS.BaseURL != "" {
		reg.Register(tools.NewIMSSearch(tools.IMSSearchConfig{
			BaseURL:    cfg.Tools.IMS.BaseURL,
			APIKey:     cfg.Tools.IMS.APIKey,
			Timeout:    cfg.Tools.IMS.Timeout(),
			MaxRetries: cfg.Tools.IMS.MaxRetries,
		}))
	}

	if cfg.Tools.DocumentStore.RootDir != "" {
		reg.Register(tools.NewDocumentRead(tools.NewFilesystemDocumentStore(cfg.Tools.DocumentStore.RootDir)))
	}

	if vsCfg, ok := cfg.VectorStores["default"]; ok {
		provider, err := buildVectorStore(cfg, vsCfg)
		if err != nil {
			return nil, err
		}
		reg.Register(tools.NewVectorSearch(provider))
		reg.Register(tools.NewGraphQuery(vectorstore.NewGraphProvider(provider)))
	}

	return reg, nil
}

func buildVectorStore(cfg *config.Config, vsCfg *config.VectorStoreConfig) (vectorstore.Provider, error) {
	var embedder vectorstore.Embedder
	if vsCfg.Embedder != "" {
		embCfg, ok := cfg.Embedders[vsCfg.Embedder]
		if !ok {
			return nil, fmt.Errorf("vector store references undefined embedder %q", vsCfg.Embedder)
		}
		e, err := vectorstore.NewOpenAIEmbedder(embCfg.ToEmbedderConfig())
		if err != nil {
			return nil, fmt.Errorf("building embedder %q: %w", vsCfg.Embedder, err)
		}
		embedder = e
	}
	return vectorstore.New(vsCfg.ToVectorStoreConfig(), embedder)
}

// queryLoggerAdapter narrows writer.QueryLogWriter to orchestrator.QueryLogger,
// converting orchestrator's AgentKind/derived-intent shape into the writer's
// plain-string row shape.
type queryLoggerAdapter struct {
	w *writer.QueryLogWriter
}

func (a *queryLoggerAdapter) LogQuery(ctx context.Context, rec orchestrator.QueryLogRecord) {
	a.w.Log(ctx, writer.QueryLogRecord{
		QueryText:       rec.QueryText,
		UserID:          rec.UserID,
		SessionID:       rec.SessionID,
		AgentKind:       string(rec.AgentKind),
		IntentType:      rec.IntentType,
		Category:        rec.Category,
		Language:        rec.Language,
		ExecutionTimeMS: rec.ExecutionTimeMS,
		Success:         rec.Success,
		ResponseSummary: rec.ResponseSummary,
	})
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("orchestratord"),
		kong.Description("Multi-agent knowledge-base orchestration server"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
