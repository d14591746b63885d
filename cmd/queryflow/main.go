// Command queryflow runs the multi-agent query orchestration server: it
// loads configuration, wires the LLM gateway, tool registry, specialized
// agents, and compiled workflow graph, and serves the chat transport over
// HTTP.
//
// Usage:
//
//	queryflow serve --config config.yaml
//	queryflow version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/queryflowhq/queryflow"
	"github.com/queryflowhq/queryflow/pkg/agent/restagent"
	"github.com/queryflowhq/queryflow/pkg/agent/soapagent"
	"github.com/queryflowhq/queryflow/pkg/agent/sqlagent"
	"github.com/queryflowhq/queryflow/pkg/consolidator"
	"github.com/queryflowhq/queryflow/pkg/errs"
	"github.com/queryflowhq/queryflow/pkg/graph"
	"github.com/queryflowhq/queryflow/pkg/llm"
	"github.com/queryflowhq/queryflow/pkg/logger"
	"github.com/queryflowhq/queryflow/pkg/metrics"
	"github.com/queryflowhq/queryflow/pkg/orchestration"
	"github.com/queryflowhq/queryflow/pkg/planner"
	"github.com/queryflowhq/queryflow/pkg/registry"
	"github.com/queryflowhq/queryflow/pkg/runtimeconfig"
	"github.com/queryflowhq/queryflow/pkg/session"
	"github.com/queryflowhq/queryflow/pkg/tracing"
	"github.com/queryflowhq/queryflow/pkg/transport"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the chat orchestration server."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(queryflow.GetVersion())
	return nil
}

// ServeCmd starts the chat orchestration server.
type ServeCmd struct {
	ListenAddress string `name:"listen" help:"HTTP listen address." default:":8080"`

	Provider string `help:"LLM provider (anthropic, openai, gemini)." default:"openai"`
	Model    string `help:"Model name." default:"gpt-4o"`
	APIKey   string `name:"api-key" help:"Provider API key (defaults to the provider's standard env var)."`

	OTelEndpoint string `name:"otel-endpoint" help:"OTLP/gRPC collector endpoint for node execution traces; tracing is disabled if unset."`
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

	if err := runtimeconfig.LoadEnvFiles(); err != nil {
		return fmt.Errorf("loading .env files: %w", err)
	}

	rcfg := runtimeconfig.Defaults()
	if cli.Config != "" {
		loaded, err := runtimeconfig.Load(cli.Config)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		rcfg = loaded
	}

	provider, err := c.buildProvider()
	if err != nil {
		return fmt.Errorf("building LLM provider: %w", err)
	}

	reg, err := registry.NewToolRegistry(nil)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	mtr := metrics.New()

	tp, shutdownTracing, err := tracing.Init(ctx, "queryflow", c.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer shutdownTracing(context.Background())
	tracer := tp.Tracer("queryflow/graph")

	plnr := planner.New(provider, reg)
	plnr.OnPlanStep = mtr.RecordPlanStep
	sup := orchestration.New(plnr)
	sqlAgent := sqlagent.New(reg, provider)
	restAgent := restagent.New(reg, provider)
	soapAgent := soapagent.New(reg, provider)
	cons := consolidator.New(provider)

	gopts := rcfg.GraphOptions()
	gopts.OnNodeFinish = func(node graph.NodeName, d time.Duration, nodeErr error) {
		mtr.ObserveNodeDuration(node, d)
		if nodeErr != nil {
			kind := "UNKNOWN"
			if e, ok := errs.As(nodeErr); ok {
				kind = string(e.Kind)
			}
			mtr.RecordNodeError(node, kind)
		}
		tracing.RecordNodeSpan(tracer, node, d, nodeErr)
	}

	compiled, consolidatorNode, err := graph.Build(sup, sqlAgent, restAgent, soapAgent, cons, gopts)
	if err != nil {
		return fmt.Errorf("compiling workflow graph: %w", err)
	}

	sessions := session.NewRegistry()
	runner := transport.BindRunner(compiled, consolidatorNode)
	chatServer := transport.NewChatServer(sessions, runner, rcfg.ChatOptions(), slog.Default())

	// The compiled graph and chat server already captured a snapshot of
	// rcfg's options; a reload only takes effect for code that reads rcfg
	// afterward (the shutdown timeout below), not for in-flight or future
	// node executions. A config change that must reach the running graph
	// requires rebuilding and swapping the Compiled graph, which this
	// bootstrapper does not yet do.
	if cli.Config != "" {
		watcher, err := runtimeconfig.NewWatcher(cli.Config, func(newCfg *runtimeconfig.Config) {
			slog.Info("config reloaded", "path", cli.Config)
			rcfg = newCfg
		}, slog.Default())
		if err != nil {
			slog.Warn("config hot-reload disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	mux := chi.NewRouter()
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.HandlerFor(mtr.Registry(), promhttp.HandlerOpts{}))
	mux.Handle("/chat", chatServer)

	srv := &http.Server{Addr: c.ListenAddress, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), rcfg.GraphOptions().NodeTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("queryflow server ready", "address", c.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// buildProvider constructs the configured llm.Provider, reading the
// provider's API key from --api-key or its conventional environment
// variable.
func (c *ServeCmd) buildProvider() (llm.Provider, error) {
	apiKey := c.APIKey
	switch c.Provider {
	case "anthropic":
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return llm.NewAnthropicProvider(apiKey, c.Model, 4096, 0.7), nil
	case "gemini":
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		return llm.NewGeminiProvider(context.Background(), apiKey, c.Model, 4096, 0.7)
	case "openai":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return llm.NewOpenAIProvider(apiKey, c.Model, 4096, 0.7), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
}

func main() {
	cliArgs := CLI{}
	ctx := kong.Parse(&cliArgs,
		kong.Name("queryflow"),
		kong.Description("Multi-agent query orchestration server"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cliArgs.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	logger.Init(level, os.Stderr, "verbose")

	err = ctx.Run(&cliArgs)
	ctx.FatalIfErrorf(err)
}
