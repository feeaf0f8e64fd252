// Cortex is an event-driven automation engine: compiled "when X, if Y, do
// Z" rules run durably against events ingested from webhooks and polling.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cortexrun/cortex/pkg/api"
	"github.com/cortexrun/cortex/pkg/compiler"
	"github.com/cortexrun/cortex/pkg/config"
	"github.com/cortexrun/cortex/pkg/llm"
	"github.com/cortexrun/cortex/pkg/matcher"
	"github.com/cortexrun/cortex/pkg/models"
	"github.com/cortexrun/cortex/pkg/poller"
	"github.com/cortexrun/cortex/pkg/runtime"
	"github.com/cortexrun/cortex/pkg/scheduler"
	"github.com/cortexrun/cortex/pkg/shaper"
	"github.com/cortexrun/cortex/pkg/store"
	"github.com/cortexrun/cortex/pkg/toolexecutor"
	"github.com/cortexrun/cortex/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	gin.SetMode(getEnv("GIN_MODE", "debug"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting", "version", version.Full())

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	stats := cfg.Stats()
	slog.Info("configuration loaded",
		"providers", stats.Providers, "tools", stats.Tools,
		"llm_providers", stats.LLMProviders, "mcp_servers", stats.MCPServers)

	pgCfg, err := store.LoadPostgresConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	relational, err := store.NewPostgresStore(ctx, pgCfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := relational.Close(); err != nil {
			slog.Warn("error closing relational store", "error", err)
		}
	}()

	redisCfg, err := store.LoadRedisConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load Redis config: %v", err)
	}
	ephemeral, err := store.NewRedisEphemeralStore(ctx, redisCfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := ephemeral.Close(); err != nil {
			slog.Warn("error closing ephemeral store", "error", err)
		}
	}()

	s := store.NewWithRetention(relational, ephemeral, cfg.Retention)

	toolExecutor := buildToolExecutor(cfg)
	llmClient := buildLLMClient()
	compilerClient := buildCompilerClient()

	rt := runtime.New(s, toolExecutor, llmClient)
	m := matcher.New(s, rt)

	processEvent := func(ctx context.Context, e *models.Event) error {
		accepted, err := s.WriteEvent(ctx, e)
		if err != nil {
			return err
		}
		if !accepted {
			return nil
		}
		_, err = m.Match(ctx, e)
		return err
	}

	sh := shaper.New(s, processEvent)

	gateway := poller.NewNangoGateway(getEnv("NANGO_BASE_URL", "https://api.nango.dev"), os.Getenv("NANGO_SECRET_KEY"))
	p := poller.New(s, cfg.ProviderRegistry, gateway, processEvent, cfg.Queue.PollerInterval)
	sc := scheduler.New(s, relational, rt, cfg.Queue.SchedulerInterval)

	p.Start(ctx)
	go sc.Start(ctx)

	srv := api.NewServer(s, sh, m, rt, compilerClient, p, sc)
	httpServer := &http.Server{Addr: ":" + httpPort, Handler: srv.Handler()}

	go func() {
		slog.Info("http server listening", "port", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "error", err)
	}
	p.Stop()
	sc.Stop()
}

// buildToolExecutor prefers the real MCP-backed executor whenever at least
// one MCP server is configured, falling back to the in-process stub
// otherwise (e.g. local development without live tool backends).
func buildToolExecutor(cfg *config.Config) runtime.ToolExecutor {
	if cfg.Stats().MCPServers > 0 {
		return toolexecutor.NewMCPClient(cfg.MCPServerRegistry)
	}
	return toolexecutor.NewStubClient(cfg.ToolRegistry)
}

// buildLLMClient dials the external LLM gateway when LLM_GRPC_ADDR is set;
// otherwise falls back to the in-process stub.
func buildLLMClient() runtime.LLMClient {
	addr := os.Getenv("LLM_GRPC_ADDR")
	if addr == "" {
		return llm.NewStubClient()
	}
	c, err := llm.NewGRPCClient(addr)
	if err != nil {
		slog.Warn("failed to dial LLM gateway, falling back to stub", "addr", addr, "error", err)
		return llm.NewStubClient()
	}
	return c
}

// buildCompilerClient dials the external Compiler service when
// COMPILER_GRPC_ADDR is set; otherwise falls back to the lightweight
// in-process compiler.
func buildCompilerClient() compiler.Client {
	addr := os.Getenv("COMPILER_GRPC_ADDR")
	if addr == "" {
		return compiler.NewLightweightCompiler()
	}
	c, err := compiler.NewGRPCClient(addr)
	if err != nil {
		slog.Warn("failed to dial compiler service, falling back to lightweight compiler", "addr", addr, "error", err)
		return compiler.NewLightweightCompiler()
	}
	return c
}
