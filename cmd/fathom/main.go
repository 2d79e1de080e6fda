// Fathom server: streams LLM investigation runs over LUSID data,
// executing catalog and SQL tools mid-turn and persisting transcripts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/finbourne-labs/fathom/pkg/api"
	"github.com/finbourne-labs/fathom/pkg/catalog"
	"github.com/finbourne-labs/fathom/pkg/config"
	"github.com/finbourne-labs/fathom/pkg/database"
	"github.com/finbourne-labs/fathom/pkg/llm"
	"github.com/finbourne-labs/fathom/pkg/runner"
	"github.com/finbourne-labs/fathom/pkg/schema"
	"github.com/finbourne-labs/fathom/pkg/tokens"
	"github.com/finbourne-labs/fathom/pkg/tools"
	"github.com/finbourne-labs/fathom/pkg/transcript"
	"github.com/finbourne-labs/fathom/pkg/workflow"
)

func main() {
	envPath := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envPath)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	llmConfig, err := llm.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load model endpoint configuration", "error", err)
		os.Exit(1)
	}
	chatClient := llm.NewClient(llmConfig, nil)

	ctx := context.Background()

	// Transcript store: JSONL log + Postgres session index when
	// persistence is enabled, in-memory otherwise.
	var store transcript.Store
	var dbClient *database.Client
	if cfg.PersistenceEnabled {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		slog.Info("Connected to PostgreSQL database")

		fileStore, err := transcript.NewFileStore(cfg.TranscriptDir,
			transcript.NewPostgresIndex(dbClient.DB()))
		if err != nil {
			slog.Error("Failed to initialize transcript store", "error", err)
			os.Exit(1)
		}
		store = fileStore
	} else {
		slog.Info("Persistence disabled, using in-memory transcript store")
		store = transcript.NewMemoryStore()
	}

	// Catalog backend and tool dispatcher.
	token := staticTokenFromEnv()
	var catalogClient catalog.Client
	if cfg.CatalogBaseURL != "" {
		catalogClient = catalog.NewHTTPClient(cfg.CatalogBaseURL, token, 0)
		slog.Info("Catalog backend configured", "base_url", cfg.CatalogBaseURL)
	} else {
		slog.Warn("HONEYCOMB_BASE_URL not set, tool calls will fail upstream")
		catalogClient = catalog.NewHTTPClient("http://localhost:0", token, 0)
	}

	schemaCache := schema.NewCache(cfg.SchemaCacheTTL)
	dispatcher := tools.NewDispatcher(catalogClient, schemaCache, cfg.SampleRowLimit)

	// Token counter is best-effort; the run proceeds without the hint.
	counter, err := tokens.NewCounter()
	if err != nil {
		slog.Warn("Token counter unavailable", "error", err)
		counter = nil
	}

	runs := runner.New(runner.Options{
		Client:        chatClient,
		Executor:      dispatcher,
		Store:         store,
		Counter:       counter,
		Tools:         tools.Definitions(),
		Model:         llmConfig.Deployment,
		MaxIterations: cfg.MaxToolIterations,
	})

	var taskClient workflow.Client
	if cfg.WorkflowBaseURL != "" {
		taskClient = workflow.NewHTTPClient(cfg.WorkflowBaseURL,
			workflow.TokenProvider(token), 0)
		slog.Info("Workflow task API configured", "base_url", cfg.WorkflowBaseURL)
	}

	server := api.NewServer(api.Options{
		Runner:       runs,
		Store:        store,
		Tasks:        taskClient,
		DB:           dbClient,
		Model:        llmConfig.Deployment,
		SystemPrompt: tools.CheatSheet(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Fathom stopped")
}

// staticTokenFromEnv yields the bearer token for the catalog and workflow
// APIs from FBN_ACCESS_TOKEN. Token refresh is out of scope; deployments
// front this with a sidecar that keeps the variable fresh.
func staticTokenFromEnv() catalog.TokenProvider {
	return func(context.Context) (string, error) {
		token := os.Getenv("FBN_ACCESS_TOKEN")
		if token == "" {
			return "", fmt.Errorf("FBN_ACCESS_TOKEN not set")
		}
		return token, nil
	}
}
