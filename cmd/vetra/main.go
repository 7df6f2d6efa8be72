package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vetra-ai/vetra/internal/auth"
	"github.com/vetra-ai/vetra/internal/config"
	"github.com/vetra-ai/vetra/internal/llm"
	"github.com/vetra-ai/vetra/internal/model"
	"github.com/vetra-ai/vetra/internal/pipeline"
	"github.com/vetra-ai/vetra/internal/playbook"
	"github.com/vetra-ai/vetra/internal/ratelimit"
	"github.com/vetra-ai/vetra/internal/server"
	"github.com/vetra-ai/vetra/internal/sharelink"
	"github.com/vetra-ai/vetra/internal/storage"
	"github.com/vetra-ai/vetra/internal/telemetry"
	"github.com/vetra-ai/vetra/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("VETRA_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("vetra starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database and run migrations.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Seed the bootstrap founder, if configured.
	if cfg.BootstrapHandle != "" {
		if err := seedFounder(ctx, db, cfg, logger); err != nil {
			slog.Warn("founder seed failed", "error", err)
		}
	}

	// Create the LLM generator. Without an API key the pipeline cannot
	// produce real analyses, so fall back to a static generator that
	// fails every call with a clear message rather than refusing to boot
	// (useful for local API surface work).
	gen := newGenerator(cfg, logger)

	// Load industry playbooks.
	table := playbook.Builtin
	if cfg.PlaybookPath != "" {
		table, err = playbook.Load(cfg.PlaybookPath)
		if err != nil {
			return fmt.Errorf("playbooks: %w", err)
		}
		logger.Info("playbooks loaded from file", "path", cfg.PlaybookPath, "count", len(table))
	}

	// Create the validation orchestrator.
	orch := pipeline.New(db, gen, table, logger, pipeline.Options{
		Deadline: cfg.PipelineDeadline,
	})

	// Create the share link service.
	shares := sharelink.New(db, logger)

	// Rate limiters: starting a validation fans out five LLM calls, so
	// it gets a much tighter budget than reads.
	startLimiter := ratelimit.NewMemoryLimiter(0.2, 5) // ~12/min sustained per user
	queryLimiter := ratelimit.NewMemoryLimiter(5, 60)
	authLimiter := ratelimit.NewMemoryLimiter(0.5, 10)
	sharedLimiter := ratelimit.NewMemoryLimiter(2, 30)
	defer func() {
		_ = startLimiter.Close()
		_ = queryLimiter.Close()
		_ = authLimiter.Close()
		_ = sharedLimiter.Close()
	}()

	srv := server.New(server.ServerConfig{
		Store:               db,
		JWTMgr:              jwtMgr,
		Pipeline:            orch,
		Shares:              shares,
		Logger:              logger,
		StartLimiter:        startLimiter,
		QueryLimiter:        queryLimiter,
		AuthLimiter:         authLimiter,
		SharedLimiter:       sharedLimiter,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown. Each phase gets its own timeout so early
	// completion doesn't steal budget from later phases.
	// Order: (1) stop accepting new HTTP requests and drain in-flight,
	// (2) wait for running pipelines, (3) flush pending access counts.
	slog.Info("vetra shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	httpCancel()

	pipeCtx, pipeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := orch.Shutdown(pipeCtx); err != nil {
		slog.Warn("pipelines still running at shutdown deadline", "error", err)
	}
	pipeCancel()

	shareCtx, shareCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := shares.Drain(shareCtx); err != nil {
		slog.Warn("share access drain incomplete", "error", err)
	}
	shareCancel()

	slog.Info("vetra stopped")
	return nil
}

// newGenerator selects the LLM backend from configuration.
func newGenerator(cfg config.Config, logger *slog.Logger) llm.Generator {
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, validations will fail until configured")
		return &llm.Static{Err: errors.New("llm: no provider configured")}
	}

	gcfg := llm.DefaultGeminiConfig(cfg.GeminiAPIKey)
	gcfg.Model = cfg.GeminiModel
	gcfg.Timeout = cfg.GeminiTimeout
	gen, err := llm.NewGemini(gcfg, logger)
	if err != nil {
		logger.Error("gemini init failed, validations will fail", "error", err)
		return &llm.Static{Err: err}
	}
	logger.Info("llm provider: gemini", "model", gcfg.Model)
	return gen
}

// seedFounder creates the bootstrap founder account if the handle does
// not already exist. The API key is stored as an Argon2id hash only.
func seedFounder(ctx context.Context, db *storage.DB, cfg config.Config, logger *slog.Logger) error {
	hash, err := auth.HashAPIKey(cfg.BootstrapAPIKey)
	if err != nil {
		return fmt.Errorf("hash bootstrap key: %w", err)
	}
	written, err := db.SeedUser(ctx, model.User{
		Handle:     cfg.BootstrapHandle,
		Name:       cfg.BootstrapHandle,
		Role:       model.RoleAdmin,
		APIKeyHash: hash,
	})
	if err != nil {
		return err
	}
	if written {
		logger.Info("bootstrap founder seeded", "handle", cfg.BootstrapHandle)
	}
	return nil
}
