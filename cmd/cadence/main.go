package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cadencehq/cadence/internal/analytics"
	"github.com/cadencehq/cadence/internal/dispatch"
	"github.com/cadencehq/cadence/internal/engine"
	"github.com/cadencehq/cadence/internal/expressions"
	"github.com/cadencehq/cadence/internal/logging"
	"github.com/cadencehq/cadence/internal/personalize"
	"github.com/cadencehq/cadence/internal/steps"
	"github.com/cadencehq/cadence/internal/store"
	"github.com/cadencehq/cadence/internal/validation"
	"github.com/cadencehq/cadence/pkg/mcp"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		printVersion()
		return
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("cadence exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}

	db, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	leads, err := newFileLeadSource(cfg.LeadsPath)
	if err != nil {
		return err
	}

	engines := expressions.NewEngines()
	transport := &logTransport{logger: logger}

	runCtx := &steps.RunContext{
		Sender: &personalize.SenderContext{
			Name:    cfg.SenderName,
			Company: cfg.SenderCompany,
		},
		Records:   leads,
		Transport: transport,
		Scheduler: db,
		Templates: nil, // template provider is an external collaborator
		Generator: nil, // AI generation degrades gracefully when absent
		Audit:     db,
		Engines:   engines,
		Fields:    expressions.NewGoJQEngine(),
		Logger:    logger,
	}

	runner := engine.NewRunner(steps.DefaultRegistry(), db,
		engine.RunnerConfig{Concurrency: cfg.Concurrency}, logger)

	validator, err := validation.NewWorkflowValidator(engines)
	if err != nil {
		return err
	}

	dispatcher := dispatch.NewDispatcher(db, leads, transport, dispatch.DispatcherConfig{
		TickInterval: time.Duration(cfg.DispatchInterval) * time.Second,
		MaxAttempts:  cfg.MaxAttempts,
	}, logger)
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := dispatcher.Stop(); err != nil {
			logger.Warn("dispatcher stop failed", slog.String("error", err.Error()))
		}
	}()

	srv := mcp.NewCadenceServer(mcp.CadenceServerDeps{
		Store:        db,
		Runner:       runner,
		Validator:    validator,
		Analytics:    analytics.NewAggregator(db),
		RunContext:   runCtx,
		BatchTimeout: time.Duration(cfg.BatchTimeout) * time.Second,
		Logger:       logger,
	})

	logger.Info("cadence engine started",
		slog.String("db", cfg.DBPath),
		slog.String("version", version),
	)
	return srv.Serve(ctx)
}

// newLogger builds the process logger: text on stderr (stdout carries the
// MCP stdio transport) with correlation IDs injected from context.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(logging.NewCorrelationHandler(inner))
	slog.SetDefault(logger)
	return logger
}
