package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dataq/dataq/internal/classify"
	"github.com/dataq/dataq/internal/codegen"
	"github.com/dataq/dataq/internal/config"
	"github.com/dataq/dataq/internal/ledger/postgres"
	"github.com/dataq/dataq/internal/llm"
	"github.com/dataq/dataq/internal/loader"
	"github.com/dataq/dataq/internal/observability"
	"github.com/dataq/dataq/internal/pipeline"
	"github.com/dataq/dataq/internal/report"
	"github.com/dataq/dataq/internal/sandbox"
	"github.com/dataq/dataq/internal/sandbox/duckdb"
	s3store "github.com/dataq/dataq/internal/storage/s3"
	"github.com/dataq/dataq/internal/summary"
)

func main() {
	cfg, err := config.LoadFromEnv("dataq")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := run(ctx, cfg, logger)
	if err := observability.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		logger.Warn("failed to write metrics textfile", slog.Any("error", err))
	}
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	model, err := llm.New(cfg.AI)
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		return 1
	}

	loaderOpts := []loader.Option{loader.WithLogger(logger)}
	svc := &pipeline.Service{
		Classifier: classify.New(model, cfg.AI.ClassifyTemperature, logger),
		Generator:  codegen.New(model, cfg.AI.CodegenTemperature),
		Sandbox: duckdb.NewRuntime(sandbox.Limits{
			MemoryLimit: cfg.Executor.MemoryLimit,
			Threads:     cfg.Executor.Threads,
			Timeout:     cfg.Executor.AttemptTimeout,
		}, duckdb.WithLogger(logger)),
		Summarizer: summary.New(model, cfg.AI.SummaryTemperature, cfg.AI.SummaryMaxTokens),
		Config: pipeline.Config{
			MaxRetries:  cfg.Executor.MaxRetries,
			PreviewRows: cfg.Report.PreviewRows,
			OutputDir:   cfg.Output.Dir,
		},
		Progress: os.Stdout,
		Logger:   logger,
	}
	if cfg.Report.RenderPDF {
		svc.Rasterizer = &report.Chromium{
			BrowserPath: cfg.Report.BrowserPath,
			Install:     cfg.Report.InstallBrowser,
			Logger:      logger,
		}
	}

	if cfg.ObjectStore.Enabled {
		store, err := s3store.New(ctx, cfg.ObjectStore)
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			return 1
		}
		svc.Artifacts = store
		loaderOpts = append(loaderOpts, loader.WithRemote(store))
	}
	svc.Loader = loader.New(loaderOpts...)

	if cfg.Ledger.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Ledger)
		if err != nil {
			logger.Error("failed to open ledger db", slog.Any("error", err))
			return 1
		}
		defer func() { _ = db.Close() }()
		svc.Ledger = postgres.NewRepository(db)
	}

	req, err := pipeline.Prompt(os.Stdin, os.Stdout)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "input error: %v\n", err)
		return 1
	}
	if _, err := svc.Run(ctx, req); err != nil {
		return 1
	}
	return 0
}
