// Package pipeline runs one question against one dataset end to end:
// classify, load, generate and execute with retries, save the CSV,
// summarize and render the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dataq/dataq/internal/classify"
	"github.com/dataq/dataq/internal/executor"
	"github.com/dataq/dataq/internal/ledger"
	"github.com/dataq/dataq/internal/loader"
	"github.com/dataq/dataq/internal/observability"
	"github.com/dataq/dataq/internal/report"
	"github.com/dataq/dataq/internal/sandbox"
	"github.com/dataq/dataq/internal/storage"
	"github.com/dataq/dataq/internal/table"
)

type Classifier interface {
	Classify(ctx context.Context, question string) (classify.Classification, error)
}

type DatasetLoader interface {
	Load(ctx context.Context, location string) (table.Table, error)
}

type Summarizer interface {
	GenerateSummary(ctx context.Context, t table.Table) (string, error)
}

// ArtifactStore receives the run's CSV and report when publication is on.
type ArtifactStore interface {
	storage.ObjectStore
	URI(key string) (string, error)
}

type Config struct {
	MaxRetries  int
	PreviewRows int
	OutputDir   string
}

type Service struct {
	Classifier Classifier
	Loader     DatasetLoader
	Generator  executor.CodeGenerator
	Sandbox    sandbox.Factory
	Summarizer Summarizer
	// Rasterizer prints the report; nil writes the HTML document instead.
	Rasterizer report.Rasterizer
	Artifacts  ArtifactStore
	Ledger     ledger.Repository
	Config     Config
	// Progress receives the numbered stage lines shown to the user.
	Progress io.Writer
	Logger   *slog.Logger
	NewRunID func() string
}

type Request struct {
	DatasetPath string
	Question    string
}

type Result struct {
	RunID          string
	Classification classify.Classification
	Rows           int
	Attempts       int
	ResultPath     string
	ReportPath     string
	ResultURI      string
	ReportURI      string
}

const maxArtifactStem = 50

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// ArtifactStem turns a question into the shared prefix of its output files:
// runs of non-alphanumerics become "_" and the result is cut to 50 bytes.
func ArtifactStem(question string) string {
	stem := nonAlphanumeric.ReplaceAllString(question, "_")
	if len(stem) > maxArtifactStem {
		stem = stem[:maxArtifactStem]
	}
	return stem
}

// Run executes every stage in order and stops at the first failure. The
// outcome line is printed to Progress either way.
func (s *Service) Run(ctx context.Context, req Request) (Result, error) {
	s.ensureDefaults()
	result := Result{RunID: s.NewRunID()}
	ctx = observability.ContextWithRunID(ctx, result.RunID)
	logger := observability.LoggerForContext(ctx, s.Logger)

	s.progress("\n--- Running Pipeline ---")
	s.startLedger(ctx, logger, req, result.RunID)
	started := time.Now()

	err := s.run(ctx, logger, req, &result)
	status := ledger.RunSucceeded
	if err != nil {
		status = ledger.RunFailed
		s.progress("Pipeline failed: " + err.Error())
		logger.ErrorContext(ctx, "pipeline_failed", slog.String("error", err.Error()))
	} else {
		s.progress("Pipeline completed successfully!")
		logger.InfoContext(ctx, "pipeline_completed",
			slog.Int("rows", result.Rows),
			slog.Int("attempts", result.Attempts),
			slog.Duration("elapsed", time.Since(started)),
		)
	}
	observability.ObservePipelineRun(string(status))
	s.finishLedger(ctx, logger, result, status, err)
	return result, err
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, req Request, result *Result) error {
	question := req.Question
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("question is required")
	}
	// Unsupported datasets fail before any model call.
	if _, err := loader.DetectFormat(req.DatasetPath); err != nil {
		return err
	}

	var classification classify.Classification
	if err := s.stage(ctx, "1) Classifying Request", "classify", func() error {
		var err error
		classification, err = s.Classifier.Classify(ctx, question)
		return err
	}); err != nil {
		return err
	}
	result.Classification = classification

	var source table.Table
	if err := s.stage(ctx, "2) Loading Data", "load", func() error {
		var err error
		source, err = s.Loader.Load(ctx, req.DatasetPath)
		return err
	}); err != nil {
		return err
	}

	var output table.Table
	if err := s.stage(ctx, "3) Generating & Executing Code", "execute", func() error {
		engine := &executor.Engine{
			Source:     source,
			Sandbox:    s.Sandbox,
			MaxRetries: s.Config.MaxRetries,
			Logger:     logger,
			Observer:   s.attemptObserver(logger, result),
		}
		var err error
		output, err = engine.ExecuteWithRetry(ctx, s.Generator, question)
		return err
	}); err != nil {
		return err
	}
	result.Rows = output.NumRows()
	observability.SetResultRows(result.Rows)

	stem := ArtifactStem(question)
	if err := s.stage(ctx, "4) Saving CSV", "save_csv", func() error {
		var err error
		result.ResultPath, err = executor.SaveResults(output, filepath.Join(s.Config.OutputDir, stem+"_results.csv"))
		return err
	}); err != nil {
		return err
	}

	var narrative string
	if err := s.stage(ctx, "5) Generating Summary", "summarize", func() error {
		var err error
		narrative, err = s.Summarizer.GenerateSummary(ctx, output)
		return err
	}); err != nil {
		return err
	}

	if err := s.stage(ctx, "6) Generating PDF", "render", func() error {
		var err error
		result.ReportPath, err = s.render(ctx, stem, narrative, output.Head(s.Config.PreviewRows), classification.ReportTitle())
		return err
	}); err != nil {
		return err
	}

	if s.Artifacts != nil {
		return s.publish(ctx, logger, result)
	}
	return nil
}

func (s *Service) stage(ctx context.Context, line, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.progress(line)
	start := time.Now()
	err := fn()
	observability.ObserveStage(name, time.Since(start))
	return err
}

func (s *Service) render(ctx context.Context, stem, narrative string, preview table.Table, title string) (string, error) {
	if s.Rasterizer != nil {
		return report.New(filepath.Join(s.Config.OutputDir, stem+"_report.pdf"), s.Rasterizer).
			GeneratePDF(ctx, narrative, preview, title)
	}
	document, err := report.RenderHTML(narrative, preview, title)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.Config.OutputDir, stem+"_report.html")
	if err := os.MkdirAll(s.Config.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", s.Config.OutputDir, err)
	}
	if err := os.WriteFile(path, []byte(document), 0o644); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	return path, nil
}

func (s *Service) publish(ctx context.Context, logger *slog.Logger, result *Result) error {
	upload := func(localPath, contentType string) (string, error) {
		key, err := storage.BuildArtifactKey(result.RunID, artifactFileName(localPath))
		if err != nil {
			return "", fmt.Errorf("publish %s: %w", localPath, err)
		}
		info, err := storage.UploadFile(ctx, s.Artifacts, key, localPath, contentType)
		if err != nil {
			return "", fmt.Errorf("publish %s: %w", localPath, err)
		}
		logger.DebugContext(ctx, "artifact_uploaded",
			slog.String("key", key),
			slog.Int64("size", info.Size),
		)
		return s.Artifacts.URI(key)
	}

	var err error
	if result.ResultURI, err = upload(result.ResultPath, "text/csv"); err != nil {
		return err
	}
	reportType := "application/pdf"
	if filepath.Ext(result.ReportPath) == ".html" {
		reportType = "text/html"
	}
	if result.ReportURI, err = upload(result.ReportPath, reportType); err != nil {
		return err
	}
	logger.InfoContext(ctx, "artifacts_published",
		slog.String("result_uri", result.ResultURI),
		slog.String("report_uri", result.ReportURI),
	)
	return nil
}

// artifactFileName drops leading separators a stem can start with, which
// object keys do not accept.
func artifactFileName(localPath string) string {
	return strings.TrimLeft(filepath.Base(localPath), "_.-")
}

func (s *Service) attemptObserver(logger *slog.Logger, result *Result) executor.Observer {
	return func(ctx context.Context, attempt executor.Attempt) {
		result.Attempts = attempt.Index + 1
		if s.Ledger == nil {
			return
		}
		record := ledger.Attempt{
			RunID:        result.RunID,
			AttemptIndex: attempt.Index + 1,
			Question:     attempt.Question,
			Snippet:      attempt.Snippet,
			ErrorKind:    string(attempt.Kind),
			DurationMS:   attempt.Duration.Milliseconds(),
		}
		if attempt.Err != nil {
			record.ErrorText = attempt.Err.Error()
		}
		if err := s.Ledger.RecordAttempt(ctx, record); err != nil {
			logger.WarnContext(ctx, "ledger_record_attempt_failed", slog.String("error", err.Error()))
		}
	}
}

func (s *Service) startLedger(ctx context.Context, logger *slog.Logger, req Request, runID string) {
	if s.Ledger == nil {
		return
	}
	if _, err := s.Ledger.StartRun(ctx, ledger.StartRunInput{
		RunID:       runID,
		Question:    req.Question,
		DatasetPath: req.DatasetPath,
	}); err != nil {
		logger.WarnContext(ctx, "ledger_start_run_failed", slog.String("error", err.Error()))
	}
}

func (s *Service) finishLedger(ctx context.Context, logger *slog.Logger, result Result, status ledger.RunStatus, runErr error) {
	if s.Ledger == nil {
		return
	}
	in := ledger.FinishRunInput{
		RunID:          result.RunID,
		Status:         status,
		Classification: string(result.Classification),
		Attempts:       result.Attempts,
		ResultPath:     result.ResultPath,
		ReportPath:     result.ReportPath,
		ResultURI:      result.ResultURI,
		ReportURI:      result.ReportURI,
	}
	if runErr != nil {
		in.ErrorText = runErr.Error()
	}
	// A canceled run still gets its final status recorded.
	if err := s.Ledger.FinishRun(context.WithoutCancel(ctx), in); err != nil && !errors.Is(err, ledger.ErrNotFound) {
		logger.WarnContext(ctx, "ledger_finish_run_failed", slog.String("error", err.Error()))
	}
}

func (s *Service) progress(line string) {
	_, _ = fmt.Fprintln(s.Progress, line)
}

func (s *Service) ensureDefaults() {
	if s.Progress == nil {
		s.Progress = io.Discard
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.NewRunID == nil {
		s.NewRunID = uuid.NewString
	}
	if s.Config.PreviewRows <= 0 {
		s.Config.PreviewRows = 5
	}
	if strings.TrimSpace(s.Config.OutputDir) == "" {
		s.Config.OutputDir = "."
	}
}
