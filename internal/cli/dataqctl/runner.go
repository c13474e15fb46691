// Package dataqctl inspects the run ledger from the command line.
package dataqctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dataq/dataq/internal/config"
	"github.com/dataq/dataq/internal/ledger"
	"github.com/dataq/dataq/internal/ledger/postgres"
)

// OpenFunc connects to the ledger; the returned func releases it.
type OpenFunc func(ctx context.Context, cfg config.LedgerConfig) (ledger.Repository, func() error, error)

type Options struct {
	Timeout    time.Duration
	Stdout     io.Writer
	Stderr     io.Writer
	OpenLedger OpenFunc
	// Env resolves DATAQ_* variables; nil reads the process environment.
	Env func(key string) (string, bool)
}

// Run executes one command and returns the process exit code: 0 on
// success, 1 when the command fails, 2 on a usage error.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	open := defaults.OpenLedger
	if open == nil {
		open = openPostgres
	}

	v := viper.New()
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("timeout", durationOr(defaults.Timeout, 10*time.Second))
	if defaults.Env != nil {
		if dsn, ok := defaults.Env("DATAQ_LEDGER_DSN"); ok {
			v.SetDefault("ledger.dsn", dsn)
		}
	} else {
		_ = v.BindEnv("ledger.dsn", "DATAQ_LEDGER_DSN")
		_ = v.BindEnv("timeout", "DATAQ_CLI_TIMEOUT")
	}

	ran := false
	withLedger := func(cmd *cobra.Command, fn func(ctx context.Context, repo ledger.Repository) error) error {
		ran = true
		dsn := strings.TrimSpace(v.GetString("ledger.dsn"))
		if dsn == "" {
			return errors.New("ledger DSN is required (--dsn or DATAQ_LEDGER_DSN)")
		}
		cmdCtx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
		defer cancel()
		repo, closeFn, err := open(cmdCtx, config.LedgerConfig{DSN: dsn, MaxOpenConns: 2})
		if err != nil {
			return err
		}
		defer func() { _ = closeFn() }()
		return fn(cmdCtx, repo)
	}

	root := &cobra.Command{
		Use:           "dataqctl",
		Short:         "Inspect dataq pipeline runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("dsn", "", "ledger Postgres DSN (env DATAQ_LEDGER_DSN)")
	root.PersistentFlags().Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "command timeout (env DATAQ_CLI_TIMEOUT)")
	root.PersistentFlags().Bool("json", false, "print JSON instead of a table")
	_ = v.BindPFlag("ledger.dsn", root.PersistentFlags().Lookup("dsn"))
	_ = v.BindPFlag("timeout", root.PersistentFlags().Lookup("timeout"))
	_ = v.BindPFlag("json", root.PersistentFlags().Lookup("json"))

	health := &cobra.Command{
		Use:   "health",
		Short: "Check the ledger connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd, func(ctx context.Context, repo ledger.Repository) error {
				if err := repo.HealthCheck(ctx); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(stdout, "ok")
				return nil
			})
		},
	}

	runs := &cobra.Command{Use: "runs", Short: "List and show pipeline runs"}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLedger(cmd, func(ctx context.Context, repo ledger.Repository) error {
				items, err := repo.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					views := make([]runView, 0, len(items))
					for _, run := range items {
						views = append(views, newRunView(run, nil))
					}
					return writeJSON(stdout, views)
				}
				writeRunTable(stdout, items)
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, func(ctx context.Context, repo ledger.Repository) error {
				run, err := repo.GetRun(ctx, args[0])
				if err != nil {
					if errors.Is(err, ledger.ErrNotFound) {
						return fmt.Errorf("run %s not found", args[0])
					}
					return err
				}
				attempts, err := repo.ListAttempts(ctx, run.RunID)
				if err != nil {
					return err
				}
				if v.GetBool("json") {
					return writeJSON(stdout, newRunView(run, attempts))
				}
				writeRunDetail(stdout, run, attempts)
				return nil
			})
		},
	}

	runs.AddCommand(list, show)
	root.AddCommand(health, runs)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		if !ran {
			_, _ = fmt.Fprintln(stderr, root.UsageString())
			return 2
		}
		return 1
	}
	return 0
}

func openPostgres(ctx context.Context, cfg config.LedgerConfig) (ledger.Repository, func() error, error) {
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewRepository(db), db.Close, nil
}

type attemptView struct {
	Attempt    int    `json:"attempt"`
	ErrorKind  string `json:"error_kind,omitempty"`
	ErrorText  string `json:"error_text,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Snippet    string `json:"snippet"`
}

type runView struct {
	RunID          string        `json:"run_id"`
	Status         string        `json:"status"`
	Question       string        `json:"question"`
	DatasetPath    string        `json:"dataset_path"`
	Classification string        `json:"classification,omitempty"`
	Attempts       int           `json:"attempts"`
	ResultPath     string        `json:"result_path,omitempty"`
	ReportPath     string        `json:"report_path,omitempty"`
	ResultURI      string        `json:"result_uri,omitempty"`
	ReportURI      string        `json:"report_uri,omitempty"`
	Error          string        `json:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
	AttemptLog     []attemptView `json:"attempt_log,omitempty"`
}

func newRunView(run ledger.Run, attempts []ledger.Attempt) runView {
	view := runView{
		RunID:          run.RunID,
		Status:         string(run.Status),
		Question:       run.Question,
		DatasetPath:    run.DatasetPath,
		Classification: run.Classification,
		Attempts:       run.Attempts,
		ResultPath:     run.ResultPath,
		ReportPath:     run.ReportPath,
		ResultURI:      run.ResultURI,
		ReportURI:      run.ReportURI,
		Error:          run.ErrorText,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
	}
	for _, attempt := range attempts {
		view.AttemptLog = append(view.AttemptLog, attemptView{
			Attempt:    attempt.AttemptIndex,
			ErrorKind:  attempt.ErrorKind,
			ErrorText:  attempt.ErrorText,
			DurationMS: attempt.DurationMS,
			Snippet:    attempt.Snippet,
		})
	}
	return view
}

func writeJSON(w io.Writer, value any) error {
	formatted, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, string(formatted))
	return nil
}

func writeRunTable(w io.Writer, runs []ledger.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN ID\tSTATUS\tKIND\tATTEMPTS\tSTARTED\tQUESTION")
	for _, run := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			run.RunID,
			run.Status,
			dashIfEmpty(run.Classification),
			run.Attempts,
			run.StartedAt.UTC().Format(time.RFC3339),
			truncate(run.Question, 60),
		)
	}
	_ = tw.Flush()
}

func writeRunDetail(w io.Writer, run ledger.Run, attempts []ledger.Attempt) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "run:\t%s\n", run.RunID)
	_, _ = fmt.Fprintf(tw, "status:\t%s\n", run.Status)
	_, _ = fmt.Fprintf(tw, "question:\t%s\n", run.Question)
	_, _ = fmt.Fprintf(tw, "dataset:\t%s\n", run.DatasetPath)
	_, _ = fmt.Fprintf(tw, "classification:\t%s\n", dashIfEmpty(run.Classification))
	_, _ = fmt.Fprintf(tw, "attempts:\t%d\n", run.Attempts)
	_, _ = fmt.Fprintf(tw, "results:\t%s\n", dashIfEmpty(firstNonEmpty(run.ResultURI, run.ResultPath)))
	_, _ = fmt.Fprintf(tw, "report:\t%s\n", dashIfEmpty(firstNonEmpty(run.ReportURI, run.ReportPath)))
	if run.ErrorText != "" {
		_, _ = fmt.Fprintf(tw, "error:\t%s\n", run.ErrorText)
	}
	_ = tw.Flush()
	for _, attempt := range attempts {
		outcome := "ok"
		if attempt.ErrorKind != "" {
			outcome = attempt.ErrorKind + ": " + firstLine(attempt.ErrorText)
		}
		_, _ = fmt.Fprintf(w, "attempt %d (%dms) %s\n", attempt.AttemptIndex, attempt.DurationMS, outcome)
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func firstLine(value string) string {
	line, _, _ := strings.Cut(value, "\n")
	return line
}

func truncate(value string, max int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	if len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
