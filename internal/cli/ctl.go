package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"faturas/internal/backend"
	"faturas/internal/config"
	"faturas/internal/core"
	applog "faturas/internal/log"
	"faturas/internal/queue"
	"faturas/internal/services"
	"faturas/internal/sheets"
	gsheet "faturas/internal/sheets/google"
	"faturas/internal/worker"
)

// Exit codes of faturasctl.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and failed (sync halted, export rejected)
	ExitCommandError = 2 // bad flags or configuration, backend unreachable
)

// ExitError carries the exit code a command wants the process to end with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns ExitFailure for errors that are not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CtlOptions holds the global flags and the collaborators the commands
// build on. Tests swap LoadConfig and NewWriter.
type CtlOptions struct {
	Format   string
	LogLevel string

	LoadConfig func() *config.Config
	NewWriter  func(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.ReportWriter, error)
	Now        func() time.Time
}

var validFormats = []string{"text", "json"}

// NewRootCommand builds faturasctl.
func NewRootCommand(opts *CtlOptions) *cobra.Command {
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}
	if opts.NewWriter == nil {
		opts.NewWriter = googleWriter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cmd := &cobra.Command{
		Use:   "faturasctl",
		Short: "Operate a faturas installation",
		Long:  "Inspect and drain the offline queue, force a sync pass and export month reports.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return WrapExitError(ExitCommandError,
				fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats), nil)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or drop pending offline writes",
	}
	queueCmd.AddCommand(newQueueListCommand(opts), newQueueClearCommand(opts))

	cmd.AddCommand(queueCmd, newSyncCommand(opts), newExportCommand(opts))
	return cmd
}

// setup loads and validates the config the same way the server does.
func (o *CtlOptions) setup(cmd *cobra.Command) (*config.Config, *applog.Logger, error) {
	level := applog.ParseLevel(o.LogLevel)
	logger := applog.New(applog.Config{
		Level:     level,
		Component: applog.ComponentCLI,
		Handler:   slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}),
	})
	cfg := o.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, logger, nil
}

func (o *CtlOptions) openBackend(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid backend configuration", err)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open backend", err)
	}
	return res, nil
}

// QueueEntry is one pending write as printed by `queue list`.
type QueueEntry struct {
	ID        uint64         `json:"id"`
	Kind      queue.Kind     `json:"kind"`
	CreatedAt time.Time      `json:"created_at"`
	Mutation  queue.Mutation `json:"mutation"`
}

func newQueueListCommand(opts *CtlOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending offline writes in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			res, err := opts.openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			pending := res.Queue.List()
			entries := make([]QueueEntry, 0, len(pending))
			for _, e := range pending {
				entries = append(entries, QueueEntry{
					ID:        e.ID,
					Kind:      e.Mutation.Kind(),
					CreatedAt: e.CreatedAt,
					Mutation:  e.Mutation,
				})
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No pending writes.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tQUEUED AT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", e.ID, e.Kind, e.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newQueueClearCommand(opts *CtlOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every pending offline write",
		Long: `Drop every pending offline write without replaying it.

The dropped writes are lost. Run "faturasctl queue list" first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return WrapExitError(ExitCommandError, "refusing to drop pending writes without --yes", nil)
			}
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			res, err := opts.openBackend(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			dropped := res.Queue.Len()
			if err := res.Queue.Clear(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "failed to clear queue", err)
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"dropped": dropped})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped %d pending writes.\n", dropped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping the pending writes")
	return cmd
}

func newSyncCommand(opts *CtlOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay pending offline writes now",
		Long: `Probe the remote store and, when reachable, replay the pending writes in
order. The pass stops at the first write the store rejects; that write and
the ones after it stay queued.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			app, err := NewApp(ctx, cfg, logger, Options{})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open backend", err)
			}
			defer app.Close(context.Background())

			if !app.Prober.Check(ctx) {
				return WrapExitError(ExitFailure, "remote store unreachable",
					fmt.Errorf("%d writes still pending", app.Backend.Queue.Len()))
			}
			report, syncErr := app.Sync.SyncNow(ctx)
			if err := printReport(cmd.OutOrStdout(), opts.Format, report); err != nil {
				return err
			}
			if syncErr != nil {
				return WrapExitError(ExitFailure, "sync halted", syncErr)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "give up on the pass after this long")
	return cmd
}

func printReport(w io.Writer, format string, report services.SyncReport) error {
	if format == "json" {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Replayed %d, %d still pending.\n", report.Replayed, report.Remaining)
	if report.FailedID != 0 {
		fmt.Fprintf(w, "Halted at write %d.\n", report.FailedID)
	}
	return nil
}

func newExportCommand(opts *CtlOptions) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the report of one month to Google Sheets",
		Example: `  faturasctl export
  faturasctl export --month 2025-03`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := core.MonthOf(opts.Now())
			if month != "" {
				parsed, err := core.ParseMonth(month)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --month", err)
				}
				m = parsed
			}

			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			if cfg.UserID == "" {
				return WrapExitError(ExitCommandError, "USER_ID is required to export", nil)
			}
			ctx := cmd.Context()
			res, err := opts.openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			writer, err := opts.NewWriter(ctx, cfg, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to initialize Google Sheets client", err)
			}
			ref, err := worker.NewExportWorker(res.Gateway, writer, logger).ExportMonth(ctx, cfg.UserID, m)
			if err != nil {
				return WrapExitError(ExitFailure, "export failed", err)
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"month": m.String(), "ref": ref})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s.\n", m, ref)
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "reference month as YYYY-MM (default: current month)")
	return cmd
}

func googleWriter(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.ReportWriter, error) {
	if cfg.GoogleSpreadsheetID == "" {
		return nil, errors.New("GOOGLE_SPREADSHEET_ID is not set")
	}
	client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
