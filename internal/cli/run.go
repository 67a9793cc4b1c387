package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/rheo/internal/compiler"
	"github.com/roach88/rheo/internal/machine"
	"github.com/roach88/rheo/internal/store"
	"github.com/roach88/rheo/internal/term"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	Sends     []string
	Externals []string
	MaxSteps  int64

	// RunID overrides the generated run id (for testing).
	RunID string
}

// RunReport is the run command's success payload.
type RunReport struct {
	RunID string `json:"run_id,omitempty"`
	Value string `json:"value"`

	// Bindings is the root scope's final environment in display form.
	Bindings map[string]string `json:"bindings,omitempty"`

	Steps int64 `json:"steps"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <term.cue>",
		Short: "Run a term to quiescence",
		Long: `Run a compiled term to quiescence and print its final value and
the root scope's bindings.

The term file's externals are bound before the run starts; --send offers
payloads on them in order, and --external binds additional channels. With
--db the full trace is recorded so the run can be inspected and replayed
later; recorded runs use the run id to seed fresh-channel naming, which
is what makes replay byte-exact.

Examples:
  rheo run ./echo.cue --send 'in="hello"'
  rheo run ./pipeline.cue --db ./rheo.db --send 'jobs=[1, "build"]'
  rheo run ./service.cue --max-steps 10000 --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerm(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for trace recording")
	cmd.Flags().StringArrayVar(&opts.Sends, "send", nil, "injection as channel=value (repeatable, CUE value syntax)")
	cmd.Flags().StringArrayVar(&opts.Externals, "external", nil, "additional external channel (repeatable)")
	cmd.Flags().Int64Var(&opts.MaxSteps, "max-steps", 0, "step quota override (0 = default)")

	return cmd
}

func runTerm(opts *RunOptions, termPath string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	slog.Info("compiling term", "path", termPath)
	file, err := LoadTerm(termPath)
	if err != nil {
		return outputRunError(formatter, err)
	}

	externals := append(append([]string{}, file.Externals...), opts.Externals...)

	if errs := compiler.Validate(file.Root, externals); len(errs) > 0 {
		for _, verr := range errs {
			formatter.VerboseLog("validation: %s", verr.Error())
		}
		_ = formatter.Error(errs[0].Code, errs[0].Message, errs)
		return NewExitError(ExitCommandError, fmt.Sprintf("term is invalid: %d error(s)", len(errs)))
	}

	sends, err := parseSends(opts.Sends)
	if err != nil {
		return outputRunError(formatter, err)
	}

	schedOpts := []machine.Option{
		machine.WithExternalNames(externals...),
		machine.WithLogger(logger),
	}
	if opts.MaxSteps > 0 {
		schedOpts = append(schedOpts, machine.WithMaxSteps(opts.MaxSteps))
	}

	// Recording requires reproducible fresh-channel names, so the run id
	// seeds the name generator.
	var st *store.Store
	runID := opts.RunID
	if opts.Database != "" {
		if runID == "" {
			runID = uuid.Must(uuid.NewV7()).String()
		}
		schedOpts = append(schedOpts, machine.WithNameGenerator(machine.NewFixedGenerator(runID)))

		slog.Info("opening database", "path", opts.Database)
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if st != nil {
		if err := st.BeginRun(ctx, runID, file.Root, externals); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run header", err)
		}
		schedOpts = append(schedOpts, machine.WithTraceSink(st.NewRunSink(ctx, runID)))
	}

	sched := machine.NewScheduler(schedOpts...)

	for i, send := range sends {
		if err := sched.Inject(send.channel, send.payload); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("injection %d rejected", i), err)
		}
		if st != nil {
			if err := st.WriteInjection(ctx, runID, i, send.channel, send.payload); err != nil {
				return WrapExitError(ExitCommandError, "failed to record injection", err)
			}
		}
	}

	slog.Info("run starting", "run_id", runID, "externals", strings.Join(externals, ","))
	result, runErr := sched.Run(ctx, file.Root)

	if runErr != nil {
		if st != nil {
			if finErr := st.FinishRun(ctx, runID, "error", "", runErr.Error(), 0); finErr != nil {
				slog.Error("failed to seal run", "error", finErr)
			}
		}
		_ = formatter.Error(ErrCodeRunFailed, runErr.Error(), nil)
		return WrapExitError(ExitFailure, "run failed", runErr)
	}

	value := term.Format(result.Value)
	if st != nil {
		if err := st.FinishRun(ctx, runID, "ok", value, "", result.Steps); err != nil {
			return WrapExitError(ExitCommandError, "failed to seal run", err)
		}
	}

	bindings := make(map[string]string, len(result.Bindings))
	for name, bound := range result.Bindings {
		bindings[name] = term.Format(bound)
	}

	slog.Info("run complete", "steps", result.Steps)
	return outputRunSuccess(formatter, RunReport{
		RunID:    runID,
		Value:    value,
		Bindings: bindings,
		Steps:    result.Steps,
	})
}

// injection is a parsed --send flag.
type injection struct {
	channel string
	payload term.Value
}

// parseSends parses repeated --send flags of the form channel=value,
// where value is a CUE expression.
func parseSends(raw []string) ([]injection, error) {
	sends := make([]injection, 0, len(raw))
	for _, arg := range raw {
		channel, expr, found := strings.Cut(arg, "=")
		if !found || channel == "" {
			return nil, &LoadError{
				Code:    ErrCodeBadPayload,
				Message: fmt.Sprintf("malformed --send %q: want channel=value", arg),
			}
		}
		payload, err := compiler.ParseValue(expr)
		if err != nil {
			return nil, &LoadError{
				Code:    ErrCodeBadPayload,
				Message: fmt.Sprintf("payload for %q: %v", channel, err),
			}
		}
		sends = append(sends, injection{channel: channel, payload: payload})
	}
	return sends, nil
}

func outputRunSuccess(formatter *OutputFormatter, report RunReport) error {
	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	if report.RunID != "" {
		fmt.Fprintf(formatter.Writer, "Run:   %s\n", report.RunID)
	}
	fmt.Fprintf(formatter.Writer, "Value: %s\n", report.Value)
	fmt.Fprintf(formatter.Writer, "Steps: %d\n", report.Steps)
	if len(report.Bindings) > 0 {
		fmt.Fprintln(formatter.Writer, "Bindings:")
		names := make([]string, 0, len(report.Bindings))
		for name := range report.Bindings {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(formatter.Writer, "  %s = %s\n", name, report.Bindings[name])
		}
	}
	return nil
}

func outputRunError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return WrapExitError(ExitCommandError, loadErr.Error(), nil)
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, err.Error(), nil)
}
