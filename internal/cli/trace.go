package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rheo/internal/machine"
	"github.com/roach88/rheo/internal/store"
	"github.com/roach88/rheo/internal/term"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Channel  string // optional - filter to events on one channel
	Limit    int    // run listing limit
}

// TraceResult holds the trace output for one recorded run.
type TraceResult struct {
	Run        store.Run            `json:"run"`
	Timeline   []machine.TraceEvent `json:"timeline"`
	Injections []InjectionView      `json:"injections,omitempty"`
}

// InjectionView is a recorded injection with its payload formatted for
// display.
type InjectionView struct {
	Ordinal int    `json:"ordinal"`
	Channel string `json:"channel"`
	Payload string `json:"payload"`
}

// RunListing holds the run listing output.
type RunListing struct {
	Runs  []store.Run `json:"runs"`
	Total int         `json:"total"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Inspect recorded runs",
		Long: `Inspect recorded runs in a trace database.

Without a run id, lists recorded runs newest first. With a run id, shows
the run header, its injections, and the full step timeline: which
instance consumed which event and the state transition it caused, in
logical clock order.

Examples:
  rheo trace --db ./rheo.db
  rheo trace --db ./rheo.db 0190cabc-...
  rheo trace --db ./rheo.db 0190cabc-... --channel jobs
  rheo trace --db ./rheo.db 0190cabc-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListRuns(opts, cmd)
			}
			return runTraceRun(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "filter timeline to events on this channel")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 = all)")

	return cmd
}

func runListRuns(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, RunListing{Runs: runs, Total: len(runs)})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	for _, run := range runs {
		fmt.Fprintf(w, "%s  %-7s  %6d steps  %s\n", run.ID, run.Status, run.Steps, run.CreatedAt)
		if opts.Verbose {
			fmt.Fprintf(w, "  term: %s\n", run.TermHash)
			if run.Status == "ok" {
				fmt.Fprintf(w, "  value: %s\n", run.Result)
			} else if run.Error != "" {
				fmt.Fprintf(w, "  error: %s\n", run.Error)
			}
		}
	}
	return nil
}

func runTraceRun(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
		}
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	timeline, err := st.ReadTrace(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}
	if opts.Channel != "" {
		timeline = filterByChannel(timeline, opts.Channel)
	}

	injections, err := st.ReadInjections(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read injections", err)
	}
	views := make([]InjectionView, 0, len(injections))
	for _, inj := range injections {
		views = append(views, InjectionView{
			Ordinal: inj.Ordinal,
			Channel: inj.Channel,
			Payload: term.Format(inj.Payload),
		})
	}

	result := TraceResult{
		Run:        *run,
		Timeline:   timeline,
		Injections: views,
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}

	return outputTraceText(cmd, result, opts.Verbose)
}

// filterByChannel keeps only events carrying the given channel.
func filterByChannel(timeline []machine.TraceEvent, channel string) []machine.TraceEvent {
	filtered := make([]machine.TraceEvent, 0, len(timeline))
	for _, ev := range timeline {
		if ev.Channel == channel {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

// outputTraceJSON outputs a trace payload as JSON.
func outputTraceJSON(cmd *cobra.Command, data interface{}) error {
	response := CLIResponse{
		Status: "ok",
		Data:   data,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Status: %s\n", result.Run.Status)
	if result.Run.Status == "ok" {
		fmt.Fprintf(w, "Value: %s\n", result.Run.Result)
	} else if result.Run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", result.Run.Error)
	}
	fmt.Fprintln(w)

	if len(result.Injections) > 0 {
		fmt.Fprintln(w, "=== Injections ===")
		for _, inj := range result.Injections {
			fmt.Fprintf(w, "  [%d] %s <- %s\n", inj.Ordinal, inj.Channel, inj.Payload)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w interface{ Write([]byte) (int, error) }, event machine.TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] inst=%d %s %s→%s", event.Seq, event.Instance, event.Event, event.From, event.To)
	if event.Channel != "" {
		fmt.Fprintf(w, " chan=%s", event.Channel)
	}
	fmt.Fprintln(w)

	if verbose {
		if event.Payload != "" {
			fmt.Fprintf(w, "       Payload: %s\n", event.Payload)
		}
		if event.Result != "" {
			fmt.Fprintf(w, "       Result: %s\n", event.Result)
		}
		if event.Err != "" {
			fmt.Fprintf(w, "       Err: %s\n", event.Err)
		}
	}
}
