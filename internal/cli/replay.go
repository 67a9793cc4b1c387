package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rheo/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// ReplayRunResult holds the replay verdict for a single run.
type ReplayRunResult struct {
	RunID           string `json:"run_id"`
	Match           bool   `json:"match"`
	Recorded        int    `json:"recorded"`
	Replayed        int    `json:"replayed"`
	FirstDivergence int64  `json:"first_divergence,omitempty"`
}

// ReplayReport holds the overall replay result.
type ReplayReport struct {
	Runs     []ReplayRunResult `json:"runs"`
	Total    int               `json:"total"`
	AllMatch bool              `json:"all_match"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded runs and verify determinism",
		Long: `Replay recorded runs and verify their traces reproduce exactly.

Each run is re-executed from its stored term and injections with the
same run-id-seeded name generator the original used, and the fresh trace
is compared against the recorded one event-for-event. Any divergence
indicates log corruption or a behavioral change in the engine.

Exit codes:
  0 - All replayed traces match
  1 - Divergence detected
  2 - Command error (database not found, etc.)

Examples:
  rheo replay --db ./rheo.db
  rheo replay --db ./rheo.db --run 0190cabc-...
  rheo replay --db ./rheo.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	// Collect run ids to process
	var runIDs []string
	if opts.RunID != "" {
		runIDs = []string{opts.RunID}
	} else {
		runs, err := st.ListRuns(ctx, 0)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, run := range runs {
			// A run still marked running was never sealed; replaying it
			// would compare against a partial trace
			if run.Status != "running" {
				runIDs = append(runIDs, run.ID)
			}
		}
	}

	if len(runIDs) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(cmd, ReplayReport{
				Runs:     []ReplayRunResult{},
				AllMatch: true,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No completed runs found in database.")
		return nil
	}

	report := ReplayReport{
		Runs:     make([]ReplayRunResult, 0, len(runIDs)),
		Total:    len(runIDs),
		AllMatch: true,
	}

	for _, runID := range runIDs {
		result, err := st.Replay(ctx, runID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", runID), err)
		}

		report.Runs = append(report.Runs, ReplayRunResult{
			RunID:           result.RunID,
			Match:           result.Match,
			Recorded:        result.Recorded,
			Replayed:        result.Replayed,
			FirstDivergence: result.FirstDivergence,
		})
		if !result.Match {
			report.AllMatch = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, report)
	}

	return outputReplayText(cmd, report, opts.Verbose)
}

// outputReplayJSON outputs the replay report as JSON.
func outputReplayJSON(cmd *cobra.Command, report ReplayReport) error {
	response := CLIResponse{
		Status: "ok",
		Data:   report,
	}

	if !report.AllMatch {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DIVERGENCE",
			Message: "replayed trace diverges from recording",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !report.AllMatch {
		// Divergence = exit code 1
		return NewExitError(ExitFailure, "replayed trace diverges from recording")
	}
	return nil
}

// outputReplayText outputs the replay report as text.
func outputReplayText(cmd *cobra.Command, report ReplayReport, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", report.Total)
	fmt.Fprintln(w)

	for _, run := range report.Runs {
		status := "✓"
		if !run.Match {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Run: %s\n", status, run.RunID)

		if verbose || !run.Match {
			fmt.Fprintf(w, "  Recorded: %d event(s)\n", run.Recorded)
			fmt.Fprintf(w, "  Replayed: %d event(s)\n", run.Replayed)
		}
		if !run.Match && run.FirstDivergence > 0 {
			fmt.Fprintf(w, "  First divergence at seq %d\n", run.FirstDivergence)
		}
		fmt.Fprintln(w)
	}

	if report.AllMatch {
		fmt.Fprintln(w, "✓ All runs replayed deterministically")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Divergence = exit code 1
	return NewExitError(ExitFailure, "replayed trace diverges from recording")
}
