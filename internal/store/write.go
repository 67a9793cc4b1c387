package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/rheo/internal/machine"
	"github.com/roach88/rheo/internal/term"
)

// BeginRun inserts the run header: the canonical term, its content
// address, and the external channel names the run was started with.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - re-beginning a
// recorded run is silently ignored.
func (s *Store) BeginRun(ctx context.Context, runID string, root term.Proc, externals []string) error {
	canonical, err := term.MarshalProc(root)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	hash, err := term.TermHash(root)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	if externals == nil {
		externals = []string{}
	}
	externalsJSON, err := json.Marshal(externals)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, term, term_hash, externals)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, runID, string(canonical), hash, string(externalsJSON))
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	return nil
}

// WriteEvent appends one trace event to a run's log.
// Uses ON CONFLICT DO NOTHING for idempotency - a run's (id, seq) pair
// identifies the event, so replaying a recorded step is a no-op.
func (s *Store) WriteEvent(ctx context.Context, runID string, ev machine.TraceEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trace_events
		(run_id, seq, instance, parent, event, from_state, to_state, channel, payload, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		runID,
		ev.Seq,
		ev.Instance,
		ev.Parent,
		ev.Event,
		ev.From,
		ev.To,
		ev.Channel,
		ev.Payload,
		ev.Result,
		ev.Err,
	)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return nil
}

// WriteInjection records one external injection in arrival order. The
// payload is stored as canonical JSON so replay feeds the engine a
// structurally identical value.
func (s *Store) WriteInjection(ctx context.Context, runID string, ordinal int, channel string, payload term.Value) error {
	canonical, err := term.MarshalCanonical(payload)
	if err != nil {
		return fmt.Errorf("write injection: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO injections (run_id, ordinal, channel, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, runID, ordinal, channel, string(canonical))
	if err != nil {
		return fmt.Errorf("write injection: %w", err)
	}

	return nil
}

// FinishRun seals a run with its outcome. Status is "ok" or "error";
// result holds the rendered final value, errMsg the failure description.
func (s *Store) FinishRun(ctx context.Context, runID, status, result, errMsg string, steps int64) error {
	if status != "ok" && status != "error" {
		return fmt.Errorf("finish run: invalid status %q", status)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, result = ?, error = ?, steps = ?
		WHERE id = ?
	`, status, result, errMsg, steps, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	return nil
}

// RunSink adapts a Store to the engine's trace sink interface, streaming
// each recorded step into the run log as it happens.
type RunSink struct {
	store *Store
	ctx   context.Context
	runID string
}

// NewRunSink creates a sink writing trace events for runID.
func (s *Store) NewRunSink(ctx context.Context, runID string) *RunSink {
	return &RunSink{store: s, ctx: ctx, runID: runID}
}

// Record implements machine.Sink.
func (r *RunSink) Record(ev machine.TraceEvent) error {
	return r.store.WriteEvent(r.ctx, r.runID, ev)
}
