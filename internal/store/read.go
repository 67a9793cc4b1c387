package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/rheo/internal/machine"
	"github.com/roach88/rheo/internal/term"
)

// ErrRunNotFound is returned when a run id has no record.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded engine run.
type Run struct {
	ID        string   `json:"id"`
	CreatedAt string   `json:"created_at"`
	Term      string   `json:"term"` // canonical JSON of the root term
	TermHash  string   `json:"term_hash"`
	Externals []string `json:"externals,omitempty"` // external channel names the run was started with
	Status    string   `json:"status"`              // running | ok | error
	Result    string   `json:"result,omitempty"`
	Error     string   `json:"error,omitempty"`
	Steps     int64    `json:"steps"`
}

// Injection is one recorded external message, in arrival order.
type Injection struct {
	Ordinal int
	Channel string
	Payload term.Value
}

// GetRun fetches a run header by id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	var externals string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, term, term_hash, externals, status, result, error, steps
		FROM runs WHERE id = ?
	`, runID).Scan(&r.ID, &r.CreatedAt, &r.Term, &r.TermHash, &externals, &r.Status, &r.Result, &r.Error, &r.Steps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(externals), &r.Externals); err != nil {
		return nil, fmt.Errorf("get run %s: externals: %w", runID, err)
	}
	return &r, nil
}

// ListRuns returns run headers, newest first, up to limit (0 means all).
// Ordering is deterministic: created_at DESC, then id DESC.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, created_at, term, term_hash, externals, status, result, error, steps
		FROM runs ORDER BY created_at DESC, id COLLATE BINARY DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var externals string
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Term, &r.TermHash, &externals, &r.Status, &r.Result, &r.Error, &r.Steps); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(externals), &r.Externals); err != nil {
			return nil, fmt.Errorf("list runs: externals: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ReadTrace returns a run's full trace in seq order.
func (s *Store) ReadTrace(ctx context.Context, runID string) ([]machine.TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, instance, parent, event, from_state, to_state, channel, payload, result, error
		FROM trace_events WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", runID, err)
	}
	defer rows.Close()

	events := []machine.TraceEvent{}
	for rows.Next() {
		var ev machine.TraceEvent
		if err := rows.Scan(&ev.Seq, &ev.Instance, &ev.Parent, &ev.Event, &ev.From, &ev.To, &ev.Channel, &ev.Payload, &ev.Result, &ev.Err); err != nil {
			return nil, fmt.Errorf("read trace %s: scan: %w", runID, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read trace %s: %w", runID, err)
	}
	return events, nil
}

// ReadInjections returns a run's recorded injections in arrival order,
// payloads decoded back to values.
func (s *Store) ReadInjections(ctx context.Context, runID string) ([]Injection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ordinal, channel, payload
		FROM injections WHERE run_id = ? ORDER BY ordinal ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read injections %s: %w", runID, err)
	}
	defer rows.Close()

	injections := []Injection{}
	for rows.Next() {
		var inj Injection
		var payload string
		if err := rows.Scan(&inj.Ordinal, &inj.Channel, &payload); err != nil {
			return nil, fmt.Errorf("read injections %s: scan: %w", runID, err)
		}
		val, err := term.UnmarshalValue([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("read injections %s: ordinal %d: %w", runID, inj.Ordinal, err)
		}
		inj.Payload = val
		injections = append(injections, inj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read injections %s: %w", runID, err)
	}
	return injections, nil
}

// ReadTerm decodes a run's stored root term.
func (s *Store) ReadTerm(ctx context.Context, runID string) (term.Proc, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	root, err := term.UnmarshalProc([]byte(run.Term))
	if err != nil {
		return nil, fmt.Errorf("read term %s: %w", runID, err)
	}
	return root, nil
}
