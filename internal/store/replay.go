package store

import (
	"context"
	"fmt"

	"github.com/roach88/rheo/internal/machine"
)

// ReplayResult reports a deterministic replay of a recorded run.
type ReplayResult struct {
	RunID    string
	Match    bool
	Recorded int // recorded trace length
	Replayed int // replayed trace length

	// FirstDivergence is the seq of the first differing event, 0 when the
	// traces agree.
	FirstDivergence int64
}

// Replay re-executes a recorded run from its stored term and injections
// and compares the fresh trace against the recorded one event-for-event.
//
// Determinism makes this exact: the replay uses a name generator seeded
// by the run id (the same seeding the original run used), so even minted
// channel ids must reproduce. Any divergence indicates corruption of the
// log or a behavioral change in the engine.
func (s *Store) Replay(ctx context.Context, runID string) (*ReplayResult, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	root, err := s.ReadTerm(ctx, runID)
	if err != nil {
		return nil, err
	}
	recorded, err := s.ReadTrace(ctx, runID)
	if err != nil {
		return nil, err
	}
	injections, err := s.ReadInjections(ctx, runID)
	if err != nil {
		return nil, err
	}

	mem := machine.NewMemorySink()
	sched := machine.NewScheduler(
		machine.WithNameGenerator(machine.NewFixedGenerator(runID)),
		machine.WithExternalNames(run.Externals...),
		machine.WithTraceSink(mem),
	)
	for _, inj := range injections {
		if err := sched.Inject(inj.Channel, inj.Payload); err != nil {
			return nil, fmt.Errorf("replay %s: inject ordinal %d: %w", runID, inj.Ordinal, err)
		}
	}

	// A recorded failure replays as the same failure; the trace captured
	// by the sink up to that point still participates in the comparison.
	_, runErr := sched.Run(ctx, root)
	if runErr != nil && run.Status != "error" {
		return nil, fmt.Errorf("replay %s: run failed but recording succeeded: %w", runID, runErr)
	}
	replayed := mem.Events()

	result := &ReplayResult{
		RunID:    runID,
		Match:    true,
		Recorded: len(recorded),
		Replayed: len(replayed),
	}
	if len(recorded) != len(replayed) {
		result.Match = false
	}
	n := min(len(recorded), len(replayed))
	for i := 0; i < n; i++ {
		if recorded[i] != replayed[i] {
			result.Match = false
			result.FirstDivergence = recorded[i].Seq
			return result, nil
		}
	}
	if !result.Match && result.FirstDivergence == 0 && n < len(recorded) {
		result.FirstDivergence = recorded[n].Seq
	}
	return result, nil
}
