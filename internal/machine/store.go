package machine

import (
	"sync"

	"github.com/roach88/rheo/internal/term"
)

// Match records one resolved channel rendezvous: the payload delivered,
// the bindings its patterns produced, and the receiver to notify.
type Match struct {
	Channel      string
	Payload      term.Value
	Bindings     map[string]term.Value
	Continuation int64 // receiving instance
	ArmIndex     int   // winning select arm; -1 for plain receives
	NotifySender int64 // sync sender awaiting consumption; 0 if none
}

type sendEntry struct {
	seq        int64
	payload    term.Value
	persistent bool
	owner      int64
	notify     int64 // sync sender instance id; 0 for async sends
}

type recvEntry struct {
	seq          int64
	channel      string
	patterns     []term.Pattern
	mode         term.ReceiveMode
	continuation int64
	armIndex     int
	race         *raceGroup // non-nil for select registrations
}

// raceGroup ties a select's registrations together so the first winning
// channel retracts every sibling registration atomically.
type raceGroup struct {
	done     bool
	channels []string
}

// RaceArm is one channel registration of a select.
type RaceArm struct {
	Chan     term.Channel
	Patterns []term.Pattern
	ArmIndex int
}

// ChannelStore holds, per channel name, the FIFO sequences of pending
// sends and pending receive requests, and resolves matches.
//
// The store is the only structure mutated by more than one machine; every
// operation runs under one mutex, so a match-and-remove is a single
// indivisible operation. Matching is always attempted in FIFO arrival
// order on both sides and each call yields at most one match.
//
// The store is owned by one Scheduler and passed explicitly to every
// transition invocation - never ambient state - so independent runs can
// never interfere.
type ChannelStore struct {
	mu      sync.Mutex
	arrival int64
	sends   map[string][]*sendEntry
	recvs   map[string][]*recvEntry
}

// NewChannelStore creates an empty channel store.
func NewChannelStore() *ChannelStore {
	return &ChannelStore{
		sends: make(map[string][]*sendEntry),
		recvs: make(map[string][]*recvEntry),
	}
}

// Publish offers a payload on a channel, trying pending receive requests
// in FIFO order. On match the removal policy is:
//
//	send persistence | receive mode | send entry | receive entry
//	ONCE             | ONE_SHOT     | removed    | removed
//	ONCE             | PERSISTENT   | removed    | kept
//	PERSISTENT       | ONE_SHOT     | kept       | removed
//	PERSISTENT       | PERSISTENT   | kept       | kept
//	any              | PEEK         | kept       | removed
//
// On no match the send entry joins the pending list. owner identifies the
// publishing instance for retraction; notify names a sync sender to
// acknowledge once the message is consumed (0 for async sends).
func (s *ChannelStore) Publish(ch term.Channel, payload term.Value, persistent bool, owner, notify int64) (*Match, *RuntimeError) {
	if !ch.Caps.Write {
		return nil, NewCapabilityError(owner, ch.ID, "publish")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &sendEntry{
		seq:        s.nextArrival(),
		payload:    payload,
		persistent: persistent,
		owner:      owner,
		notify:     notify,
	}

	pending := s.recvs[ch.ID]
	for i, recv := range pending {
		if recv.race != nil && recv.race.done {
			continue // stale registration awaiting cleanup
		}
		bindings, ok := MatchMessage(recv.patterns, payload)
		if !ok {
			continue // no match - try the next pending receiver
		}

		sendKept := persistent || recv.mode == term.ReceivePeek
		if sendKept {
			s.sends[ch.ID] = append(s.sends[ch.ID], entry)
		}

		if recv.mode != term.ReceivePersistent {
			s.recvs[ch.ID] = append(pending[:i:i], pending[i+1:]...)
		}
		if recv.race != nil {
			s.retractRaceLocked(recv.race)
		}

		m := &Match{
			Channel:      ch.ID,
			Payload:      payload,
			Bindings:     bindings,
			Continuation: recv.continuation,
			ArmIndex:     recv.armIndex,
		}
		if !sendKept {
			m.NotifySender = notify
		}
		return m, nil
	}

	s.sends[ch.ID] = append(s.sends[ch.ID], entry)
	return nil, nil
}

// Request registers interest on a channel, trying pending sends first in
// FIFO order, symmetric to Publish. A persistent request stays registered
// even when it matches immediately.
func (s *ChannelStore) Request(ch term.Channel, patterns []term.Pattern, mode term.ReceiveMode, continuation int64) (*Match, *RuntimeError) {
	if !ch.Caps.Read {
		return nil, NewCapabilityError(continuation, ch.ID, "request")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == term.ReceivePersistent {
		s.recvs[ch.ID] = append(s.recvs[ch.ID], &recvEntry{
			seq:          s.nextArrival(),
			channel:      ch.ID,
			patterns:     patterns,
			mode:         mode,
			continuation: continuation,
			armIndex:     -1,
		})
	}

	if m := s.matchPendingSendLocked(ch.ID, patterns, mode, continuation, -1); m != nil {
		return m, nil
	}

	if mode != term.ReceivePersistent {
		s.recvs[ch.ID] = append(s.recvs[ch.ID], &recvEntry{
			seq:          s.nextArrival(),
			channel:      ch.ID,
			patterns:     patterns,
			mode:         mode,
			continuation: continuation,
			armIndex:     -1,
		})
	}
	return nil, nil
}

// Recheck retries a registered persistent receive against the pending
// sends, yielding at most one match. The scheduler calls it each time a
// persistent receiver re-enters RECEIVING, so a backlog of sends drains
// one instantiation at a time.
func (s *ChannelStore) Recheck(continuation int64) *Match {
	s.mu.Lock()
	defer s.mu.Unlock()

	for channel, pending := range s.recvs {
		for _, recv := range pending {
			if recv.continuation != continuation || recv.mode != term.ReceivePersistent {
				continue
			}
			if m := s.matchPendingSendLocked(channel, recv.patterns, recv.mode, continuation, -1); m != nil {
				return m
			}
		}
	}
	return nil
}

// SelectRace registers a single racing receive across multiple channels.
// The first channel that independently matches wins, and the
// registrations on all other channels are retracted atomically - no entry
// is left dangling. Immediate matches resolve in registration order.
func (s *ChannelStore) SelectRace(arms []RaceArm, continuation int64) (*Match, *RuntimeError) {
	// Capability checks first: a violation must not leave a partial
	// registration behind.
	for _, arm := range arms {
		if !arm.Chan.Caps.Read {
			return nil, NewCapabilityError(continuation, arm.Chan.ID, "request")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, arm := range arms {
		if m := s.matchPendingSendLocked(arm.Chan.ID, arm.Patterns, term.ReceiveOnce, continuation, arm.ArmIndex); m != nil {
			return m, nil
		}
	}

	group := &raceGroup{}
	for _, arm := range arms {
		group.channels = append(group.channels, arm.Chan.ID)
		s.recvs[arm.Chan.ID] = append(s.recvs[arm.Chan.ID], &recvEntry{
			seq:          s.nextArrival(),
			channel:      arm.Chan.ID,
			patterns:     arm.Patterns,
			mode:         term.ReceiveOnce,
			continuation: continuation,
			armIndex:     arm.ArmIndex,
			race:         group,
		})
	}
	return nil, nil
}

// RetractOwner removes every entry owned by the given instances: pending
// sends they published and receive requests continuing to them, including
// whole race groups. Called during cancellation and teardown.
func (s *ChannelStore) RetractOwner(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := make(map[int64]bool, len(ids))
	for _, id := range ids {
		owned[id] = true
	}

	for channel, pending := range s.sends {
		kept := pending[:0]
		for _, e := range pending {
			if !owned[e.owner] {
				kept = append(kept, e)
			}
		}
		s.sends[channel] = kept
	}
	for channel, pending := range s.recvs {
		kept := pending[:0]
		for _, e := range pending {
			if owned[e.continuation] {
				if e.race != nil {
					e.race.done = true
				}
				continue
			}
			kept = append(kept, e)
		}
		s.recvs[channel] = kept
	}
	s.sweepRacesLocked()
}

// WaitingChannels lists the channels an instance has receive requests
// registered on, for deadlock reporting.
func (s *ChannelStore) WaitingChannels(continuation int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for channel, pending := range s.recvs {
		for _, e := range pending {
			if e.continuation == continuation {
				out = append(out, channel)
				break
			}
		}
	}
	return out
}

// PendingSends returns the number of sends waiting on a channel.
func (s *ChannelStore) PendingSends(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends[channel])
}

// PendingReceives returns the number of live receive requests waiting on
// a channel.
func (s *ChannelStore) PendingReceives(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.recvs[channel] {
		if e.race == nil || !e.race.done {
			n++
		}
	}
	return n
}

// matchPendingSendLocked scans one channel's pending sends in FIFO order
// for the first match against a receive row. At most one pair matches per
// call. Caller holds s.mu.
func (s *ChannelStore) matchPendingSendLocked(channel string, patterns []term.Pattern, mode term.ReceiveMode, continuation int64, armIndex int) *Match {
	pending := s.sends[channel]
	for i, send := range pending {
		bindings, ok := MatchMessage(patterns, send.payload)
		if !ok {
			continue
		}

		consumed := !send.persistent && mode != term.ReceivePeek
		if consumed {
			s.sends[channel] = append(pending[:i:i], pending[i+1:]...)
		}

		m := &Match{
			Channel:      channel,
			Payload:      send.payload,
			Bindings:     bindings,
			Continuation: continuation,
			ArmIndex:     armIndex,
		}
		if consumed {
			m.NotifySender = send.notify
		}
		return m
	}
	return nil
}

// retractRaceLocked marks a race group resolved and removes its sibling
// registrations from every channel they were placed on. Caller holds s.mu.
func (s *ChannelStore) retractRaceLocked(group *raceGroup) {
	group.done = true
	s.sweepRacesLocked()
}

// sweepRacesLocked drops registrations belonging to resolved race groups.
// Caller holds s.mu.
func (s *ChannelStore) sweepRacesLocked() {
	for channel, pending := range s.recvs {
		kept := pending[:0]
		for _, e := range pending {
			if e.race != nil && e.race.done {
				continue
			}
			kept = append(kept, e)
		}
		s.recvs[channel] = kept
	}
}

func (s *ChannelStore) nextArrival() int64 {
	s.arrival++
	return s.arrival
}
