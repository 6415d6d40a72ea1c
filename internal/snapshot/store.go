package snapshot

import (
	"fmt"
	"log/slog"
)

// Store is a rolling window of the last N distinct snapshots together with
// the delta between its oldest and newest entries.
//
// Store is not safe for concurrent use. It is owned by the scheduler task.
type Store struct {
	ring   []*Snapshot
	head   int // index of the oldest entry
	size   int
	delta  Delta
	logger *slog.Logger
}

// NewStore creates a window holding at most capacity snapshots.
func NewStore(capacity int, logger *slog.Logger) *Store {
	if capacity < 1 {
		panic(fmt.Sprintf("snapshot: window capacity must be positive, got %d", capacity))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		ring:   make([]*Snapshot, capacity),
		delta:  Delta{},
		logger: logger,
	}
}

// Push appends snap unless its scores match the newest entry. It reports
// whether the window changed; the delta is recomputed only when it did.
func (s *Store) Push(snap *Snapshot) bool {
	if newest := s.Newest(); newest != nil && newest.Scores.Equal(snap.Scores) {
		return false
	}

	first := s.size == 0
	if s.size == len(s.ring) {
		s.ring[s.head] = snap
		s.head = (s.head + 1) % len(s.ring)
	} else {
		s.ring[(s.head+s.size)%len(s.ring)] = snap
		s.size++
	}

	basis := Scores{}
	if !first {
		basis = s.Oldest().Scores
	}
	s.delta = Subtract(snap.Scores, basis, s.logger)

	if first {
		s.logger.Info("First snapshot received", "participants", len(snap.Scores))
	}
	return true
}

// Oldest returns the oldest snapshot in the window, or nil if it is empty.
func (s *Store) Oldest() *Snapshot {
	if s.size == 0 {
		return nil
	}
	return s.ring[s.head]
}

// Newest returns the most recent snapshot in the window, or nil if it is empty.
func (s *Store) Newest() *Snapshot {
	if s.size == 0 {
		return nil
	}
	return s.ring[(s.head+s.size-1)%len(s.ring)]
}

// Delta returns a copy of the current delta.
func (s *Store) Delta() Delta {
	return s.delta.Clone()
}

// Momentum returns the delta when the window holds at least two snapshots,
// and nil before then. A single entry has no basis to measure growth against,
// so its delta is just the absolute scores.
func (s *Store) Momentum() Delta {
	if s.size < 2 {
		return nil
	}
	return s.delta.Clone()
}

// Len returns the number of snapshots held.
func (s *Store) Len() int { return s.size }

// Cap returns the fixed window capacity.
func (s *Store) Cap() int { return len(s.ring) }
