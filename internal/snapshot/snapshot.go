// Package snapshot holds point-in-time reads of the game leaderboard and the
// fixed-capacity rolling window the scheduler keeps of them.
//
// Snapshots are immutable once built. The window never grows past the
// capacity it was constructed with; pushing onto a full window evicts the
// oldest entry.
package snapshot

import (
	"log/slog"
	"maps"
	"time"
)

// Scores maps a participant id to its cumulative held time.
type Scores map[string]uint64

// Delta maps a participant id to its score growth across the window.
// Every value is strictly positive.
type Delta map[string]uint64

// Snapshot is one read of the flag holder plus every participant's score.
type Snapshot struct {
	HolderID       string
	HolderName     string
	HolderPlatform string
	Scores         Scores
	Users          map[string]string
	FetchedAt      time.Time
}

// Score returns the score for id, or zero if the id is unknown.
func (s *Snapshot) Score(id string) uint64 {
	return s.Scores[id]
}

// Name returns the display name for id, falling back to the id itself.
func (s *Snapshot) Name(id string) string {
	if n, ok := s.Users[id]; ok && n != "" {
		return n
	}
	return id
}

// Equal reports whether two score mappings hold the same entries.
func (s Scores) Equal(other Scores) bool {
	return maps.Equal(s, other)
}

// Subtract returns newer minus older, keeping only strictly positive entries.
//
// Keys present only in newer pass through unchanged. Keys present only in
// older are stale and logged. Values are unsigned, so an entry that shrank or
// stayed level is dropped instead of wrapping.
func Subtract(newer, older Scores, logger *slog.Logger) Delta {
	if logger == nil {
		logger = slog.Default()
	}

	result := make(Delta, len(newer))
	for id, v := range newer {
		if v > 0 {
			result[id] = v
		}
	}

	for id, old := range older {
		cur, ok := newer[id]
		if !ok {
			logger.Warn("Stale participant missing from newer scores", "participant", id)
			continue
		}
		if cur <= old {
			delete(result, id)
			continue
		}
		result[id] = cur - old
	}

	return result
}

// Clone returns an independent copy of d.
func (d Delta) Clone() Delta {
	if d == nil {
		return Delta{}
	}
	return maps.Clone(d)
}
