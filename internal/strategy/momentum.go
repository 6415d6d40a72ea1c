package strategy

import (
	"context"
	"fmt"

	"github.com/albapepper/yoinker/internal/snapshot"
)

// targetMomentumLeader acts when the holder is among the K participants whose
// score grew the most across the window. Without a delta (a window of one
// snapshot, or nobody moved) it ranks by absolute score with the wider
// fallback K.
func (s *Strategy) targetMomentumLeader(ctx context.Context, selfID string, snap *snapshot.Snapshot, delta snapshot.Delta) (bool, error) {
	keep := func(id string) bool { return s.eligible(selfID, id) }

	if len(delta) == 0 {
		ranked := Rank(snap.Scores, keep)
		if len(ranked) == 0 {
			return false, fmt.Errorf("%w: no fallback targets among %d participants", ErrNoCandidates, len(snap.Scores))
		}
		if inTop(ranked, s.params.FallbackK, snap.HolderID) {
			s.logger.Info("Holder is a top scorer, firing",
				"holder", snap.HolderID, "holder_score", snap.Score(snap.HolderID),
				"k", s.params.FallbackK, "basis", "absolute")
			return s.fire(ctx), nil
		}
		s.logger.Debug("Holder is not a top scorer",
			"holder", snap.HolderID, "top", ranked[0].ID, "k", s.params.FallbackK, "basis", "absolute")
		return s.hold(ctx), nil
	}

	ranked := Rank(delta, keep)
	if len(ranked) == 0 {
		// Only ourselves or pseudo-accounts moved, so nobody is a target.
		s.logger.Debug("No momentum target", "movers", len(delta))
		return s.hold(ctx), nil
	}

	if inTop(ranked, s.params.K, snap.HolderID) {
		s.logger.Info("Holder has momentum, firing",
			"holder", snap.HolderID, "holder_delta", delta[snap.HolderID],
			"holder_score", snap.Score(snap.HolderID), "k", s.params.K)
		return s.fire(ctx), nil
	}

	s.logger.Debug("Waiting for a momentum leader to take the flag",
		"target", ranked[0].ID, "target_delta", ranked[0].Value,
		"holder", snap.HolderID, "holder_delta", delta[snap.HolderID], "k", s.params.K)
	return s.hold(ctx), nil
}
