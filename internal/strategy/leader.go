package strategy

import (
	"context"
	"fmt"

	"github.com/albapepper/yoinker/internal/snapshot"
)

// targetLeader acts only when the flag sits with the top absolute scorer.
func (s *Strategy) targetLeader(ctx context.Context, selfID string, snap *snapshot.Snapshot) (bool, error) {
	ranked := Rank(snap.Scores, func(id string) bool { return s.eligible(selfID, id) })
	if len(ranked) == 0 {
		return false, fmt.Errorf("%w: no leader among %d participants", ErrNoCandidates, len(snap.Scores))
	}

	leader := ranked[0]
	if leader.ID == snap.HolderID {
		s.logger.Info("Leader holds the flag, firing",
			"leader", leader.ID, "leader_score", leader.Value)
		return s.fire(ctx), nil
	}

	s.logger.Debug("Waiting for the leader to take the flag",
		"leader", leader.ID, "leader_score", leader.Value,
		"holder", snap.HolderID, "holder_score", snap.Score(snap.HolderID))
	return s.hold(ctx), nil
}
