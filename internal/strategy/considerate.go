package strategy

import (
	"context"

	"github.com/albapepper/yoinker/internal/snapshot"
)

// considerate normally acts, but usually leaves alone a holder who is both
// under the freeloader threshold and behind us.
func (s *Strategy) considerate(ctx context.Context, selfID string, snap *snapshot.Snapshot) (bool, error) {
	holderScore := snap.Score(snap.HolderID)
	selfScore := snap.Score(selfID)

	if holderScore < s.params.FreeloaderThreshold && holderScore < selfScore {
		if s.sleeper.Chance(s.params.NiceProbability) {
			s.logger.Debug("Holder is behind us, leaving them the flag",
				"holder", snap.HolderID, "holder_score", holderScore, "self_score", selfScore)
			s.sleeper.SleepBetween(ctx, considerateSkipL, considerateSkipH)
			return false, nil
		}
		s.logger.Info("Taking the flag from a weaker holder anyway",
			"holder", snap.HolderID, "holder_score", holderScore, "self_score", selfScore)
	}

	wait := s.sleeper.SleepBetween(ctx, 0, considerateFire)
	s.logger.Info("Preparing to take the flag",
		"holder", snap.HolderID, "holder_score", holderScore, "self_score", selfScore, "waited", wait)
	return true, nil
}
