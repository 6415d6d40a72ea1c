package yoink

import (
	"github.com/albapepper/yoinker/internal/snapshot"
	"github.com/albapepper/yoinker/internal/strategy"
)

// Entry is one leaderboard row.
type Entry struct {
	Rank   int    `json:"rank"`
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Score  uint64 `json:"score"`
	Holder bool   `json:"holder"`
}

// Leaderboard ranks everyone by total hold time. Ties share the order used by
// the strategies: id ascending. A limit of zero or less returns every row.
func (s *Stats) Leaderboard(limit int) []Entry {
	ranked := strategy.Rank(snapshot.Scores(s.UserTimes), nil)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]Entry, len(ranked))
	for i, r := range ranked {
		out[i] = Entry{
			Rank:   i + 1,
			ID:     r.ID,
			Name:   s.Users[r.ID],
			Score:  r.Value,
			Holder: r.ID == s.Flag.HolderID,
		}
	}
	return out
}
