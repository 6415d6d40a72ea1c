package scheduler

import (
	"time"

	"github.com/albapepper/yoinker/internal/snapshot"
)

// Status is a read-only copy of the scheduler's view, safe to hand to other
// goroutines.
type Status struct {
	State        string         `json:"state"`
	SelfID       string         `json:"self_id"`
	Strategy     string         `json:"strategy"`
	HolderID     string         `json:"holder_id,omitempty"`
	HolderName   string         `json:"holder_name,omitempty"`
	WindowLen    int            `json:"window_len"`
	WindowCap    int            `json:"window_cap"`
	Delta        snapshot.Delta `json:"delta"`
	Deadline     time.Time      `json:"deadline"`
	LastResult   string         `json:"last_result,omitempty"`
	LastActionAt *time.Time     `json:"last_action_at,omitempty"`
	Cycles       uint64         `json:"cycles"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (s *Scheduler) publish() {
	st := &Status{
		State:      s.state.String(),
		SelfID:     s.opts.SelfID,
		Strategy:   s.opts.StrategyName,
		WindowLen:  s.store.Len(),
		WindowCap:  s.store.Cap(),
		Delta:      s.store.Delta(),
		Deadline:   s.deadline,
		LastResult: s.lastResult,
		Cycles:     s.cycles,
		UpdatedAt:  s.sleeper.Clock().Now(),
	}
	if newest := s.latest; newest != nil {
		st.HolderID = newest.HolderID
		st.HolderName = newest.HolderName
	}
	if !s.lastActionAt.IsZero() {
		at := s.lastActionAt
		st.LastActionAt = &at
	}
	s.status.Store(st)
}
