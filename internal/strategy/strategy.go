// Package strategy decides whether the agent should try to take the flag
// from its current holder.
//
// The set of strategies is closed: a Strategy is one of TargetLeader,
// TargetMomentumLeader or Considerate, chosen once at startup. Decide may
// watch for a short, cancellable, jittered interval before it answers.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/yoinker/internal/sleep"
	"github.com/albapepper/yoinker/internal/snapshot"
)

// ErrNoCandidates means there was nobody eligible to rank this cycle.
var ErrNoCandidates = errors.New("no eligible participants to rank")

// Kind identifies a strategy variant.
type Kind int

const (
	TargetLeader Kind = iota + 1
	TargetMomentumLeader
	Considerate
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case TargetLeader:
		return "target-leader"
	case TargetMomentumLeader:
		return "target-momentum-leader"
	case Considerate:
		return "considerate"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range []Kind{TargetLeader, TargetMomentumLeader, Considerate} {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

// Watch windows. Acting waits briefly so competing agents don't fire in
// lockstep; waiting throttles the scheduler loop.
const (
	fireMax          = 1000 * time.Millisecond
	holdMin          = 500 * time.Millisecond
	holdMax          = 2000 * time.Millisecond
	considerateFire  = 3000 * time.Millisecond
	considerateSkipL = 1000 * time.Millisecond
	considerateSkipH = 10000 * time.Millisecond
)

// Defaults for the tunable parameters.
const (
	DefaultMomentumK           = 1
	DefaultFallbackK           = 3
	DefaultFreeloaderThreshold = 6 * 60 * 60
	DefaultNiceProbability     = 0.75
)

// DefaultExcluded lists pseudo-accounts that hold score but never compete.
var DefaultExcluded = []string{"platform:farcaster"}

// Params carries the tunables for every variant. Fields a variant does not
// use are ignored.
type Params struct {
	K                   int
	FallbackK           int
	FreeloaderThreshold uint64
	NiceProbability     float64
	Excluded            []string
}

// Strategy is the active decision policy.
type Strategy struct {
	kind     Kind
	params   Params
	excluded map[string]struct{}
	sleeper  *sleep.Sleeper
	logger   *slog.Logger
}

// New creates a strategy of the given kind. Non-positive K values and a nil
// exclusion list fall back to the package defaults.
func New(kind Kind, p Params, sleeper *sleep.Sleeper, logger *slog.Logger) (*Strategy, error) {
	if _, err := ParseKind(kind.String()); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if p.K <= 0 {
		p.K = DefaultMomentumK
	}
	if p.FallbackK <= 0 {
		p.FallbackK = max(DefaultFallbackK, p.K)
	}
	if p.NiceProbability < 0 || p.NiceProbability > 1 {
		return nil, fmt.Errorf("nice probability %v outside [0,1]", p.NiceProbability)
	}
	if p.Excluded == nil {
		p.Excluded = DefaultExcluded
	}

	excluded := make(map[string]struct{}, len(p.Excluded))
	for _, id := range p.Excluded {
		excluded[id] = struct{}{}
	}

	return &Strategy{
		kind:     kind,
		params:   p,
		excluded: excluded,
		sleeper:  sleeper,
		logger:   logger.With("strategy", kind.String()),
	}, nil
}

// Kind returns the variant.
func (s *Strategy) Kind() Kind { return s.kind }

// Params returns the effective parameters.
func (s *Strategy) Params() Params { return s.params }

// Decide reports whether the agent should act against the current holder.
func (s *Strategy) Decide(ctx context.Context, selfID string, snap *snapshot.Snapshot, delta snapshot.Delta) (bool, error) {
	if snap == nil {
		return false, fmt.Errorf("%w: no snapshot", ErrNoCandidates)
	}

	switch s.kind {
	case TargetLeader:
		return s.targetLeader(ctx, selfID, snap)
	case TargetMomentumLeader:
		return s.targetMomentumLeader(ctx, selfID, snap, delta)
	case Considerate:
		return s.considerate(ctx, selfID, snap)
	default:
		return false, fmt.Errorf("unknown strategy %v", s.kind)
	}
}

// fire and hold are the shared watch-then-answer endings.
func (s *Strategy) fire(ctx context.Context) bool {
	s.sleeper.SleepBetween(ctx, 0, fireMax)
	return true
}

func (s *Strategy) hold(ctx context.Context) bool {
	s.sleeper.SleepBetween(ctx, holdMin, holdMax)
	return false
}

func (s *Strategy) eligible(selfID, id string) bool {
	if id == selfID {
		return false
	}
	_, skip := s.excluded[id]
	return !skip
}
