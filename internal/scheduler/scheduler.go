// Package scheduler sequences receive, diff, decide, act and cooldown.
//
// The scheduler owns the rolling window and the impatience deadline. When the
// deadline passes without an action, the next cycle acts without consulting
// the strategy, so a strategy that keeps waiting cannot stall the agent
// forever.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/albapepper/yoinker/internal/metrics"
	"github.com/albapepper/yoinker/internal/provider/neynar"
	"github.com/albapepper/yoinker/internal/sleep"
	"github.com/albapepper/yoinker/internal/snapshot"
	"github.com/albapepper/yoinker/internal/strategy"
)

// ErrFeedClosed is returned by Run when the snapshot feed closes while the
// scheduler is still supposed to be running.
var ErrFeedClosed = errors.New("snapshot feed closed")

// ErrUnexpectedResult wraps an action response that could not be classified.
var ErrUnexpectedResult = errors.New("unexpected action result")

// State is the scheduler's position in its cycle.
type State int

const (
	WaitForSnapshot State = iota
	Holding
	Deciding
	Acting
	Cooldown
)

var allStates = []State{WaitForSnapshot, Holding, Deciding, Acting, Cooldown}

func (s State) String() string {
	switch s {
	case WaitForSnapshot:
		return "wait_for_snapshot"
	case Holding:
		return "holding"
	case Deciding:
		return "deciding"
	case Acting:
		return "acting"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Decider answers act-or-wait for the newest snapshot.
type Decider interface {
	Decide(ctx context.Context, selfID string, snap *snapshot.Snapshot, delta snapshot.Delta) (bool, error)
}

// Executor performs the yoink.
type Executor interface {
	Act(ctx context.Context) (neynar.Result, error)
}

// Options configures a Scheduler. Zero durations pick defaults.
type Options struct {
	SelfID         string
	StrategyName   string
	WindowSize     int
	ReceiveTimeout time.Duration
	ErrorBackoff   time.Duration
}

// Scheduler runs the decision loop. Everything except the published status
// is confined to the goroutine calling Run.
type Scheduler struct {
	opts     Options
	feed     <-chan *snapshot.Snapshot
	decider  Decider
	executor Executor
	sleeper  *sleep.Sleeper
	store    *snapshot.Store
	logger   *slog.Logger

	// latest is the last snapshot received, kept even when its scores match
	// the window's newest entry and Push drops it. Holder checks read it.
	latest *snapshot.Snapshot

	state        State
	deadline     time.Time
	cycles       uint64
	lastResult   string
	lastActionAt time.Time

	status atomic.Pointer[Status]
}

// New creates a scheduler. The first impatience deadline is half a cooldown
// from now.
func New(opts Options, feed <-chan *snapshot.Snapshot, decider Decider, executor Executor, sleeper *sleep.Sleeper, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = 12
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = 5 * time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 750 * time.Millisecond
	}

	s := &Scheduler{
		opts:     opts,
		feed:     feed,
		decider:  decider,
		executor: executor,
		sleeper:  sleeper,
		store:    snapshot.NewStore(opts.WindowSize, logger),
		logger:   logger,
		deadline: sleeper.Clock().Now().Add(sleeper.Cooldown() / 2),
	}
	s.publish()
	return s
}

// Run loops until ctx is cancelled. Cycle errors are logged and followed by
// the error backoff; none of them is fatal. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Scheduler started",
		"self", s.opts.SelfID,
		"strategy", s.opts.StrategyName,
		"window", s.opts.WindowSize,
		"deadline", s.deadline)

	for {
		if ctx.Err() != nil {
			s.logger.Info("Scheduler stopped")
			return nil
		}

		err := s.cycle(ctx)
		metrics.SchedulerCycles.WithLabelValues(s.state.String()).Inc()
		s.cycles++
		s.publish()

		if ctx.Err() != nil {
			s.logger.Info("Scheduler stopped")
			return nil
		}
		if errors.Is(err, ErrFeedClosed) {
			return err
		}
		if err != nil {
			metrics.SchedulerErrors.WithLabelValues(errorKind(err)).Inc()
			s.logger.Error("Cycle failed, backing off", "error", err, "backoff", s.opts.ErrorBackoff)
			s.sleeper.Sleep(ctx, s.opts.ErrorBackoff)
		}
	}
}

// Status returns the most recently published status.
func (s *Scheduler) Status() Status {
	return *s.status.Load()
}

// Deadline returns the current impatience deadline.
func (s *Scheduler) Deadline() time.Time {
	return s.status.Load().Deadline
}

func (s *Scheduler) cycle(ctx context.Context) error {
	s.setState(WaitForSnapshot)
	if err := s.receive(ctx); err != nil {
		return err
	}

	newest := s.latest
	if newest == nil {
		return nil
	}

	if newest.HolderID == s.opts.SelfID {
		s.setState(Holding)
		s.logger.Debug("Holding the flag")
		s.sleeper.Sleep(ctx, s.sleeper.ShortJitter())
		return nil
	}

	now := s.sleeper.Clock().Now()
	if now.After(s.deadline) {
		metrics.Escalations.Inc()
		s.logger.Warn("impatient",
			"overdue", now.Sub(s.deadline).Round(time.Second),
			"holder", newest.HolderID)
	} else {
		s.setState(Deciding)
		act, err := s.decider.Decide(ctx, s.opts.SelfID, newest, s.store.Momentum())
		if err != nil {
			metrics.Decisions.WithLabelValues(s.opts.StrategyName, "error").Inc()
			return fmt.Errorf("decide: %w", err)
		}
		if !act {
			metrics.Decisions.WithLabelValues(s.opts.StrategyName, "wait").Inc()
			return nil
		}
		metrics.Decisions.WithLabelValues(s.opts.StrategyName, "act").Inc()
	}

	return s.act(ctx)
}

// receive waits up to ReceiveTimeout for a snapshot, then drains whatever
// else is queued without blocking.
func (s *Scheduler) receive(ctx context.Context) error {
	t := s.sleeper.Clock().NewTimer(s.opts.ReceiveTimeout)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-t.Chan():
		return nil
	case snap, ok := <-s.feed:
		if !ok {
			return ErrFeedClosed
		}
		s.push(snap)
	}

	for {
		select {
		case snap, ok := <-s.feed:
			if !ok {
				return ErrFeedClosed
			}
			s.push(snap)
		default:
			return nil
		}
	}
}

func (s *Scheduler) push(snap *snapshot.Snapshot) {
	if prev := s.latest; prev != nil && prev.HolderID != snap.HolderID {
		s.logger.Debug("Holder changed", "from", prev.HolderID, "to", snap.HolderID)
	}
	s.latest = snap
	if s.store.Push(snap) {
		metrics.WindowChanges.Inc()
		s.logger.Debug("Window changed", "len", s.store.Len(), "movers", len(s.store.Delta()))
	}
}

func (s *Scheduler) act(ctx context.Context) error {
	s.setState(Acting)
	res, err := s.executor.Act(ctx)

	now := s.sleeper.Clock().Now()
	cooldown := s.sleeper.Cooldown()
	s.lastActionAt = now
	s.deadline = now.Add(cooldown + s.sleeper.ShortJitter())

	switch {
	case errors.Is(err, neynar.ErrRateLimitInconsistency):
		s.lastResult = "rate_limit_inconsistency"
		metrics.SchedulerErrors.WithLabelValues("rate_limit_inconsistency").Inc()
		s.logger.Warn("Rate limit date inconsistent, waiting full cooldown", "error", err, "cooldown", cooldown)
		s.cooldown(ctx, cooldown)
		return nil
	case err != nil:
		s.lastResult = "error"
		return fmt.Errorf("act: %w", err)
	}

	s.lastResult = res.Kind.String()
	switch res.Kind {
	case neynar.Succeeded:
		s.deadline = now.Add(cooldown + s.sleeper.LongJitter())
		s.cooldown(ctx, s.sleeper.CooldownJitter())
	case neynar.RateLimited:
		s.cooldown(ctx, res.RetryAfter)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrUnexpectedResult, res.Status, res.RawBody)
	}
	return nil
}

func (s *Scheduler) cooldown(ctx context.Context, d time.Duration) {
	s.setState(Cooldown)
	s.logger.Info("Cooling down", "for", d.Round(time.Second), "deadline", s.deadline)
	s.sleeper.Sleep(ctx, d)
}

func (s *Scheduler) setState(st State) {
	s.state = st
	for _, other := range allStates {
		v := 0.0
		if other == st {
			v = 1
		}
		metrics.SchedulerState.WithLabelValues(other.String()).Set(v)
	}
	s.publish()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, strategy.ErrNoCandidates):
		return "no_candidates"
	case errors.Is(err, ErrUnexpectedResult):
		return "unexpected_result"
	default:
		return "transient"
	}
}
