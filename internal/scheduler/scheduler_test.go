package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/yoinker/internal/provider/neynar"
	"github.com/albapepper/yoinker/internal/sleep"
	"github.com/albapepper/yoinker/internal/snapshot"
	"github.com/albapepper/yoinker/internal/strategy"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	self     = "me"
	cooldown = 10 * time.Minute
)

type stubDecider struct {
	calls atomic.Int32
	fn    func(n int32) (bool, error)
}

func (d *stubDecider) Decide(ctx context.Context, selfID string, snap *snapshot.Snapshot, delta snapshot.Delta) (bool, error) {
	return d.fn(d.calls.Add(1))
}

type stubExecutor struct {
	calls atomic.Int32
	fn    func(n int32) (neynar.Result, error)
}

func (e *stubExecutor) Act(ctx context.Context) (neynar.Result, error) {
	return e.fn(e.calls.Add(1))
}

type harness struct {
	clock    *clockwork.FakeClock
	feed     chan *snapshot.Snapshot
	decider  *stubDecider
	executor *stubExecutor
	sched    *Scheduler
	ctx      context.Context
	cancel   context.CancelFunc
	start    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    clockwork.NewFakeClock(),
		feed:     make(chan *snapshot.Snapshot, 8),
		decider:  &stubDecider{fn: func(int32) (bool, error) { return false, nil }},
		executor: &stubExecutor{fn: func(int32) (neynar.Result, error) { return neynar.Result{Kind: neynar.Succeeded}, nil }},
	}
	h.start = h.clock.Now()
	h.ctx, h.cancel = context.WithCancel(context.Background())
	t.Cleanup(h.cancel)

	sl := sleep.New(h.clock, cooldown, sleep.Seeded(7))
	h.sched = New(Options{SelfID: self, StrategyName: "stub", WindowSize: 4}, h.feed, h.decider, h.executor, sl, quiet)
	return h
}

// run starts the scheduler and returns a channel carrying Run's result.
func (h *harness) run() <-chan error {
	done := make(chan error, 1)
	go func() { done <- h.sched.Run(h.ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func holderSnap(holder string) *snapshot.Snapshot {
	return &snapshot.Snapshot{HolderID: holder, Scores: snapshot.Scores{"a": 150, "b": 50, self: 10}}
}

func TestNew_InitialDeadlineIsHalfCooldown(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, h.start.Add(cooldown/2), h.sched.Deadline())
	assert.Equal(t, "wait_for_snapshot", h.sched.Status().State)
}

func TestRun_EscalatesPastDeadline(t *testing.T) {
	h := newHarness(t)
	h.decider.fn = func(int32) (bool, error) { return false, nil }
	h.executor.fn = func(int32) (neynar.Result, error) {
		h.cancel()
		return neynar.Result{Kind: neynar.Succeeded}, nil
	}

	h.clock.Advance(cooldown/2 + time.Second)
	h.feed <- holderSnap("a")

	require.NoError(t, wait(t, h.run()))

	assert.Equal(t, int32(0), h.decider.calls.Load(), "strategy must be bypassed")
	assert.Equal(t, int32(1), h.executor.calls.Load())

	st := h.sched.Status()
	assert.Equal(t, "succeeded", st.LastResult)
	now := h.clock.Now()
	assert.False(t, st.Deadline.Before(now.Add(cooldown)))
	assert.False(t, st.Deadline.After(now.Add(cooldown+cooldown/2)))
}

func TestRun_NoEscalationBeforeDeadline(t *testing.T) {
	h := newHarness(t)
	h.decider.fn = func(int32) (bool, error) {
		h.cancel()
		return false, nil
	}

	h.feed <- holderSnap("a")

	require.NoError(t, wait(t, h.run()))

	assert.Equal(t, int32(1), h.decider.calls.Load())
	assert.Equal(t, int32(0), h.executor.calls.Load())
	assert.Equal(t, h.start.Add(cooldown/2), h.sched.Deadline())
}

func TestRun_RateLimitedResetsDeadlineWithShortJitter(t *testing.T) {
	h := newHarness(t)
	h.decider.fn = func(int32) (bool, error) { return true, nil }
	h.executor.fn = func(int32) (neynar.Result, error) {
		h.cancel()
		return neynar.Result{Kind: neynar.RateLimited, RetryAfter: 9 * time.Minute}, nil
	}

	h.feed <- holderSnap("a")

	require.NoError(t, wait(t, h.run()))

	st := h.sched.Status()
	assert.Equal(t, "rate_limited", st.LastResult)
	require.NotNil(t, st.LastActionAt)
	now := h.clock.Now()
	assert.False(t, st.Deadline.Before(now.Add(cooldown)))
	assert.False(t, st.Deadline.After(now.Add(cooldown+cooldown/10)))
}

func TestRun_RateLimitInconsistencyIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.decider.fn = func(int32) (bool, error) { return true, nil }
	h.executor.fn = func(int32) (neynar.Result, error) {
		h.cancel()
		return neynar.Result{Kind: neynar.RateLimited}, fmt.Errorf("%w: stale", neynar.ErrRateLimitInconsistency)
	}

	h.feed <- holderSnap("a")

	require.NoError(t, wait(t, h.run()))
	assert.Equal(t, "rate_limit_inconsistency", h.sched.Status().LastResult)
	assert.True(t, h.sched.Deadline().After(h.start.Add(cooldown/2)))
}

func TestRun_UnexpectedResultResetsDeadline(t *testing.T) {
	h := newHarness(t)
	h.decider.fn = func(int32) (bool, error) { return true, nil }
	h.executor.fn = func(int32) (neynar.Result, error) {
		h.cancel()
		return neynar.Result{Kind: neynar.Unexpected, Status: 500, RawBody: "boom"}, nil
	}

	h.feed <- holderSnap("a")

	require.NoError(t, wait(t, h.run()))
	assert.Equal(t, "unexpected", h.sched.Status().LastResult)
	assert.False(t, h.sched.Deadline().Before(h.clock.Now().Add(cooldown)))
}

func TestRun_HoldingSkipsStrategy(t *testing.T) {
	h := newHarness(t)
	h.feed <- holderSnap(self)
	done := h.run()

	require.Eventually(t, func() bool { return h.sched.Status().HolderID == self }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return h.sched.Status().Cycles >= 1 }, time.Second, 5*time.Millisecond)

	h.cancel()
	require.NoError(t, wait(t, done))

	assert.Equal(t, int32(0), h.decider.calls.Load())
	assert.Equal(t, int32(0), h.executor.calls.Load())
	assert.Equal(t, self, h.sched.Status().HolderID)
}

func TestRun_HolderChangeWithUnchangedScores(t *testing.T) {
	h := newHarness(t)
	h.decider.fn = func(int32) (bool, error) {
		h.cancel()
		return false, nil
	}

	// Same scores, new holder: the window keeps one entry but the holder
	// check must follow the latest read.
	h.feed <- holderSnap("a")
	h.feed <- holderSnap(self)
	done := h.run()

	require.Eventually(t, func() bool { return h.sched.Status().State == "holding" }, time.Second, 5*time.Millisecond)
	st := h.sched.Status()
	assert.Equal(t, self, st.HolderID)
	assert.Equal(t, 1, st.WindowLen)
	assert.Equal(t, int32(0), h.decider.calls.Load())

	// Losing the flag without any score movement sends the next cycle back
	// to the strategy.
	h.feed <- holderSnap("a")
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(time.Minute)

	require.NoError(t, wait(t, done))
	assert.Equal(t, int32(1), h.decider.calls.Load())
	assert.Equal(t, int32(0), h.executor.calls.Load())
	assert.Equal(t, "a", h.sched.Status().HolderID)
	assert.Equal(t, 1, h.sched.Status().WindowLen)
}

func TestRun_EmptyWindowEndsCycle(t *testing.T) {
	h := newHarness(t)
	done := h.run()

	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return h.sched.Status().Cycles >= 1 }, time.Second, 5*time.Millisecond)

	h.cancel()
	require.NoError(t, wait(t, done))

	assert.Equal(t, int32(0), h.decider.calls.Load())
	assert.Equal(t, 0, h.sched.Status().WindowLen)
}

func TestRun_BacksOffAfterCycleError(t *testing.T) {
	h := newHarness(t)
	h.decider.fn = func(n int32) (bool, error) {
		if n == 1 {
			return false, strategy.ErrNoCandidates
		}
		h.cancel()
		return false, nil
	}

	h.feed <- holderSnap("a")
	done := h.run()

	require.Eventually(t, func() bool { return h.decider.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(750 * time.Millisecond)

	// The second cycle waits out the receive timeout, then decides on the
	// window it already has.
	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(5 * time.Second)

	require.NoError(t, wait(t, done))
	assert.Equal(t, int32(2), h.decider.calls.Load())
	assert.Equal(t, int32(0), h.executor.calls.Load())
}

func TestRun_CancelDuringCooldownReturnsPromptly(t *testing.T) {
	h := newHarness(t)
	h.decider.fn = func(int32) (bool, error) { return true, nil }

	h.feed <- holderSnap("a")
	done := h.run()

	require.Eventually(t, func() bool { return h.sched.Status().State == "cooldown" }, time.Second, 5*time.Millisecond)
	h.cancel()

	require.NoError(t, wait(t, done))
	assert.Equal(t, int32(1), h.executor.calls.Load())
}

func TestRun_DrainsQueuedSnapshots(t *testing.T) {
	h := newHarness(t)
	h.decider.fn = func(int32) (bool, error) {
		h.cancel()
		return false, nil
	}

	h.feed <- &snapshot.Snapshot{HolderID: "a", Scores: snapshot.Scores{"a": 1}}
	h.feed <- &snapshot.Snapshot{HolderID: "a", Scores: snapshot.Scores{"a": 2}}
	h.feed <- &snapshot.Snapshot{HolderID: "b", Scores: snapshot.Scores{"a": 3, "b": 1}}

	require.NoError(t, wait(t, h.run()))

	st := h.sched.Status()
	assert.Equal(t, 3, st.WindowLen)
	assert.Equal(t, "b", st.HolderID)
	assert.Equal(t, snapshot.Delta{"a": 2, "b": 1}, st.Delta)
}

func TestRun_ClosedFeedIsAnError(t *testing.T) {
	h := newHarness(t)
	close(h.feed)

	assert.ErrorIs(t, wait(t, h.run()), ErrFeedClosed)
}
