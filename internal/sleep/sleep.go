// Package sleep provides cancellable, jittered waits.
//
// Every wait races its delay against the caller's context and returns as
// soon as either fires, so a multi-minute cooldown never holds up shutdown.
package sleep

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
)

// Sleeper performs cancellable sleeps and draws jitter relative to a
// cooldown period. It is not safe for concurrent use; each task owns one.
type Sleeper struct {
	clock    clockwork.Clock
	cooldown time.Duration
	rng      *rand.Rand
}

// New creates a Sleeper. A nil rng gets a randomly seeded PCG source.
func New(clock clockwork.Clock, cooldown time.Duration, rng *rand.Rand) *Sleeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Sleeper{clock: clock, cooldown: cooldown, rng: rng}
}

// Seeded returns a deterministic source for tests and reproducible runs.
func Seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Sleep waits for d or until ctx is done, whichever comes first.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := s.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.Chan():
	}
}

// Between returns a uniformly random duration in [lo, hi] at millisecond
// granularity. If hi < lo the bounds are swapped.
func (s *Sleeper) Between(lo, hi time.Duration) time.Duration {
	if hi < lo {
		lo, hi = hi, lo
	}
	loMS, hiMS := lo.Milliseconds(), hi.Milliseconds()
	return time.Duration(loMS+s.rng.Int64N(hiMS-loMS+1)) * time.Millisecond
}

// SleepBetween sleeps a random duration in [lo, hi] and returns it.
func (s *Sleeper) SleepBetween(ctx context.Context, lo, hi time.Duration) time.Duration {
	d := s.Between(lo, hi)
	s.Sleep(ctx, d)
	return d
}

// Chance returns true with probability p.
func (s *Sleeper) Chance(p float64) bool {
	return s.rng.Float64() < p
}

// ShortJitter is in [0, cooldown/10].
func (s *Sleeper) ShortJitter() time.Duration {
	return s.Between(0, s.cooldown/10)
}

// LongJitter is in [0, cooldown/2].
func (s *Sleeper) LongJitter() time.Duration {
	return s.Between(0, s.cooldown/2)
}

// CooldownJitter is the wait after a successful action: the full cooldown
// plus a short jitter.
func (s *Sleeper) CooldownJitter() time.Duration {
	return s.cooldown + s.ShortJitter()
}

// Cooldown returns the configured cooldown period.
func (s *Sleeper) Cooldown() time.Duration { return s.cooldown }

// Clock returns the clock the sleeper waits on.
func (s *Sleeper) Clock() clockwork.Clock { return s.clock }
