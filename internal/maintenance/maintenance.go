// Package maintenance runs periodic housekeeping beside the agent's two main
// tasks: dropping expired cache entries and logging a status heartbeat.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/albapepper/yoinker/internal/scheduler"
)

// Config controls task intervals. Zero duration disables a task.
type Config struct {
	EvictInterval     time.Duration // Expired stats cache entries
	HeartbeatInterval time.Duration // Status summary at info level
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		EvictInterval:     10 * time.Minute,
		HeartbeatInterval: 5 * time.Minute,
	}
}

// Evictor drops expired cache entries.
type Evictor interface {
	EvictExpired()
}

// StatusSource exposes the scheduler's latest published status.
type StatusSource interface {
	Status() scheduler.Status
}

// Start launches all configured tickers. Blocks until ctx is cancelled.
// Intended to be called with `go`.
func Start(ctx context.Context, clock clockwork.Clock, cache Evictor, status StatusSource, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"evict", cfg.EvictInterval,
		"heartbeat", cfg.HeartbeatInterval)

	tickers := make([]clockwork.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.EvictInterval > 0 && cache != nil {
		t := clock.NewTicker(cfg.EvictInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.Chan(), cache.EvictExpired)
	}

	if cfg.HeartbeatInterval > 0 && status != nil {
		t := clock.NewTicker(cfg.HeartbeatInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.Chan(), func() { heartbeat(status.Status(), clock.Now(), logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// heartbeat logs a one-line summary of the scheduler so long quiet stretches
// in the log still show the agent is alive.
func heartbeat(st scheduler.Status, now time.Time, logger *slog.Logger) {
	attrs := []any{
		"state", st.State,
		"holder", st.HolderID,
		"window", st.WindowLen,
		"movers", len(st.Delta),
		"cycles", st.Cycles,
		"impatient_in", st.Deadline.Sub(now).Round(time.Second),
	}
	if st.LastResult != "" {
		attrs = append(attrs, "last_result", st.LastResult)
	}
	logger.Info("Heartbeat", attrs...)
}
