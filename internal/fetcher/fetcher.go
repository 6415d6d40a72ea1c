// Package fetcher runs the polling task that feeds snapshots to the
// scheduler. It is the only producer on the feed.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/albapepper/yoinker/internal/buffer"
	"github.com/albapepper/yoinker/internal/metrics"
	"github.com/albapepper/yoinker/internal/snapshot"
)

const (
	defaultInterval = 2 * time.Second
	defaultBackoff  = 500 * time.Millisecond
)

// Source produces one snapshot per call.
type Source interface {
	Snapshot(ctx context.Context) (*snapshot.Snapshot, error)
}

// FetchError is a failed poll. It is always transient.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options controls the poll cadence. Zero values pick defaults.
type Options struct {
	Interval time.Duration
	Backoff  time.Duration
	Clock    clockwork.Clock
}

// Fetcher polls a Source and forwards every parsed snapshot.
type Fetcher struct {
	src    Source
	feed   *buffer.Unbounded[*snapshot.Snapshot]
	opts   Options
	logger *slog.Logger
}

// New creates a fetcher writing into feed.
func New(src Source, feed *buffer.Unbounded[*snapshot.Snapshot], opts Options, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Fetcher{src: src, feed: feed, opts: opts, logger: logger}
}

// Run polls until ctx is cancelled, then closes the feed. Failed polls are
// logged and retried after the backoff. It returns nil on cancellation.
func (f *Fetcher) Run(ctx context.Context) error {
	defer f.feed.Close()

	f.logger.Info("Fetch task started", "interval", f.opts.Interval)
	var lastHolder string

	for {
		if ctx.Err() != nil {
			f.logger.Info("Fetch task stopped")
			return nil
		}

		wait := f.opts.Interval
		snap, err := f.src.Snapshot(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			continue
		case err != nil:
			fe := &FetchError{Op: "snapshot", Err: err}
			f.logger.Warn("Fetch failed, backing off", "error", fe, "backoff", f.opts.Backoff)
			wait = f.opts.Backoff
		default:
			if snap.HolderID != lastHolder {
				f.logger.Debug("Holder changed", "from", lastHolder, "to", snap.HolderID, "name", snap.HolderName)
				lastHolder = snap.HolderID
			}
			f.feed.Send(snap)
			metrics.SnapshotsForwarded.Inc()
		}

		if !f.wait(ctx, wait) {
			f.logger.Info("Fetch task stopped")
			return nil
		}
	}
}

// wait blocks for d and reports false if ctx ended first.
func (f *Fetcher) wait(ctx context.Context, d time.Duration) bool {
	t := f.opts.Clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}
