// Package yoink provides the HTTP client for the game's public stats and
// flag endpoints.
//
// Aggregate stats only refresh upstream about every 30 minutes, so they are
// cached locally for a shorter TTL. The flag holder is more time-sensitive and
// is fetched on every poll, then overlaid onto the cached stats.
package yoink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/albapepper/yoinker/internal/cache"
	"github.com/albapepper/yoinker/internal/metrics"
	"github.com/albapepper/yoinker/internal/snapshot"
)

// Flag is the current holder as reported by the game.
type Flag struct {
	HolderID       string `json:"holderId"`
	HolderName     string `json:"holderName"`
	HolderPlatform string `json:"holderPlatform"`
}

// Stats is the game-wide leaderboard.
type Stats struct {
	Flag      Flag              `json:"flag"`
	UserTimes map[string]uint64 `json:"userTimes"`
	Users     map[string]string `json:"users"`
}

// Options tunes a Client. Zero values pick defaults.
type Options struct {
	StatsTTL      time.Duration
	FetchInterval time.Duration
	UserAgent     string
	HTTPClient    *http.Client
	Clock         clockwork.Clock
}

// Client fetches stats and flag state from the game.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	stats      *cache.TTL[struct{}, *Stats]
	ttl        time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates a game client. Requests share one limiter that spaces
// calls by FetchInterval.
func NewClient(baseURL string, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.StatsTTL == 0 {
		opts.StatsTTL = 5 * time.Minute
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient()
	}

	limit := rate.Inf
	if opts.FetchInterval > 0 {
		limit = rate.Every(opts.FetchInterval)
	}

	return &Client{
		httpClient: opts.HTTPClient,
		baseURL:    baseURL,
		userAgent:  opts.UserAgent,
		limiter:    rate.NewLimiter(limit, 1),
		stats:      cache.New[struct{}, *Stats](opts.StatsTTL, opts.Clock),
		ttl:        opts.StatsTTL,
		clock:      opts.Clock,
		logger:     logger,
	}
}

// NewHTTPClient returns the HTTP client used for upstream calls: a 30s
// overall timeout and a 5s connect timeout.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 50 * time.Second}).DialContext
	return &http.Client{Timeout: 30 * time.Second, Transport: transport}
}

// Stats returns the leaderboard, served from the local cache when fresh.
// The returned value must not be modified.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	stats, _, err := c.LoadStats(ctx)
	return stats, err
}

// LoadStats is Stats that also reports whether the cache served the value.
func (c *Client) LoadStats(ctx context.Context) (*Stats, bool, error) {
	stats, hit, err := c.stats.GetOrLoad(ctx, struct{}{}, func(ctx context.Context) (*Stats, error) {
		var s Stats
		if err := c.get(ctx, "/api/stats", &s); err != nil {
			return nil, err
		}
		return &s, nil
	})
	if err != nil {
		return nil, false, err
	}
	if hit {
		metrics.StatsCacheHits.Inc()
	}
	return stats, hit, nil
}

// CacheStats reports the stats cache's entry counts.
func (c *Client) CacheStats() map[string]any {
	return c.stats.Stats()
}

// EvictExpired drops stale cached stats.
func (c *Client) EvictExpired() {
	c.stats.Evict()
}

// StatsTTL is how long fetched stats stay fresh.
func (c *Client) StatsTTL() time.Duration { return c.ttl }

// Flag returns the current holder, never cached.
func (c *Client) Flag(ctx context.Context) (*Flag, error) {
	var f Flag
	if err := c.get(ctx, "/api/flag", &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Snapshot combines cached stats with the live flag holder.
func (c *Client) Snapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	stats, err := c.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch stats: %w", err)
	}
	flag, err := c.Flag(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch flag: %w", err)
	}

	return &snapshot.Snapshot{
		HolderID:       flag.HolderID,
		HolderName:     flag.HolderName,
		HolderPlatform: flag.HolderPlatform,
		Scores:         maps.Clone(snapshot.Scores(stats.UserTimes)),
		Users:          maps.Clone(stats.Users),
		FetchedAt:      c.clock.Now(),
	}, nil
}

// get performs a rate-limited GET request and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.Fetches.WithLabelValues(path, "error").Inc()
		return fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.Fetches.WithLabelValues(path, "error").Inc()
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.Fetches.WithLabelValues(path, "http_"+fmt.Sprint(resp.StatusCode)).Inc()
		return fmt.Errorf("yoink %s returned %d: %s", path, resp.StatusCode, truncate(body, 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		metrics.Fetches.WithLabelValues(path, "decode_error").Inc()
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	metrics.Fetches.WithLabelValues(path, "ok").Inc()
	return nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
