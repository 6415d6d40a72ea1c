// Package neynar performs the yoink itself: a frame button press submitted
// through Neynar's frame action API on behalf of the configured signer.
//
// The game answers every press with a frame whose image tells us what
// happened. A press inside the cooldown returns the rate-limit image, with the
// time of our last yoink in its "date" query parameter.
package neynar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/albapepper/yoinker/internal/metrics"
)

const (
	actionPath    = "/v2/farcaster/frame/action"
	rateLimitPath = "/api/images/ratelimit"
)

// ErrRateLimitInconsistency means the rate-limit image reported a date so
// old that the cooldown would already have ended.
var ErrRateLimitInconsistency = errors.New("rate limit date is in the past")

// Kind classifies an action result.
type Kind int

const (
	Succeeded Kind = iota + 1
	RateLimited
	Unexpected
)

func (k Kind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case RateLimited:
		return "rate_limited"
	case Unexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Result is the classified outcome of one action call.
type Result struct {
	Kind Kind
	// RetryAfter is how long to wait before the next attempt. Set for
	// RateLimited only.
	RetryAfter time.Duration
	// RawBody holds the truncated response for Unexpected results.
	RawBody string
	Status  int
	Image   string
	Title   string
}

// Payload identifies the cast and signer. It never changes between calls.
type Payload struct {
	FramesURL  string
	PostURL    string
	CastHash   string
	SignerUUID string
}

type actionRequest struct {
	Action struct {
		Button struct {
			Index int `json:"index"`
		} `json:"button"`
		FramesURL string `json:"frames_url"`
		PostURL   string `json:"post_url"`
	} `json:"action"`
	CastHash   string `json:"cast_hash"`
	SignerUUID string `json:"signer_uuid"`
}

type actionResponse struct {
	Version *string `json:"version"`
	Title   *string `json:"title"`
	Image   string  `json:"image"`
}

// Options tunes a Client. Zero values pick defaults.
type Options struct {
	Cooldown    time.Duration
	MinInterval time.Duration
	UserAgent   string
	HTTPClient  *http.Client
	Clock       clockwork.Clock
}

// Client submits the frame action.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	userAgent  string
	body       []byte
	cooldown   time.Duration
	limiter    *rate.Limiter
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates an action client. The request body is encoded once here.
func NewClient(baseURL, apiKey string, p Payload, opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive, got %s", opts.Cooldown)
	}

	var req actionRequest
	req.Action.Button.Index = 1
	req.Action.FramesURL = p.FramesURL
	req.Action.PostURL = p.PostURL
	req.CastHash = p.CastHash
	req.SignerUUID = p.SignerUUID

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode action payload: %w", err)
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &Client{
		httpClient: opts.HTTPClient,
		endpoint:   baseURL + actionPath,
		apiKey:     apiKey,
		userAgent:  opts.UserAgent,
		body:       body,
		cooldown:   opts.Cooldown,
		limiter:    rate.NewLimiter(limit, 1),
		clock:      opts.Clock,
		logger:     logger,
	}, nil
}

// Act presses the yoink button once and classifies the game's answer.
// Transport failures and ErrRateLimitInconsistency are returned as errors;
// a response we cannot interpret is an Unexpected result.
func (c *Client) Act(ctx context.Context) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(c.body))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api_key", c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ActionDuration.Observe(c.clock.Since(start).Seconds())
	if err != nil {
		metrics.Actions.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("http request %s: %w", actionPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.Actions.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("read response body: %w", err)
	}

	result, err := c.classify(resp.StatusCode, body)
	if err != nil {
		metrics.Actions.WithLabelValues("inconsistent").Inc()
		return result, err
	}
	metrics.Actions.WithLabelValues(result.Kind.String()).Inc()
	return result, nil
}

func (c *Client) classify(status int, body []byte) (Result, error) {
	if status < 200 || status > 299 {
		c.logger.Warn("Frame action returned an error status", "status", status, "body", truncate(body, 200))
		return Result{Kind: Unexpected, Status: status, RawBody: truncate(body, 200)}, nil
	}

	var ar actionResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		c.logger.Warn("Frame action response did not decode", "error", err, "body", truncate(body, 200))
		return Result{Kind: Unexpected, Status: status, RawBody: truncate(body, 200)}, nil
	}
	image, err := url.Parse(ar.Image)
	if err != nil || ar.Image == "" {
		c.logger.Warn("Frame action response has no usable image", "image", ar.Image)
		return Result{Kind: Unexpected, Status: status, RawBody: truncate(body, 200)}, nil
	}

	result, err := Classify(image, c.cooldown, c.clock.Now())
	result.Status = status
	result.Image = ar.Image
	if ar.Title != nil {
		result.Title = *ar.Title
	}
	if err != nil {
		return result, err
	}

	switch result.Kind {
	case RateLimited:
		c.logger.Warn("Rate limited", "retry_after", result.RetryAfter.Round(time.Second), "image", ar.Image)
	case Succeeded:
		c.logger.Info("Yoinked!", "title", result.Title, "image", ar.Image)
	}
	return result, nil
}

// Classify interprets the frame image. The rate-limit image carries the
// unix-millisecond time of our last yoink; the retry delay is that time plus
// the cooldown, minus now. Without a usable date the full cooldown applies.
func Classify(image *url.URL, cooldown time.Duration, now time.Time) (Result, error) {
	if image.Path != rateLimitPath {
		return Result{Kind: Succeeded}, nil
	}

	raw := image.Query().Get("date")
	lastMS, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil {
		return Result{Kind: RateLimited, RetryAfter: cooldown}, nil
	}

	untilMS := lastMS + cooldown.Milliseconds()
	nowMS := now.UnixMilli()
	if untilMS < nowMS {
		return Result{Kind: RateLimited, RetryAfter: cooldown},
			fmt.Errorf("%w: %d + cooldown = %d, now %d", ErrRateLimitInconsistency, lastMS, untilMS, nowMS)
	}

	return Result{Kind: RateLimited, RetryAfter: time.Duration(untilMS-nowMS) * time.Millisecond}, nil
}

// truncate returns a truncated string for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
