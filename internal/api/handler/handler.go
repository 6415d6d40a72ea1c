// Package handler provides HTTP handlers for the status server.
// Handlers only read: the scheduler's published status and the game
// client's cached stats. Nothing here can trigger an action.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/albapepper/yoinker/internal/api/respond"
	"github.com/albapepper/yoinker/internal/config"
	"github.com/albapepper/yoinker/internal/provider/yoink"
	"github.com/albapepper/yoinker/internal/scheduler"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// StatusSource exposes the scheduler's latest published status.
type StatusSource interface {
	Status() scheduler.Status
}

// StatsSource serves the cached game leaderboard and the live flag holder.
type StatsSource interface {
	LoadStats(ctx context.Context) (*yoink.Stats, bool, error)
	Flag(ctx context.Context) (*yoink.Flag, error)
	CacheStats() map[string]any
	StatsTTL() time.Duration
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	status  StatusSource
	stats   StatsSource
	started time.Time
}

// New creates a Handler with shared dependencies.
func New(status StatusSource, stats StatsSource) *Handler {
	return &Handler{status: status, stats: stats, started: time.Now()}
}

// Root serves agent info at /.
// @Summary Agent info
// @Description Returns the agent name, version and where to find docs.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":    "yoinker",
		"version": config.Version,
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status, uptime and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns stats cache statistics.
// @Summary Cache health check
// @Description Returns the stats cache entry counts and TTL.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"cache":     h.stats.CacheStats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStatus returns the scheduler's latest status.
// @Summary Scheduler status
// @Description Returns the scheduler state, current holder, window size, delta, impatience deadline and last action result.
// @Tags agent
// @Produce json
// @Success 200 {object} scheduler.Status
// @Router /status [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, h.status.Status())
}

// GetLeaderboard returns the ranked game leaderboard from the stats cache
// with the live flag holder on top.
// @Summary Leaderboard
// @Description Ranks players by total hold time. Scores come from the stats cache; the holder is always read live.
// @Tags game
// @Produce json
// @Param limit query int false "Rows to return (1-100, default 10)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /leaderboard [get]
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLeaderboardLimit {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer between 1 and 100")
			return
		}
		limit = n
	}

	stats, hit, err := h.stats.LoadStats(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to fetch game stats", err.Error())
		return
	}
	flag, err := h.stats.Flag(r.Context())
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to fetch flag holder", err.Error())
		return
	}

	// Copy before overlaying; stats is shared with the cache.
	board := *stats
	board.Flag = *flag

	respond.WriteCachedJSON(w, map[string]any{
		"holder":  board.Flag,
		"entries": board.Leaderboard(limit),
		"total":   len(board.UserTimes),
	}, h.stats.StatsTTL(), hit)
}
