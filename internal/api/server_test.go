package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/yoinker/internal/config"
	"github.com/albapepper/yoinker/internal/provider/yoink"
	"github.com/albapepper/yoinker/internal/scheduler"
	"github.com/albapepper/yoinker/internal/snapshot"
)

type fakeStatus struct{ st scheduler.Status }

func (f fakeStatus) Status() scheduler.Status { return f.st }

type fakeStats struct {
	stats   *yoink.Stats
	hit     bool
	err     error
	flag    yoink.Flag
	flagErr error
}

func (f *fakeStats) LoadStats(context.Context) (*yoink.Stats, bool, error) {
	return f.stats, f.hit, f.err
}

func (f *fakeStats) Flag(context.Context) (*yoink.Flag, error) {
	if f.flagErr != nil {
		return nil, f.flagErr
	}
	return &f.flag, nil
}

func (f *fakeStats) CacheStats() map[string]any {
	return map[string]any{"active_keys": 1}
}

func (f *fakeStats) StatsTTL() time.Duration { return 5 * time.Minute }

func testConfig() *config.Config {
	return &config.Config{
		CORSAllowOrigins:  []string{"*"},
		RateLimitEnabled:  true,
		RateLimitRequests: 4,
		RateLimitWindow:   time.Minute,
	}
}

func newRouter(stats *fakeStats) http.Handler {
	st := scheduler.Status{
		State:     "cooldown",
		SelfID:    "me",
		Strategy:  "target-momentum-leader",
		HolderID:  "a",
		WindowLen: 3,
		WindowCap: 12,
		Delta:     snapshot.Delta{"a": 2},
	}
	return NewRouter(fakeStatus{st: st}, stats, testConfig())
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	rec := get(newRouter(&fakeStats{}), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Process-Time"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestRouter_Status(t *testing.T) {
	rec := get(newRouter(&fakeStats{}), "/status")

	require.Equal(t, http.StatusOK, rec.Code)
	var got scheduler.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "cooldown", got.State)
	assert.Equal(t, "a", got.HolderID)
	assert.Equal(t, snapshot.Delta{"a": 2}, got.Delta)
}

func TestRouter_Leaderboard(t *testing.T) {
	stats := &fakeStats{
		hit: true,
		stats: &yoink.Stats{
			// Cached holder is stale; the live flag says b.
			Flag:      yoink.Flag{HolderID: "a"},
			UserTimes: map[string]uint64{"a": 150, "b": 50, "c": 10},
			Users:     map[string]string{"a": "alice"},
		},
		flag: yoink.Flag{HolderID: "b", HolderName: "bob"},
	}
	rec := get(newRouter(stats), "/leaderboard?limit=2")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	var body struct {
		Holder  yoink.Flag    `json:"holder"`
		Entries []yoink.Entry `json:"entries"`
		Total   int           `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "b", body.Holder.HolderID)
	assert.Equal(t, 3, body.Total)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "alice", body.Entries[0].Name)
	assert.False(t, body.Entries[0].Holder)
	assert.True(t, body.Entries[1].Holder)
	assert.Equal(t, "a", stats.stats.Flag.HolderID, "cached stats must not be modified")
}

func TestRouter_LeaderboardErrors(t *testing.T) {
	rec := get(newRouter(&fakeStats{}), "/leaderboard?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(newRouter(&fakeStats{err: errors.New("upstream down")}), "/leaderboard")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "UPSTREAM_ERROR")

	rec = get(newRouter(&fakeStats{stats: &yoink.Stats{}, flagErr: errors.New("flag down")}), "/leaderboard")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "flag holder")
}

func TestRouter_Metrics(t *testing.T) {
	rec := get(newRouter(&fakeStats{}), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for range 3 {
		codes = append(codes, get(h, "/").Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestRouter_DocsServesOpenAPI(t *testing.T) {
	rec := get(newRouter(&fakeStats{}), "/docs/doc.json")

	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	assert.Contains(t, doc["paths"], "/status")
}
