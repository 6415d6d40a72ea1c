package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL_ExpiresWithClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[string, int](5*time.Minute, clock)

	c.Set("stats", 1)
	v, ok := c.Get("stats")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(4*time.Minute + 59*time.Second)
	_, ok = c.Get("stats")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("stats")
	assert.False(t, ok)
}

func TestTTL_GetOrLoad(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[struct{}, string](time.Minute, clock)
	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		return "fresh", nil
	}

	v, hit, err := c.GetOrLoad(context.Background(), struct{}{}, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", v)

	_, hit, err = c.GetOrLoad(context.Background(), struct{}{}, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, calls)

	clock.Advance(time.Minute)
	_, hit, err = c.GetOrLoad(context.Background(), struct{}{}, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}

func TestTTL_LoadErrorIsNotCached(t *testing.T) {
	c := New[string, int](time.Minute, clockwork.NewFakeClock())
	boom := errors.New("boom")

	_, _, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTTL_DisabledWithZeroTTL(t *testing.T) {
	c := New[string, int](0, clockwork.NewFakeClock())

	c.Set("k", 1)
	_, ok := c.Get("k")

	assert.False(t, ok)
}

func TestTTL_EvictAndStats(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New[string, int](time.Minute, clock)
	c.Set("a", 1)
	clock.Advance(30 * time.Second)
	c.Set("b", 2)
	clock.Advance(45 * time.Second)

	stats := c.Stats()
	assert.Equal(t, 2, stats["total_keys"])
	assert.Equal(t, 1, stats["active_keys"])

	c.Evict()
	assert.Equal(t, 1, c.Stats()["total_keys"])

	c.Invalidate("b")
	assert.Equal(t, 0, c.Stats()["total_keys"])
}

func TestTTL_ConcurrentMissesShareOneLoad(t *testing.T) {
	c := New[string, int](time.Minute, clockwork.NewFakeClock())
	var loads atomic.Int32
	release := make(chan struct{})

	load := func(context.Context) (int, error) {
		loads.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrLoad(context.Background(), "stats", load)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestTTL_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	c := New[string, int](time.Minute, clockwork.NewFakeClock())
	var loads atomic.Int32
	release := make(chan struct{})
	loadErr := make(chan error, 1)

	load := func(ctx context.Context) (int, error) {
		loads.Add(1)
		<-release
		loadErr <- ctx.Err()
		return 42, nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrLoad(first, "stats", load)
		firstDone <- err
	}()
	require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, time.Millisecond)

	secondDone := make(chan int, 1)
	go func() {
		v, _, err := c.GetOrLoad(context.Background(), "stats", load)
		assert.NoError(t, err)
		secondDone <- v
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the load")
	}

	close(release)
	select {
	case v := <-secondDone:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("second caller never got the shared result")
	}
	assert.NoError(t, <-loadErr)
	assert.Equal(t, int32(1), loads.Load())

	v, ok := c.Get("stats")
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}
