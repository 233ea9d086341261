package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrank/reelrank/internal/clientid"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func setupRedisLimiter(t *testing.T, maxReqs int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, "reelrank:ratelimit:", maxReqs, window), mr
}

func doPost(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/keywords", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_Redis_AllowsUnderLimit(t *testing.T) {
	rl, _ := setupRedisLimiter(t, 5, time.Minute)
	h := RateLimit(rl, time.Minute)(okHandler)

	for i := 0; i < 5; i++ {
		rec := doPost(h, "192.168.1.1:12345")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}
}

func TestRateLimit_Redis_BlocksOverLimit(t *testing.T) {
	rl, mr := setupRedisLimiter(t, 3, time.Minute)
	h := RateLimit(rl, time.Minute)(okHandler)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doPost(h, "10.0.0.1:12345").Code)
	}

	rec := doPost(h, "10.0.0.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests"}`, rec.Body.String())
	assert.True(t, mr.Exists("reelrank:ratelimit:ip:10.0.0.1"))
}

func TestRateLimit_UsesClientKeyFromContext(t *testing.T) {
	rl, mr := setupRedisLimiter(t, 1, time.Minute)
	inner := RateLimit(rl, time.Minute)(okHandler)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := clientid.WithInfo(r.Context(), clientid.Info{Key: "device:abc", Hash: "h"})
		inner.ServeHTTP(w, r.WithContext(ctx))
	})

	require.Equal(t, http.StatusOK, doPost(h, "1.1.1.1:1").Code)
	// Same device from another address is still the same client.
	assert.Equal(t, http.StatusTooManyRequests, doPost(h, "2.2.2.2:1").Code)
	assert.True(t, mr.Exists("reelrank:ratelimit:device:abc"))
}

func TestRateLimit_Redis_DifferentClientsIndependent(t *testing.T) {
	rl, _ := setupRedisLimiter(t, 2, time.Minute)
	h := RateLimit(rl, time.Minute)(okHandler)

	for i := 0; i < 2; i++ {
		doPost(h, "1.1.1.1:1")
	}
	assert.Equal(t, http.StatusTooManyRequests, doPost(h, "1.1.1.1:1").Code)
	assert.Equal(t, http.StatusOK, doPost(h, "2.2.2.2:1").Code)
}

func TestRateLimit_Redis_FailsOpen(t *testing.T) {
	rl, mr := setupRedisLimiter(t, 1, time.Minute)
	mr.Close()
	h := RateLimit(rl, time.Minute)(okHandler)

	assert.Equal(t, http.StatusOK, doPost(h, "3.3.3.3:1").Code)
	assert.Equal(t, http.StatusOK, doPost(h, "3.3.3.3:1").Code)
}

func TestLocalLimiter_BurstThenBlock(t *testing.T) {
	l := NewLocalLimiter(3, time.Minute)
	h := RateLimit(l, time.Minute)(okHandler)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doPost(h, "10.0.0.9:1").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, doPost(h, "10.0.0.9:1").Code)
	assert.Equal(t, http.StatusOK, doPost(h, "10.0.0.10:1").Code)
	assert.Equal(t, 2, l.size())
}

func TestLocalLimiter_CleanupDropsIdleKeys(t *testing.T) {
	l := NewLocalLimiter(3, time.Minute)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	require.Equal(t, 2, l.size())

	l.cleanup(time.Now().Add(l.idleTTL / 2))
	assert.Equal(t, 2, l.size())

	l.cleanup(time.Now().Add(l.idleTTL + time.Second))
	assert.Equal(t, 0, l.size())
}

func TestLocalLimiter_JanitorStopsWithContext(t *testing.T) {
	l := NewLocalLimiter(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	l.StartJanitor(ctx, time.Millisecond)
	_, _ = l.Allow(ctx, "a")
	cancel()

	// Entries are fresh, so the janitor must not have removed them.
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, l.size())
}
