package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/reelrank/reelrank/internal/clientid"
)

// Limiter decides whether one more request for key is allowed now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit rejects bursts per client with 429. Limiter errors fail open.
func RateLimit(l Limiter, window time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(max(window.Seconds(), 1)))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := clientid.FromContext(r.Context())
			key := info.Key
			if key == "" {
				key = "ip:" + clientid.ClientIP(r, false)
			}

			allowed, err := l.Allow(r.Context(), key)
			if err != nil {
				slog.Warn("rate limiter: backend error, failing open", "error", err, "client", info.Hash)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RedisLimiter is a sliding-window limiter backed by Redis sorted sets.
type RedisLimiter struct {
	client  redis.Cmdable
	prefix  string
	maxReqs int
	window  time.Duration
}

func NewRedisLimiter(client redis.Cmdable, prefix string, maxReqs int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, maxReqs: maxReqs, window: window}
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = rl.prefix + key
	now := time.Now()
	windowStart := float64(now.Add(-rl.window).UnixMilli())
	member := fmt.Sprintf("%d", now.UnixNano())
	score := float64(now.UnixMilli())

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%f", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	pipe.Expire(ctx, key, rl.window+time.Second)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, err
	}

	return countCmd.Val() < int64(rl.maxReqs), nil
}

// LocalLimiter is an in-process token bucket per key, used when Redis is
// not configured. Idle keys are dropped by the janitor.
type LocalLimiter struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
}

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter allows maxReqs per window, all of which may arrive at once.
func NewLocalLimiter(maxReqs int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		entries: make(map[string]*localEntry),
		limit:   rate.Limit(float64(maxReqs) / window.Seconds()),
		burst:   maxReqs,
		idleTTL: max(window*2, 5*time.Minute),
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()

	l.mu.Lock()
	ent, ok := l.entries[key]
	if !ok {
		ent = &localEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = ent
	}
	ent.lastSeen = now
	l.mu.Unlock()

	return ent.lim.AllowN(now, 1), nil
}

func (l *LocalLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// StartJanitor removes idle keys every interval until ctx is cancelled.
func (l *LocalLimiter) StartJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				l.cleanup(now)
			}
		}
	}()
}

func (l *LocalLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
