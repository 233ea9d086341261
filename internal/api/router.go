package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/reelrank/reelrank/internal/database"
	mw "github.com/reelrank/reelrank/internal/middleware"
	iredis "github.com/reelrank/reelrank/internal/redis"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Keyword generation
	GenerateKeywords http.HandlerFunc
	ExplainKeyword   http.HandlerFunc

	// Quota
	Usage      http.HandlerFunc
	ClaimBonus http.HandlerFunc

	// Referral
	Session         http.HandlerFunc
	ReferralMessage http.HandlerFunc

	// Analytics summary, mounted only when both are set.
	AnalyticsSummary http.HandlerFunc
	AnalyticsAuth    func(http.Handler) http.Handler

	// ClientID resolves the caller identity for every API request.
	ClientID func(http.Handler) http.Handler
}

// Probes are the optional dependencies checked by /health/ready. Leave a
// field nil when the dependency is not configured.
type Probes struct {
	Redis redis.Cmdable
	DB    *pgxpool.Pool
	NATS  interface{ Healthy() bool }
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	FrameAncestors     []string
	// GenerateRateLimiter guards the quota-consuming POST routes.
	GenerateRateLimiter func(http.Handler) http.Handler
}

func NewRouter(probes Probes, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders(cfg.FrameAncestors))
	if h.ClientID != nil {
		r.Use(h.ClientID)
	}
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"redis":    "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}
		status := http.StatusOK
		degrade := func(name string) {
			health[name] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if probes.Redis == nil {
			health["redis"] = "not configured"
		} else if err := iredis.HealthCheck(r.Context(), probes.Redis); err != nil {
			degrade("redis")
		}

		if probes.DB == nil {
			health["database"] = "not configured"
		} else if err := database.HealthCheck(r.Context(), probes.DB); err != nil {
			degrade("database")
		}

		if probes.NATS == nil {
			health["nats"] = "not configured"
		} else if !probes.NATS.Healthy() {
			degrade("nats")
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	limited := func(r chi.Router) chi.Router {
		if cfg.GenerateRateLimiter != nil {
			return r.With(cfg.GenerateRateLimiter)
		}
		return r
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/keywords", func(r chi.Router) {
			limited(r).Post("/", h.GenerateKeywords)
			limited(r).Post("/explain", h.ExplainKeyword)
		})

		r.Get("/usage", h.Usage)
		limited(r).Post("/bonus", h.ClaimBonus)

		r.Get("/session", h.Session)
		limited(r).Post("/referral/message", h.ReferralMessage)

		if h.AnalyticsSummary != nil && h.AnalyticsAuth != nil {
			r.With(h.AnalyticsAuth).Get("/analytics/summary", h.AnalyticsSummary)
		}
	})

	return r
}
