package analytics

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/reelrank/reelrank/internal/api"
	"github.com/reelrank/reelrank/internal/clock"
)

const (
	defaultSummaryWindow = 24 * time.Hour
	maxSummaryWindow     = 90 * 24 * time.Hour
)

type countReader interface {
	CountByKind(ctx context.Context, since time.Time) ([]KindCount, error)
}

// Summary is the per-kind event tally for a trailing window.
type Summary struct {
	Since  time.Time   `json:"since"`
	Counts []KindCount `json:"counts"`
}

type Handler struct {
	counts countReader
	token  string
	clock  clock.Clock
}

func NewHandler(counts countReader, adminToken string, clk clock.Clock) *Handler {
	return &Handler{counts: counts, token: adminToken, clock: clk}
}

// RequireToken admits only requests carrying the admin bearer token.
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			api.HandleError(w, api.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Summary returns event counts since now minus ?hours= (default 24).
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	window := defaultSummaryWindow
	if s := r.URL.Query().Get("hours"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			api.HandleError(w, api.NewBadRequestError("hours must be a positive integer"))
			return
		}
		window = time.Duration(min(n, int(maxSummaryWindow/time.Hour))) * time.Hour
	}

	since := h.clock.Now().Add(-window)
	counts, err := h.counts.CountByKind(r.Context(), since)
	if err != nil {
		slog.Error("analytics summary", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if counts == nil {
		counts = []KindCount{}
	}

	api.JSON(w, http.StatusOK, Summary{Since: since, Counts: counts})
}
