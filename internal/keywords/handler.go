package keywords

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/reelrank/reelrank/internal/api"
	"github.com/reelrank/reelrank/internal/clientid"
	"github.com/reelrank/reelrank/internal/clock"
	"github.com/reelrank/reelrank/internal/quota"
)

type Handler struct {
	svc   *Service
	clock clock.Clock
}

func NewHandler(svc *Service, clk clock.Clock) *Handler {
	return &Handler{svc: svc, clock: clk}
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	client := clientid.FromContext(r.Context())
	res, err := h.svc.Generate(r.Context(), client, req)
	if err == nil {
		api.JSON(w, http.StatusOK, res)
		return
	}

	var ves validator.ValidationErrors
	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		w.Header().Set("Retry-After", h.retryAfter(res.Usage))
		api.HandleErrorWithUsage(w, api.ErrQuotaExceeded, res.Usage)
	case errors.As(err, &ves):
		api.HandleErrorWithUsage(w, api.ValidationError(err), res.Usage)
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrMalformedResponse):
		api.HandleErrorWithUsage(w, api.ErrUpstream, res.Usage)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		api.HandleError(w, api.ErrTimeout)
	default:
		slog.Error("generating keywords", "client", client.Hash, "error", err)
		api.HandleErrorWithUsage(w, api.ErrInternalServer, res.Usage)
	}
}

func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	res, err := h.svc.Explain(r.Context(), req)
	if err != nil {
		var ves validator.ValidationErrors
		switch {
		case errors.As(err, &ves):
			api.HandleError(w, api.ValidationError(err))
		case errors.Is(err, ErrUpstream), errors.Is(err, ErrMalformedResponse):
			slog.Warn("keyword explanation failed", "error", err)
			api.HandleError(w, api.ErrUpstream)
		default:
			slog.Error("explaining keyword", "error", err)
			api.HandleError(w, api.ErrInternalServer)
		}
		return
	}

	api.JSON(w, http.StatusOK, res)
}

// retryAfter is the whole number of seconds until the quota resets, at least one.
func (h *Handler) retryAfter(u quota.Usage) string {
	secs := math.Ceil(u.ResetAt.Sub(h.clock.Now()).Seconds())
	return strconv.Itoa(int(max(secs, 1)))
}
