package quota

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/reelrank/reelrank/internal/analytics"
	"github.com/reelrank/reelrank/internal/api"
	"github.com/reelrank/reelrank/internal/clientid"
	"github.com/reelrank/reelrank/internal/metrics"
)

type emitter interface {
	Emit(e analytics.Event)
}

type referralLookup interface {
	Current(ctx context.Context, key string) (string, error)
}

type BonusRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type BonusResult struct {
	OK           bool   `json:"ok"`
	Usage        *Usage `json:"usage,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type Handler struct {
	tracker   *Tracker
	referrals referralLookup
	events    emitter
	validate  *validator.Validate
}

func NewHandler(tracker *Tracker, referrals referralLookup, events emitter) *Handler {
	return &Handler{
		tracker:   tracker,
		referrals: referrals,
		events:    events,
		validate:  api.NewValidator(),
	}
}

// Usage returns the caller's quota snapshot without consuming anything.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	client := clientid.FromContext(r.Context())
	usage, err := h.tracker.Usage(r.Context(), client.Key)
	if err != nil {
		api.HandleError(w, api.ErrTimeout)
		return
	}
	api.JSON(w, http.StatusOK, usage)
}

// ClaimBonus records the caller's email and tops up their quota once per cycle.
func (h *Handler) ClaimBonus(w http.ResponseWriter, r *http.Request) {
	var req BonusRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		metrics.BonusClaimsTotal.WithLabelValues("invalid").Inc()
		api.JSON(w, http.StatusBadRequest, BonusResult{ErrorMessage: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		metrics.BonusClaimsTotal.WithLabelValues("invalid").Inc()
		api.JSON(w, http.StatusBadRequest, BonusResult{ErrorMessage: api.ValidationError(err).Message})
		return
	}

	client := clientid.FromContext(r.Context())
	code, err := h.referrals.Current(r.Context(), client.Key)
	if err != nil {
		slog.Warn("looking up referral code", "client", client.Hash, "error", err)
	}
	h.events.Emit(analytics.NewContactSubmitted(analytics.Meta{
		ClientHash:   client.Hash,
		IsMobile:     client.IsMobile,
		ReferralCode: code,
	}, req.Email))

	usage, err := h.tracker.GrantBonus(r.Context(), client.Key)
	switch {
	case errors.Is(err, ErrBonusAlreadyClaimed):
		metrics.BonusClaimsTotal.WithLabelValues("already_claimed").Inc()
		api.JSON(w, http.StatusConflict, BonusResult{
			Usage:        &usage,
			ErrorMessage: "You have already claimed your bonus generations for today.",
		})
	case err != nil:
		api.HandleError(w, api.ErrTimeout)
	default:
		metrics.BonusClaimsTotal.WithLabelValues("granted").Inc()
		api.JSON(w, http.StatusOK, BonusResult{OK: true, Usage: &usage})
	}
}
