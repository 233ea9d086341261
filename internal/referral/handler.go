package referral

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/reelrank/reelrank/internal/analytics"
	"github.com/reelrank/reelrank/internal/api"
	"github.com/reelrank/reelrank/internal/clientid"
	"github.com/reelrank/reelrank/internal/quota"
)

type emitter interface {
	Emit(e analytics.Event)
}

type usageReader interface {
	Usage(ctx context.Context, key string) (quota.Usage, error)
}

// Session is the page-load state returned to the client.
type Session struct {
	ReferralCode string      `json:"referralCode,omitempty"`
	Usage        quota.Usage `json:"usage"`
}

type Handler struct {
	tracker  *Tracker
	usage    usageReader
	events   emitter
	validate *validator.Validate
}

func NewHandler(tracker *Tracker, usage usageReader, events emitter) *Handler {
	return &Handler{
		tracker:  tracker,
		usage:    usage,
		events:   events,
		validate: api.NewValidator(),
	}
}

// Session resolves the active referral code for the caller, applying the
// referralCode query parameter when present.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	client := clientid.FromContext(r.Context())

	res, err := h.tracker.Resolve(r.Context(), client.Key, r.URL.Query().Get("referralCode"))
	if err != nil {
		slog.Warn("resolving referral code", "client", client.Hash, "error", err)
	}
	if res.NewlyApplied {
		h.events.Emit(analytics.NewReferralApplied(analytics.Meta{
			ClientHash:   client.Hash,
			IsMobile:     client.IsMobile,
			ReferralCode: res.Code,
		}, string(res.Source)))
	}

	usage, err := h.usage.Usage(r.Context(), client.Key)
	if err != nil {
		api.HandleError(w, api.ErrTimeout)
		return
	}

	api.JSON(w, http.StatusOK, Session{ReferralCode: res.Code, Usage: usage})
}

// Message accepts a referral code relayed by the embedding page. The
// browser-set Origin header decides whether the sender is trusted.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := api.DecodeJSON(w, r, &msg); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(msg); err != nil {
		api.HandleError(w, api.ValidationError(err))
		return
	}

	client := clientid.FromContext(r.Context())
	if err := h.tracker.Deliver(r.Context(), client.Key, r.Header.Get("Origin"), msg); err != nil {
		if errors.Is(err, ErrOriginNotAllowed) {
			api.HandleError(w, api.ErrOriginNotAllowed)
			return
		}
		slog.Error("storing relayed referral code", "client", client.Hash, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
