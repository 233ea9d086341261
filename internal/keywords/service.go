package keywords

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/reelrank/reelrank/internal/analytics"
	"github.com/reelrank/reelrank/internal/api"
	"github.com/reelrank/reelrank/internal/clientid"
	"github.com/reelrank/reelrank/internal/metrics"
	"github.com/reelrank/reelrank/internal/quota"
)

type emitter interface {
	Emit(e analytics.Event)
}

type referralLookup interface {
	Current(ctx context.Context, key string) (string, error)
}

// Service runs one generation request end to end. The client's quota lease
// is held from the limit check until consumption, so concurrent requests
// from one client are serialized.
type Service struct {
	suggester Suggester
	quota     *quota.Tracker
	referrals referralLookup
	events    emitter
	validate  *validator.Validate
}

func NewService(suggester Suggester, tracker *quota.Tracker, referrals referralLookup, events emitter) *Service {
	return &Service{
		suggester: suggester,
		quota:     tracker,
		referrals: referrals,
		events:    events,
		validate:  api.NewValidator(),
	}
}

// Generate returns keyword suggestions and the client's updated quota.
// On error the result still carries the current quota snapshot.
func (s *Service) Generate(ctx context.Context, client clientid.Info, req GenerateRequest) (GenerateResult, error) {
	lease, err := s.quota.Acquire(ctx, client.Key)
	if err != nil {
		return GenerateResult{}, err
	}
	defer lease.Release()

	meta := s.meta(ctx, client)
	in := analytics.Input{
		Method:     req.InputMethod,
		Platform:   req.Platform,
		TextLength: utf8.RuneCountInString(req.InputText),
	}

	if !lease.Allowed() {
		metrics.GenerationsTotal.WithLabelValues("limited").Inc()
		s.events.Emit(analytics.NewAlreadyLimited(meta, in))
		return GenerateResult{Usage: lease.Usage()}, quota.ErrQuotaExceeded
	}

	s.events.Emit(analytics.NewGenerationAttempt(meta, in))

	if err := s.validate.Struct(req); err != nil {
		metrics.GenerationsTotal.WithLabelValues("invalid").Inc()
		s.events.Emit(analytics.NewGenerationFailure(meta, in, api.ValidationError(err).Message))
		return GenerateResult{Usage: lease.Usage()}, err
	}

	start := time.Now()
	keywords, err := s.suggester.Suggest(ctx, req)
	metrics.SuggestionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("failure").Inc()
		slog.Warn("keyword suggestion failed", "client", client.Hash, "platform", req.Platform, "error", err)
		s.events.Emit(analytics.NewGenerationFailure(meta, in, err.Error()))
		return GenerateResult{Usage: lease.Usage()}, fmt.Errorf("suggesting keywords: %w", err)
	}

	// The suggestion was paid for; record it even if the caller went away.
	usage := lease.Consume(context.WithoutCancel(ctx))
	limitReached := usage.Remaining <= 0

	metrics.GenerationsTotal.WithLabelValues("success").Inc()
	s.events.Emit(analytics.NewGenerationSuccess(meta, in, len(keywords), limitReached))
	if limitReached {
		s.events.Emit(analytics.NewLimitHit(meta, in))
	}

	return GenerateResult{Keywords: keywords, Usage: usage, LimitReached: limitReached}, nil
}

// Explain describes how to use one keyword. It does not touch the quota.
func (s *Service) Explain(ctx context.Context, req ExplainRequest) (ExplainResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return ExplainResult{}, err
	}
	text, err := s.suggester.Explain(ctx, req)
	if err != nil {
		return ExplainResult{}, fmt.Errorf("explaining keyword: %w", err)
	}
	return ExplainResult{Explanation: text}, nil
}

func (s *Service) meta(ctx context.Context, client clientid.Info) analytics.Meta {
	m := analytics.Meta{ClientHash: client.Hash, IsMobile: client.IsMobile}
	code, err := s.referrals.Current(ctx, client.Key)
	if err != nil {
		slog.Warn("looking up referral code", "client", client.Hash, "error", err)
	}
	m.ReferralCode = code
	return m
}
