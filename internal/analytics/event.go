package analytics

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindGenerationAttempt Kind = "keyword_generation_attempt"
	KindGenerationSuccess Kind = "keyword_generation_success"
	KindGenerationFailure Kind = "keyword_generation_failure"
	KindAlreadyLimited    Kind = "already_limited_attempt"
	KindLimitHit          Kind = "limit_hit_on_attempt"
	KindReferralApplied   Kind = "referral_code_applied"
	KindContactSubmitted  Kind = "contact_details_submitted"
)

// Kinds lists every event kind in a stable order.
var Kinds = []Kind{
	KindGenerationAttempt,
	KindGenerationSuccess,
	KindGenerationFailure,
	KindAlreadyLimited,
	KindLimitHit,
	KindReferralApplied,
	KindContactSubmitted,
}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is one analytics record. Which optional fields are set depends on
// Kind; use the New* constructors rather than filling it by hand.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"eventType"`
	Timestamp  time.Time `json:"timestamp"`
	ClientHash string    `json:"clientHash,omitempty"`
	IsMobile   bool      `json:"isMobile"`

	ReferralCode string `json:"referralCode,omitempty"`
	Source       string `json:"source,omitempty"`

	InputMethod  string `json:"inputMethod,omitempty"`
	Platform     string `json:"platform,omitempty"`
	TextLength   int    `json:"inputTextLength,omitempty"`
	KeywordCount *int   `json:"numberOfKeywordsGenerated,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	WasAlreadyLimited       *bool `json:"wasAlreadyLimited,omitempty"`
	LimitReachedThisAttempt *bool `json:"dailyLimitReachedThisAttempt,omitempty"`

	Email string `json:"email,omitempty"`
}

// Meta is the attribution shared by every event from one client.
type Meta struct {
	ClientHash   string
	IsMobile     bool
	ReferralCode string
}

// Input describes the generation request an event refers to.
type Input struct {
	Method     string
	Platform   string
	TextLength int
}

func base(kind Kind, m Meta) Event {
	return Event{
		Kind:         kind,
		ClientHash:   m.ClientHash,
		IsMobile:     m.IsMobile,
		ReferralCode: m.ReferralCode,
	}
}

func withInput(kind Kind, m Meta, in Input, alreadyLimited bool) Event {
	e := base(kind, m)
	e.InputMethod = in.Method
	e.Platform = in.Platform
	e.TextLength = in.TextLength
	e.WasAlreadyLimited = &alreadyLimited
	return e
}

func NewGenerationAttempt(m Meta, in Input) Event {
	return withInput(KindGenerationAttempt, m, in, false)
}

func NewGenerationSuccess(m Meta, in Input, keywordCount int, limitReached bool) Event {
	e := withInput(KindGenerationSuccess, m, in, false)
	e.KeywordCount = &keywordCount
	e.LimitReachedThisAttempt = &limitReached
	return e
}

func NewGenerationFailure(m Meta, in Input, errMsg string) Event {
	e := withInput(KindGenerationFailure, m, in, false)
	e.ErrorMessage = errMsg
	return e
}

func NewAlreadyLimited(m Meta, in Input) Event {
	return withInput(KindAlreadyLimited, m, in, true)
}

func NewLimitHit(m Meta, in Input) Event {
	e := withInput(KindLimitHit, m, in, false)
	reached := true
	e.LimitReachedThisAttempt = &reached
	return e
}

// NewReferralApplied records a code newly applied from source ("url" or
// "message"). m.ReferralCode must carry the applied code.
func NewReferralApplied(m Meta, source string) Event {
	e := base(KindReferralApplied, m)
	e.Source = source
	return e
}

func NewContactSubmitted(m Meta, email string) Event {
	e := base(KindContactSubmitted, m)
	e.Email = email
	return e
}
