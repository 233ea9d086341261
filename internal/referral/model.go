package referral

import "time"

// Record is the durable referral attribution for one client.
type Record struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (r Record) Active(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

type Source string

const (
	SourceURL     Source = "url"
	SourceMessage Source = "message"
	SourceStored  Source = "stored"
)

// Resolution is the outcome of a page-load resolve. NewlyApplied is true
// only when this call wrote a code arriving from the URL or a message.
type Resolution struct {
	Code         string `json:"referralCode,omitempty"`
	Source       Source `json:"source,omitempty"`
	NewlyApplied bool   `json:"newlyApplied"`
}

// Message is a referral code relayed from an embedding page. The sender's
// origin comes from the request, never from the body.
type Message struct {
	Code string `json:"referralCode" validate:"required,max=128"`
}
