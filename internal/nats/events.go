package nats

import "time"

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

const StreamEvents = "REELRANK_EVENTS"

// Subject constants.
const (
	SubjectEventsWildcard = "reelrank.events.>"
	SubjectAnalytics      = "reelrank.events.analytics" // reelrank.events.analytics.{kind}
)
