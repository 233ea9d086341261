package referral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrank/reelrank/internal/analytics"
	"github.com/reelrank/reelrank/internal/clientid"
	"github.com/reelrank/reelrank/internal/quota"
)

type recordingEmitter struct {
	events []analytics.Event
}

func (r *recordingEmitter) Emit(e analytics.Event) { r.events = append(r.events, e) }

type fixedUsage struct{}

func (fixedUsage) Usage(context.Context, string) (quota.Usage, error) {
	return quota.Usage{Remaining: 3, Max: 5}, nil
}

var visitor = clientid.Info{Key: "ip:203.0.113.9", Hash: "hv", IsMobile: true}

func do(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	return doFrom(h, method, target, "", body)
}

func doFrom(h http.HandlerFunc, method, target, origin, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	r = r.WithContext(clientid.WithInfo(r.Context(), visitor))
	rec := httptest.NewRecorder()
	h(rec, r)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) Session {
	t.Helper()
	var env struct {
		Data Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Data
}

func TestHandler_SessionAppliesURLCodeEveryLoad(t *testing.T) {
	tr, _, _ := setupTracker(t)
	ev := &recordingEmitter{}
	h := NewHandler(tr, fixedUsage{}, ev)

	for i := 0; i < 2; i++ {
		rec := do(h.Session, http.MethodGet, "/api/v1/session?referralCode=ABC123", "")
		require.Equal(t, http.StatusOK, rec.Code)
		s := decodeSession(t, rec)
		assert.Equal(t, "ABC123", s.ReferralCode)
		assert.Equal(t, 3, s.Usage.Remaining)
	}

	require.Len(t, ev.events, 2, "each load carrying the parameter re-emits")
	assert.Equal(t, analytics.KindReferralApplied, ev.events[0].Kind)
	assert.Equal(t, "url", ev.events[0].Source)
	assert.Equal(t, "ABC123", ev.events[0].ReferralCode)
	assert.True(t, ev.events[0].IsMobile)

	rec := do(h.Session, http.MethodGet, "/api/v1/session", "")
	assert.Equal(t, "ABC123", decodeSession(t, rec).ReferralCode)
	assert.Len(t, ev.events, 2, "stored code is not newly applied")
}

func TestHandler_MessageThenSession(t *testing.T) {
	tr, _, _ := setupTracker(t)
	ev := &recordingEmitter{}
	h := NewHandler(tr, fixedUsage{}, ev)

	rec := doFrom(h.Message, http.MethodPost, "/api/v1/referral/message", "https://superprofile.bio", `{"referralCode":"MSG7"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(h.Session, http.MethodGet, "/api/v1/session", "")
	assert.Equal(t, "MSG7", decodeSession(t, rec).ReferralCode)
	require.Len(t, ev.events, 1)
	assert.Equal(t, "message", ev.events[0].Source)
}

func TestHandler_MessageRejections(t *testing.T) {
	tr, _, _ := setupTracker(t)
	h := NewHandler(tr, fixedUsage{}, &recordingEmitter{})

	rec := doFrom(h.Message, http.MethodPost, "/", "https://evil.example", `{"referralCode":"X"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h.Message, http.MethodPost, "/", `{"referralCode":"X"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code, "missing Origin header")

	rec = doFrom(h.Message, http.MethodPost, "/", "https://superprofile.bio", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h.Message, http.MethodPost, "/", `[`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_MessageIgnoresOriginInBody(t *testing.T) {
	tr, _, _ := setupTracker(t)
	h := NewHandler(tr, fixedUsage{}, &recordingEmitter{})

	rec := doFrom(h.Message, http.MethodPost, "/api/v1/referral/message", "https://evil.example",
		`{"origin":"https://superprofile.bio","referralCode":"FORGED"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h.Session, http.MethodGet, "/api/v1/session", "")
	assert.Empty(t, decodeSession(t, rec).ReferralCode)
}
