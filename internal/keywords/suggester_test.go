package keywords

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrank/reelrank/internal/config"
)

func geminiReply(t *testing.T, modelText string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": modelText}},
				},
				"finishReason": "STOP",
			},
		},
	})
	require.NoError(t, err)
	return body
}

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewGeminiClient(config.LLMConfig{BaseURL: srv.URL + "/", APIKey: "test-key", Model: "gemini-test", Timeout: timeout})
}

var validReq = GenerateRequest{InputMethod: "caption", InputText: "morning routine for busy founders", Platform: "youtube-shorts"}

func TestGeminiClient_Suggest(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateContentRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write(geminiReply(t, `{"keywords":["morning routine"," founder habits ",""]}`))
	}, time.Second)

	kws, err := c.Suggest(context.Background(), validReq)
	require.NoError(t, err)
	assert.Equal(t, []string{"morning routine", "founder habits"}, kws)

	assert.Equal(t, "/models/gemini-test:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "application/json", gotBody.GenerationConfig.ResponseMimeType)
	require.Len(t, gotBody.Contents, 1)
	assert.Contains(t, gotBody.Contents[0].Parts[0].Text, "Platform: YouTube Shorts")
	assert.Contains(t, gotBody.Contents[0].Parts[0].Text, validReq.InputText)
}

func TestGeminiClient_EmptyListIsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(geminiReply(t, "```json\n{\"keywords\":[]}\n```"))
	}, time.Second)

	kws, err := c.Suggest(context.Background(), validReq)
	require.NoError(t, err)
	assert.NotNil(t, kws)
	assert.Empty(t, kws)
}

func TestGeminiClient_MissingKeywords(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(geminiReply(t, `{"tags":["x"]}`))
	}, time.Second)

	_, err := c.Suggest(context.Background(), validReq)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGeminiClient_NoCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}, time.Second)

	_, err := c.Suggest(context.Background(), validReq)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGeminiClient_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	}, time.Second)

	_, err := c.Suggest(context.Background(), validReq)
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "Resource has been exhausted")
}

func TestGeminiClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := c.Suggest(context.Background(), validReq)
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "timed out")
}

func TestGeminiClient_Explain(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(geminiReply(t, `{"explanation":"Open with the keyword in the first line."}`))
	}, time.Second)

	text, err := c.Explain(context.Background(), ExplainRequest{Keyword: "morning routine", Platform: "tiktok", InputMethod: "script"})
	require.NoError(t, err)
	assert.Equal(t, "Open with the keyword in the first line.", text)
}
