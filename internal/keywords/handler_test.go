package keywords

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrank/reelrank/internal/clientid"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Usage *struct {
		Remaining int `json:"remaining"`
		Max       int `json:"max"`
	} `json:"usage"`
}

func post(t *testing.T, h http.HandlerFunc, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/keywords", strings.NewReader(body))
	r = r.WithContext(clientid.WithInfo(r.Context(), alice))
	rec := httptest.NewRecorder()
	h(rec, r)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

const validBody = `{"inputMethod":"caption","inputText":"morning routine for busy founders","platform":"tiktok"}`

func TestHandler_Generate(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, f.clock)

	rec, env := post(t, h.Generate, validBody)
	require.Equal(t, http.StatusOK, rec.Code)

	var res GenerateResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, []string{"a", "b", "c"}, res.Keywords)
	assert.Equal(t, 4, res.Usage.Remaining)
	assert.Equal(t, 5, res.Usage.Max)
}

func TestHandler_GenerateQuotaExceeded(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, f.clock)

	for i := 0; i < 5; i++ {
		rec, _ := post(t, h.Generate, validBody)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, env := post(t, h.Generate, validBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "86400", rec.Header().Get("Retry-After"))
	require.NotNil(t, env.Usage)
	assert.Equal(t, 0, env.Usage.Remaining)
}

func TestHandler_GenerateValidation(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, f.clock)

	rec, env := post(t, h.Generate, `{"inputMethod":"essay","inputText":"long enough text here","platform":"tiktok"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, "inputMethod must be one of")
	require.NotNil(t, env.Usage)
	assert.Equal(t, 5, env.Usage.Remaining)
}

func TestHandler_GenerateMalformedBody(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, f.clock)

	rec, env := post(t, h.Generate, `{"inputMethod":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad request", env.Error)
}

func TestHandler_GenerateUpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.suggester.err = ErrUpstream
	h := NewHandler(f.svc, f.clock)

	rec, env := post(t, h.Generate, validBody)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, env.Error, "keyword suggestion failed", "raw upstream error stays in logs")
	require.NotNil(t, env.Usage)
	assert.Equal(t, 5, env.Usage.Remaining)
}

func TestHandler_Explain(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, f.clock)

	rec, env := post(t, h.Explain, `{"keyword":"habits","platform":"linkedin-video","inputMethod":"script"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res ExplainResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "use habits early", res.Explanation)

	rec, _ = post(t, h.Explain, `{"keyword":"habits","platform":"vine","inputMethod":"script"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
