package clientid

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrank/reelrank/internal/clock"
)

const testSecret = "device-secret-that-is-at-least-32-chars"

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func capture(t *testing.T, res *Resolver, r *http.Request) (Info, *httptest.ResponseRecorder) {
	t.Helper()
	var got Info
	rec := httptest.NewRecorder()
	res.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	})).ServeHTTP(rec, r)
	return got, rec
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	assert.Equal(t, "10.0.0.1", ClientIP(r, false), "forwarding headers ignored without a trusted proxy")
	assert.Equal(t, "203.0.113.7", ClientIP(r, true))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(r, true))
}

func TestIsMobile(t *testing.T) {
	tests := []struct {
		name  string
		hint  string
		ua    string
		wants bool
	}{
		{"client hint mobile", "?1", "", true},
		{"client hint desktop wins over UA", "?0", "Mozilla/5.0 (iPhone) Mobile/15E148", false},
		{"iphone UA", "", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148", true},
		{"desktop UA", "", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.hint != "" {
				r.Header.Set("Sec-CH-UA-Mobile", tt.hint)
			}
			r.Header.Set("User-Agent", tt.ua)
			assert.Equal(t, tt.wants, IsMobile(r))
		})
	}
}

func TestResolver_IPSource(t *testing.T) {
	res, err := NewResolver(Config{Source: SourceIP, HashKey: "k"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:1234"
	info, rec := capture(t, res, r)

	assert.Equal(t, "ip:192.0.2.10", info.Key)
	assert.Len(t, info.Hash, 32)
	assert.NotContains(t, info.Hash, "192.0.2.10")
	assert.Empty(t, rec.Result().Cookies())

	again, _ := capture(t, res, r)
	assert.Equal(t, info.Hash, again.Hash, "hash is stable for one key")
}

func TestResolver_HashDependsOnKey(t *testing.T) {
	a, err := NewResolver(Config{Source: SourceIP, HashKey: "key-a"})
	require.NoError(t, err)
	b, err := NewResolver(Config{Source: SourceIP, HashKey: "key-b"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ia, _ := capture(t, a, r)
	ib, _ := capture(t, b, r)
	assert.NotEqual(t, ia.Hash, ib.Hash)
}

func TestResolver_RejectsOversizedHashKey(t *testing.T) {
	_, err := NewResolver(Config{HashKey: string(make([]byte, 65))})
	assert.Error(t, err)
}

func TestResolver_DeviceSource(t *testing.T) {
	clk := clock.NewFake(t0)
	devices := NewDeviceTokens(testSecret, 24*time.Hour, clk)
	res, err := NewResolver(Config{Source: SourceDevice, CookieName: "rr_device", HashKey: "k", Devices: devices})
	require.NoError(t, err)

	first, rec := capture(t, res, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "rr_device", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteNoneMode, cookies[0].SameSite)
	assert.Contains(t, first.Key, "device:")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookies[0])
	second, rec2 := capture(t, res, r)
	assert.Equal(t, first.Key, second.Key, "a valid cookie keeps the same device")
	assert.Empty(t, rec2.Result().Cookies())

	clk.Advance(25 * time.Hour)
	third, rec3 := capture(t, res, r)
	assert.NotEqual(t, first.Key, third.Key, "expired cookie is replaced")
	assert.Len(t, rec3.Result().Cookies(), 1)
}

func TestDeviceTokens_RejectsForeignSecret(t *testing.T) {
	clk := clock.NewFake(t0)
	token, _, err := NewDeviceTokens("another-secret-that-is-long-enough!!", time.Hour, clk).Issue()
	require.NoError(t, err)

	_, err = NewDeviceTokens(testSecret, time.Hour, clk).Verify(token)
	assert.Error(t, err)
}
