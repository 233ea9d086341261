// Package clientid derives the quota key and analytics attribution for the
// caller of each request.
package clientid

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

type KeySource string

const (
	SourceIP     KeySource = "ip"
	SourceDevice KeySource = "device"
)

// Info identifies the caller. Key scopes quota and referral state; Hash is
// a keyed digest of Key that is safe to log and ship to analytics.
type Info struct {
	Key      string
	Hash     string
	IP       string
	IsMobile bool
}

type contextKey string

const infoKey contextKey = "client_info"

func FromContext(ctx context.Context) Info {
	info, _ := ctx.Value(infoKey).(Info)
	return info
}

func WithInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

type Config struct {
	Source     KeySource
	CookieName string
	HashKey    string
	TrustProxy bool
	// Devices is required when Source is SourceDevice.
	Devices *DeviceTokens
}

type Resolver struct {
	cfg    Config
	hasher hasher
}

func NewResolver(cfg Config) (*Resolver, error) {
	key := []byte(cfg.HashKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	h, err := newHasher(key)
	if err != nil {
		return nil, err
	}
	return &Resolver{cfg: cfg, hasher: h}, nil
}

// Middleware resolves Info for every request. In device mode a missing or
// invalid cookie is replaced with a freshly issued one.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := Info{
			IP:       ClientIP(r, res.cfg.TrustProxy),
			IsMobile: IsMobile(r),
		}

		info.Key = "ip:" + info.IP
		if res.cfg.Source == SourceDevice {
			if id := res.device(w, r); id != "" {
				info.Key = "device:" + id
			}
		}
		info.Hash = res.hasher.sum(info.Key)

		next.ServeHTTP(w, r.WithContext(WithInfo(r.Context(), info)))
	})
}

func (res *Resolver) device(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(res.cfg.CookieName); err == nil {
		if id, err := res.cfg.Devices.Verify(c.Value); err == nil {
			return id
		}
	}

	token, id, err := res.cfg.Devices.Issue()
	if err != nil {
		slog.Error("clientid: issuing device cookie, falling back to ip", "error", err)
		return ""
	}
	// The app is embedded cross-site, so the cookie must be SameSite=None.
	http.SetCookie(w, &http.Cookie{
		Name:     res.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(res.cfg.Devices.ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	return id
}

// ClientIP returns the caller's address. Forwarding headers are honoured
// only behind a trusted proxy.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IsMobile prefers the Sec-CH-UA-Mobile client hint and falls back to the
// User-Agent.
func IsMobile(r *http.Request) bool {
	switch r.Header.Get("Sec-CH-UA-Mobile") {
	case "?1":
		return true
	case "?0":
		return false
	}
	ua := r.Header.Get("User-Agent")
	return strings.Contains(ua, "Mobi") || strings.Contains(ua, "Android")
}

type hasher struct {
	key []byte
}

func newHasher(key []byte) (hasher, error) {
	if _, err := blake2b.New(16, key); err != nil {
		return hasher{}, err
	}
	return hasher{key: key}, nil
}

func (h hasher) sum(s string) string {
	d, _ := blake2b.New(16, h.key)
	d.Write([]byte(s))
	return hex.EncodeToString(d.Sum(nil))
}
