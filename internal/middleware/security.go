package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeaders adds standard security headers to every response. The
// widget is served inside an iframe, so framing is limited to
// frameAncestors instead of being denied outright.
func SecurityHeaders(frameAncestors []string) func(http.Handler) http.Handler {
	ancestors := "'none'"
	if len(frameAncestors) > 0 {
		ancestors = strings.Join(frameAncestors, " ")
	}
	csp := "default-src 'none'; frame-ancestors " + ancestors

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			if len(frameAncestors) == 0 {
				w.Header().Set("X-Frame-Options", "DENY")
			}
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Content-Security-Policy", csp)
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			next.ServeHTTP(w, r)
		})
	}
}
