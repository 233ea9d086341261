package middleware

import (
	"github.com/go-chi/cors"
)

// CORS returns cors.Options for the embedding origins. Credentials are
// allowed so the device cookie travels with cross-site requests, except
// with a wildcard origin, which browsers refuse to combine with credentials.
func CORS(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://superprofile.bio"}
	}

	allowCreds := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}
