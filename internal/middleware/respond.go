package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError mirrors the api error envelope; api imports this package so it
// cannot be reused here.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
