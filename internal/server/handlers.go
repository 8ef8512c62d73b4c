package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/joshp123/gobed/internal/core"
)

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// RegistryHandler exposes plugin discovery as JSON.
func RegistryHandler(registry *core.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/plugins"), "/")
		if id == "" {
			writeJSON(w, registry.List())
			return
		}
		summary, ok := registry.Describe(id)
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, summary)
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
