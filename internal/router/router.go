package router

import (
	"net/http"

	"github.com/counseldesk/backend/internal/auth"
	"github.com/counseldesk/backend/internal/directory"
)

// New returns an http.Handler serving the unauthenticated surface: account
// registration, login, the provider directory and the health probe.
func New(authHandler *auth.Handler, directoryHandler *directory.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /v1/auth/login", authHandler.Login)
	mux.HandleFunc("GET /v1/providers", directoryHandler.ListProviders)
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
