package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/counseldesk/backend/internal/admin"
	"github.com/counseldesk/backend/internal/consult"
	"github.com/counseldesk/backend/internal/wallet"
)

func TestRegisterV1RoutesAllBehindAuth(t *testing.T) {
	rejectAll := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}

	mux := http.NewServeMux()
	RegisterV1Routes(mux, rejectAll, &consult.Handler{}, &wallet.Handler{}, &admin.Handler{})

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/v1/consultations"},
		{http.MethodGet, "/v1/consultations/550e8400-e29b-41d4-a716-446655440000"},
		{http.MethodPost, "/v1/consultations/550e8400-e29b-41d4-a716-446655440000/accept"},
		{http.MethodPost, "/v1/consultations/550e8400-e29b-41d4-a716-446655440000/decline"},
		{http.MethodPost, "/v1/consultations/550e8400-e29b-41d4-a716-446655440000/cancel"},
		{http.MethodPost, "/v1/consultations/550e8400-e29b-41d4-a716-446655440000/end"},
		{http.MethodPut, "/v1/providers/me/status"},
		{http.MethodGet, "/v1/wallet"},
		{http.MethodPost, "/v1/wallet/recharge"},
		{http.MethodGet, "/v1/wallet/ledger"},
		{http.MethodGet, "/v1/earnings"},
		{http.MethodGet, "/v1/admin/settings"},
		{http.MethodPut, "/v1/admin/settings"},
	}

	for _, rt := range routes {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s should be gated by the auth middleware", rt.method, rt.path)
	}
}
