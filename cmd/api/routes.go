package main

import (
	"net/http"

	"github.com/counseldesk/backend/internal/admin"
	"github.com/counseldesk/backend/internal/consult"
	"github.com/counseldesk/backend/internal/wallet"
)

// RegisterV1Routes adds the authenticated /v1/ endpoints to the given mux.
// Middleware chain: RequireAuth -> handler; role checks live in the handlers.
func RegisterV1Routes(
	mux *http.ServeMux,
	authMW func(http.Handler) http.Handler,
	consultHandler *consult.Handler,
	walletHandler *wallet.Handler,
	adminHandler *admin.Handler,
) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authMW(h))
	}

	handle("POST /v1/consultations", consultHandler.StartConsultation)
	handle("GET /v1/consultations/{id}", consultHandler.GetConsultation)
	handle("POST /v1/consultations/{id}/accept", consultHandler.AcceptConsultation)
	handle("POST /v1/consultations/{id}/decline", consultHandler.DeclineConsultation)
	handle("POST /v1/consultations/{id}/cancel", consultHandler.CancelConsultation)
	handle("POST /v1/consultations/{id}/end", consultHandler.EndConsultation)
	handle("PUT /v1/providers/me/status", consultHandler.UpdateProviderStatus)

	handle("GET /v1/wallet", walletHandler.GetWallet)
	handle("POST /v1/wallet/recharge", walletHandler.Recharge)
	handle("GET /v1/wallet/ledger", walletHandler.ListLedger)
	handle("GET /v1/earnings", walletHandler.ListEarnings)

	handle("GET /v1/admin/settings", adminHandler.GetSettings)
	handle("PUT /v1/admin/settings", adminHandler.UpdateSettings)
}
