// Package wallet is the read-and-topup surface over balances, the ledger and
// provider earnings. All money mutation during a consultation happens in the
// billing and settlement packages; here only recharges touch the balance.
package wallet

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counseldesk/backend/internal/middleware"
	"github.com/counseldesk/backend/internal/models"
	"github.com/counseldesk/backend/internal/repository"
)

type Handler struct {
	pool      *pgxpool.Pool
	users     *repository.UserRepo
	providers *repository.ProviderRepo
	ledger    *repository.LedgerRepo
	earnings  *repository.EarningRepo
	log       *slog.Logger
}

func NewHandler(
	pool *pgxpool.Pool,
	users *repository.UserRepo,
	providers *repository.ProviderRepo,
	ledger *repository.LedgerRepo,
	earnings *repository.EarningRepo,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		pool:      pool,
		users:     users,
		providers: providers,
		ledger:    ledger,
		earnings:  earnings,
		log:       log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /v1/wallet
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	u, err := h.users.GetByID(r.Context(), ident.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		h.log.Error("get wallet failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"id":            u.ID,
		"email":         u.Email,
		"name":          u.Name,
		"role":          u.Role,
		"balance_cents": u.BalanceCents,
		"created_at":    u.CreatedAt,
	}
	if u.Role == models.RoleProvider {
		if p, perr := h.providers.GetByID(r.Context(), u.ID); perr == nil {
			resp["pending_cents"] = p.PendingCents
			resp["available_cents"] = p.AvailableCents
			resp["lifetime_cents"] = p.LifetimeCents
			resp["rate_per_minute_cents"] = p.RatePerMinuteCents
			resp["online"] = p.Online
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /v1/wallet/recharge
func (h *Handler) Recharge(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var body struct {
		AmountCents int64 `json:"amount_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if body.AmountCents <= 0 {
		http.Error(w, "amount_cents must be positive", http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("recharge begin tx failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	newBalance, err := h.users.Credit(r.Context(), tx, ident.ID, body.AmountCents)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		h.log.Error("recharge credit failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := h.ledger.CreateTx(r.Context(), tx, &models.LedgerEntry{
		ID:                uuid.New(),
		UserID:            ident.ID,
		Direction:         models.LedgerDirectionCredit,
		AmountCents:       body.AmountCents,
		Reason:            models.LedgerReasonRecharge,
		BalanceAfterCents: newBalance,
	}); err != nil {
		h.log.Error("recharge ledger entry failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("recharge commit failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"balance_cents": newBalance})
}

// GET /v1/wallet/ledger
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}
	entries, err := h.ledger.ListByUserID(r.Context(), ident.ID, limit)
	if err != nil {
		h.log.Error("list ledger failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /v1/earnings
func (h *Handler) ListEarnings(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if ident.Role != models.RoleProvider {
		http.Error(w, "provider role required", http.StatusForbidden)
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, _ = strconv.Atoi(s)
	}
	earnings, err := h.earnings.ListByProviderID(r.Context(), ident.ID, r.URL.Query().Get("status"), limit)
	if err != nil {
		h.log.Error("list earnings failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if earnings == nil {
		earnings = []*models.Earning{}
	}
	writeJSON(w, http.StatusOK, earnings)
}
