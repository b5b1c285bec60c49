// Package admin exposes the system settings knobs: the commission percentage
// applied at settlement and the minimum balance required to start a
// consultation.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/counseldesk/backend/internal/middleware"
	"github.com/counseldesk/backend/internal/models"
	"github.com/counseldesk/backend/internal/repository"
)

type Handler struct {
	settings *repository.SettingsRepo
	log      *slog.Logger
}

func NewHandler(settings *repository.SettingsRepo, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{settings: settings, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if ident.Role != models.RoleAdmin {
		http.Error(w, "admin role required", http.StatusForbidden)
		return false
	}
	return true
}

// GET /v1/admin/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	s, err := h.settings.Get(r.Context())
	if err != nil {
		h.log.Error("get settings failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// PUT /v1/admin/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	s, err := h.settings.Get(r.Context())
	if err != nil {
		h.log.Error("load settings failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var body struct {
		CommissionPercent *int64 `json:"commission_percent"`
		MinStartCents     *int64 `json:"min_start_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if body.CommissionPercent != nil {
		if *body.CommissionPercent < 0 || *body.CommissionPercent > 100 {
			http.Error(w, "commission_percent must be between 0 and 100", http.StatusBadRequest)
			return
		}
		s.CommissionPercent = *body.CommissionPercent
	}
	if body.MinStartCents != nil {
		if *body.MinStartCents < 0 {
			http.Error(w, "min_start_cents must not be negative", http.StatusBadRequest)
			return
		}
		s.MinStartCents = *body.MinStartCents
	}
	if err := h.settings.Update(r.Context(), s); err != nil {
		h.log.Error("update settings failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
