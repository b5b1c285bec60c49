package consult

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/counseldesk/backend/internal/middleware"
	"github.com/counseldesk/backend/internal/models"
)

// Lifecycle abstracts the consult service for the handler.
type Lifecycle interface {
	Start(ctx context.Context, requesterID, providerID uuid.UUID, kind string) (*models.Session, error)
	Accept(ctx context.Context, sessionID, providerID uuid.UUID) (*models.Session, error)
	Decline(ctx context.Context, sessionID, providerID uuid.UUID, reason string) (*models.Session, error)
	Cancel(ctx context.Context, sessionID, requesterID uuid.UUID) (*models.Session, error)
	End(ctx context.Context, sessionID, requesterID uuid.UUID) (*EndResult, error)
	GetSession(ctx context.Context, sessionID, callerID uuid.UUID) (*models.Session, error)
}

// Presence flips a provider's online flag.
type Presence interface {
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
}

// Handler serves the /v1/consultations endpoints.
type Handler struct {
	Svc      Lifecycle
	Presence Presence
	Logger   *slog.Logger
}

type startRequest struct {
	ProviderID string `json:"provider_id"`
	Kind       string `json:"kind"`
}

// StartConsultation handles POST /v1/consultations.
func (h *Handler) StartConsultation(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		http.Error(w, `{"error":"invalid provider_id"}`, http.StatusBadRequest)
		return
	}

	sess, err := h.Svc.Start(r.Context(), ident.ID, providerID, req.Kind)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// AcceptConsultation handles POST /v1/consultations/{id}/accept.
func (h *Handler) AcceptConsultation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, sessionID, callerID uuid.UUID) (any, error) {
		return h.Svc.Accept(ctx, sessionID, callerID)
	})
}

type declineRequest struct {
	Reason string `json:"reason"`
}

// DeclineConsultation handles POST /v1/consultations/{id}/decline.
func (h *Handler) DeclineConsultation(w http.ResponseWriter, r *http.Request) {
	var req declineRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	h.transition(w, r, func(ctx context.Context, sessionID, callerID uuid.UUID) (any, error) {
		return h.Svc.Decline(ctx, sessionID, callerID, req.Reason)
	})
}

// CancelConsultation handles POST /v1/consultations/{id}/cancel.
func (h *Handler) CancelConsultation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, sessionID, callerID uuid.UUID) (any, error) {
		return h.Svc.Cancel(ctx, sessionID, callerID)
	})
}

// EndConsultation handles POST /v1/consultations/{id}/end.
func (h *Handler) EndConsultation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, sessionID, callerID uuid.UUID) (any, error) {
		return h.Svc.End(ctx, sessionID, callerID)
	})
}

// GetConsultation handles GET /v1/consultations/{id}.
func (h *Handler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, sessionID, callerID uuid.UUID) (any, error) {
		return h.Svc.GetSession(ctx, sessionID, callerID)
	})
}

type statusRequest struct {
	Online bool `json:"online"`
}

// UpdateProviderStatus handles PUT /v1/providers/me/status.
func (h *Handler) UpdateProviderStatus(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if ident.Role != models.RoleProvider {
		http.Error(w, `{"error":"provider role required"}`, http.StatusForbidden)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Presence.SetOnline(r.Context(), ident.ID, req.Online); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"online": req.Online})
}

// transition runs one session operation addressed by the path id for the
// authenticated caller.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, sessionID, callerID uuid.UUID) (any, error)) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid session id"}`, http.StatusBadRequest)
		return
	}
	result, err := op(r.Context(), sessionID, ident.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInsufficientBalance):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrProviderUnavailable):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.Logger.Error("consultation request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
