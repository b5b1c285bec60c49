package directory

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// ListProviders handles GET /v1/providers. Public: requesters browse the
// directory before authenticating.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListAvailable(r.Context(), r.URL.Query().Get("specialization"))
	if err != nil {
		h.log.Error("list providers failed", "error", err)
		http.Error(w, "list providers failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*Listing{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(list)
}
