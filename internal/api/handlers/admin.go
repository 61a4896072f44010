package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/creditmarket/ledger-backend/internal/api/httpx"
	"github.com/creditmarket/ledger-backend/internal/ledger"
	repo "github.com/creditmarket/ledger-backend/internal/repository"
)

// AdminHandler exposes the hot-reloadable ledger settings and the manual
// reconciliation tools. All routes behind RequireRole("admin").
type AdminHandler struct {
	svc      *ledger.Service
	settings repo.Settings
}

func NewAdminHandler(svc *ledger.Service, settings repo.Settings) *AdminHandler {
	return &AdminHandler{svc: svc, settings: settings}
}

func (h *AdminHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	stored, err := h.settings.GetAll(r.Context())
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "settings unavailable", nil)
		return
	}
	// Defaults fill the gaps so the admin UI always sees the full key set.
	out := ledger.Defaults()
	for k, v := range stored {
		out[k] = v
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) SetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, known := ledger.Defaults()[key]; !known {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "unknown setting", nil)
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "value required", nil)
		return
	}
	if err := h.settings.Set(r.Context(), key, req.Value); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "settings unavailable", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{key: req.Value})
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	cached, recomputed, err := h.svc.Reconcile(r.Context(), accountID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"cached_balance":     cached,
		"recomputed_balance": recomputed,
		"drift":              cached - recomputed,
	})
}

func (h *AdminHandler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if err := h.svc.Unfreeze(r.Context(), accountID); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
