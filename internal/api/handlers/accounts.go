package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/creditmarket/ledger-backend/internal/api/httpx"
	"github.com/creditmarket/ledger-backend/internal/api/validate"
	"github.com/creditmarket/ledger-backend/internal/middleware"
	"github.com/creditmarket/ledger-backend/internal/services"
)

type AccountHandler struct {
	svc *services.AccountService
}

func NewAccountHandler(svc *services.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Timezone string `json:"timezone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "malformed body", nil)
		return
	}
	var errs validate.Errs
	for _, e := range []*validate.ErrField{
		validate.Required("username", req.Username),
		validate.Required("email", req.Email),
		validate.Required("password", req.Password),
	} {
		if e != nil {
			errs = append(errs, *e)
		}
	}
	if len(errs) > 0 {
		httpx.WriteError(w, http.StatusBadRequest, "validation", errs.Error(), errs)
		return
	}
	a, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password, req.Timezone)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, a)
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "malformed body", nil)
		return
	}
	pair, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

func (h *AccountHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "refresh_token required", nil)
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.AccountID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "no account in context", nil)
		return
	}
	a, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "account not found", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, a)
}

func (h *AccountHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.AccountID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "no account in context", nil)
		return
	}
	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "account not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
