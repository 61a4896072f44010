package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/creditmarket/ledger-backend/internal/api/httpx"
	"github.com/creditmarket/ledger-backend/internal/ledger"
	"github.com/creditmarket/ledger-backend/internal/middleware"
	"github.com/creditmarket/ledger-backend/internal/models"
)

// LedgerHandler exposes the ledger facade over HTTP. Amounts cross the wire
// as fixed-point decimal strings ("12.34"); internally everything is minor
// units.
type LedgerHandler struct {
	svc *ledger.Service
}

func NewLedgerHandler(svc *ledger.Service) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

func accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.AccountID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "no account in context", nil)
	}
	return id, ok
}

func parseAmountField(w http.ResponseWriter, s string) (int64, bool) {
	v, err := ledger.ParseAmount(s)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_amount", "amount must be a decimal with at most two fraction digits", nil)
		return 0, false
	}
	return v, true
}

func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	bal, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"balance":       ledger.FormatAmount(bal),
		"balance_minor": bal,
	})
}

func (h *LedgerHandler) ExpiringSoon(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			httpx.WriteError(w, http.StatusBadRequest, "bad_request", "days must be in 1..365", nil)
			return
		}
		days = n
	}
	batches, total, err := h.svc.ExpiringSoon(r.Context(), id, days)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"total_amount":       ledger.FormatAmount(total),
		"total_amount_minor": total,
		"entries":            batches,
	})
}

func (h *LedgerHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	entries, err := h.svc.History(r.Context(), id, limit, offset)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (h *LedgerHandler) Credit(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var req struct {
		Kind        string     `json:"kind"`
		Amount      string     `json:"amount"`
		ExpiresAt   *time.Time `json:"expires_at"`
		Description string     `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "malformed body", nil)
		return
	}
	amount, ok := parseAmountField(w, req.Amount)
	if !ok {
		return
	}
	entry, err := h.svc.Credit(r.Context(), ledger.CreditRequest{
		AccountID:      id,
		Kind:           models.EntryKind(req.Kind),
		Amount:         amount,
		ExpiresAt:      req.ExpiresAt,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Description:    req.Description,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, entry)
}

func (h *LedgerHandler) Debit(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount      string `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "malformed body", nil)
		return
	}
	amount, ok := parseAmountField(w, req.Amount)
	if !ok {
		return
	}
	entry, err := h.svc.Debit(r.Context(), ledger.DebitRequest{
		AccountID:      id,
		Amount:         amount,
		Description:    req.Description,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, entry)
}

func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	var req struct {
		RecipientID string `json:"recipient_id"`
		Amount      string `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecipientID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "recipient_id required", nil)
		return
	}
	amount, ok := parseAmountField(w, req.Amount)
	if !ok {
		return
	}
	res, err := h.svc.Transfer(r.Context(), ledger.TransferRequest{
		SenderID:       id,
		RecipientID:    req.RecipientID,
		Amount:         amount,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Description:    req.Description,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *LedgerHandler) Extend(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	entryID := chi.URLParam(r, "id")
	res, err := h.svc.Extend(r.Context(), id, entryID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *LedgerHandler) ClaimBonus(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ClaimDailyBonus(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

// PurchaseWebhook receives payment-provider confirmations. The idempotency
// key derives from the provider's transaction id, so redelivered events
// credit at most once.
func (h *LedgerHandler) PurchaseWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderTxnID string `json:"provider_txn_id"`
		AccountID     string `json:"account_id"`
		Amount        string `json:"amount"`
		Description   string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProviderTxnID == "" || req.AccountID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "provider_txn_id and account_id required", nil)
		return
	}
	amount, ok := parseAmountField(w, req.Amount)
	if !ok {
		return
	}
	entry, err := h.svc.Credit(r.Context(), ledger.CreditRequest{
		AccountID:      req.AccountID,
		Kind:           models.KindPurchase,
		Amount:         amount,
		IdempotencyKey: "purchase:" + req.ProviderTxnID,
		Description:    req.Description,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, entry)
}
