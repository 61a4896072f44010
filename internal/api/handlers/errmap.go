package handlers

import (
	"errors"
	"net/http"

	"github.com/creditmarket/ledger-backend/internal/api/httpx"
	"github.com/creditmarket/ledger-backend/internal/ledger"
	"github.com/creditmarket/ledger-backend/internal/services"
)

// writeLedgerError maps ledger error kinds onto HTTP statuses. Validation
// and conflict errors carry stable machine-readable codes so the UI can
// render precise messages; only rate limiting is retryable.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrAmountOutOfRange):
		httpx.WriteError(w, http.StatusBadRequest, "amount_out_of_range", err.Error(), nil)
	case errors.Is(err, ledger.ErrSelfTransfer):
		httpx.WriteError(w, http.StatusBadRequest, "self_transfer", err.Error(), nil)
	case errors.Is(err, ledger.ErrUnknownKind):
		httpx.WriteError(w, http.StatusBadRequest, "unknown_kind", err.Error(), nil)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		httpx.WriteError(w, http.StatusConflict, "insufficient_balance", err.Error(), nil)
	case errors.Is(err, ledger.ErrAlreadyExtended):
		httpx.WriteError(w, http.StatusConflict, "already_extended", err.Error(), nil)
	case errors.Is(err, ledger.ErrAlreadyExpired):
		httpx.WriteError(w, http.StatusConflict, "already_expired", err.Error(), nil)
	case errors.Is(err, ledger.ErrNothingToExtend):
		httpx.WriteError(w, http.StatusConflict, "nothing_to_extend", err.Error(), nil)
	case errors.Is(err, ledger.ErrAlreadyClaimedToday):
		httpx.WriteError(w, http.StatusConflict, "already_claimed_today", err.Error(), nil)
	case errors.Is(err, ledger.ErrBonusDisabled):
		httpx.WriteError(w, http.StatusConflict, "bonus_disabled", err.Error(), nil)
	case errors.Is(err, ledger.ErrExtensionDisabled):
		httpx.WriteError(w, http.StatusConflict, "extension_disabled", err.Error(), nil)
	case errors.Is(err, ledger.ErrRateLimited):
		httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", err.Error(), nil)
	case errors.Is(err, ledger.ErrRecipientNotFound):
		httpx.WriteError(w, http.StatusNotFound, "recipient_not_found", err.Error(), nil)
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, ledger.ErrEntryNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ledger.ErrAccountFrozen), errors.Is(err, ledger.ErrLedgerCorrupt):
		httpx.WriteError(w, http.StatusLocked, "account_frozen", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
