package ledger

import "errors"

// Named failure kinds. Handlers map these to HTTP statuses; none of them
// leak storage detail. Only ErrRateLimited is retryable as-is.
var (
	// Validation: rejected before any store access.
	ErrAmountOutOfRange = errors.New("amount out of range")
	ErrSelfTransfer     = errors.New("cannot transfer to self")
	ErrUnknownKind      = errors.New("unknown entry kind")

	// Conflict: valid request, state says no.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRecipientNotFound   = errors.New("recipient not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrEntryNotFound       = errors.New("entry not found")
	ErrAlreadyExtended     = errors.New("entry already extended")
	ErrAlreadyExpired      = errors.New("entry already expired")
	ErrNothingToExtend     = errors.New("entry fully consumed, nothing to extend")
	ErrAlreadyClaimedToday = errors.New("daily bonus already claimed today")
	ErrBonusDisabled       = errors.New("daily bonus is disabled")
	ErrExtensionDisabled   = errors.New("extension is disabled")
	ErrRateLimited         = errors.New("transfer rate limit exceeded")

	// Corruption: cached balance disagrees with the recomputed log. The
	// account is frozen and stays frozen until manually reconciled.
	ErrLedgerCorrupt = errors.New("ledger reconciliation mismatch")
	ErrAccountFrozen = errors.New("account frozen pending reconciliation")
)
