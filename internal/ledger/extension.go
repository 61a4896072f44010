package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/creditmarket/ledger-backend/internal/metrics"
	"github.com/creditmarket/ledger-backend/internal/models"
	repo "github.com/creditmarket/ledger-backend/internal/repository"
	"github.com/google/uuid"
)

type ExtensionResult struct {
	OriginalEntryID string    `json:"original_entry_id"`
	FeeEntryID      string    `json:"fee_entry_id"`
	CreditEntryID   string    `json:"credit_entry_id"`
	Cost            int64     `json:"cost"`
	Rescued         int64     `json:"rescued"`
	NewExpiresAt    time.Time `json:"new_expires_at"`
}

// Extend rescues a soon-to-expire credit batch. The fee is carved out of
// the batch's unconsumed remainder; the rest is reissued as a fresh
// extension_credit entry expiring extra-days past the original expiry. The
// original entry is marked extended exactly once and its remainder is
// retired, so history stays append-only.
//
// Even a rescue of zero (remainder 1, minimum fee 1) appends the
// extension_credit entry: the zero-amount credit is what retires the
// original batch during replay.
func (s *Service) Extend(ctx context.Context, accountID, entryID string) (ExtensionResult, error) {
	if !s.settings.Bool(ctx, SettingExtensionEnabled) {
		return ExtensionResult{}, ErrExtensionDisabled
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	_, st, err := s.loadForMutation(ctx, accountID)
	if err != nil {
		return ExtensionResult{}, err
	}

	orig, err := s.entries.GetByID(ctx, entryID)
	if errors.Is(err, repo.ErrNotFound) {
		return ExtensionResult{}, ErrEntryNotFound
	}
	if err != nil {
		return ExtensionResult{}, err
	}
	if orig.AccountID != accountID || !orig.Kind.IsCredit() || orig.ExpiresAt == nil {
		return ExtensionResult{}, ErrEntryNotFound
	}
	if orig.Extended {
		return ExtensionResult{}, ErrAlreadyExtended
	}

	now := s.now()
	if orig.Expired(now) {
		return ExtensionResult{}, ErrAlreadyExpired
	}
	remaining, ok := st.Remaining(entryID)
	if !ok {
		return ExtensionResult{}, ErrEntryNotFound
	}
	if remaining == 0 {
		return ExtensionResult{}, ErrNothingToExtend
	}

	feePercent := s.settings.Int64(ctx, SettingExtensionFeePercent)
	extraDays := s.settings.Int64(ctx, SettingExtensionExtraDays)
	cost := feeFor(remaining, feePercent)
	if st.Spendable(now) < cost {
		return ExtensionResult{}, ErrInsufficientBalance
	}
	rescued := remaining - cost
	newExpiry := orig.ExpiresAt.Add(time.Duration(extraDays) * 24 * time.Hour)

	fee := models.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Kind:           models.KindExtensionFee,
		Amount:         cost,
		CreatedAt:      now,
		RelatedEntryID: &orig.ID,
		Description:    "extension fee",
	}
	credit := models.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Kind:           models.KindExtensionCredit,
		Amount:         rescued,
		CreatedAt:      now,
		ExpiresAt:      &newExpiry,
		RelatedEntryID: &orig.ID,
		Description:    "extension credit",
	}
	err = s.entries.Append(ctx, repo.AppendBatch{
		Entries:        []models.LedgerEntry{fee, credit},
		MarkExtendedID: orig.ID,
		BalanceDeltas:  map[string]int64{accountID: -cost},
	})
	if err != nil {
		metrics.OperationsFailed.WithLabelValues("extend").Inc()
		return ExtensionResult{}, err
	}

	metrics.EntriesAppended.WithLabelValues(string(models.KindExtensionFee)).Inc()
	metrics.EntriesAppended.WithLabelValues(string(models.KindExtensionCredit)).Inc()
	s.audit("entry", orig.ID, "extend", map[string]any{
		"cost":       cost,
		"rescued":    rescued,
		"new_expiry": newExpiry,
	})
	return ExtensionResult{
		OriginalEntryID: orig.ID,
		FeeEntryID:      fee.ID,
		CreditEntryID:   credit.ID,
		Cost:            cost,
		Rescued:         rescued,
		NewExpiresAt:    newExpiry,
	}, nil
}
