package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creditmarket/ledger-backend/internal/metrics"
	"github.com/creditmarket/ledger-backend/internal/models"
	repo "github.com/creditmarket/ledger-backend/internal/repository"
	"github.com/google/uuid"
)

type TransferRequest struct {
	SenderID       string
	RecipientID    string
	Amount         int64
	IdempotencyKey string
	Description    string
}

type TransferResult struct {
	TransferID  string    `json:"transfer_id"`
	OutEntryID  string    `json:"out_entry_id"`
	InEntryID   string    `json:"in_entry_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// Transfer moves credit between two accounts as one atomic pair of entries.
// Validation order is fixed and fail-fast: amount range, self-transfer,
// recipient existence, sender rate limit, sender balance. The recipient's
// credit does not inherit the sender's expiry; it gets a fresh default
// horizon, so transfers reset the clock.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	maxAmount := s.settings.Int64(ctx, SettingTransferMaxAmount)
	if req.Amount < 1 || req.Amount > maxAmount {
		return TransferResult{}, ErrAmountOutOfRange
	}
	if req.SenderID == req.RecipientID {
		return TransferResult{}, ErrSelfTransfer
	}

	unlock := s.locks.LockPair(req.SenderID, req.RecipientID)
	defer unlock()

	if res, ok, err := s.replayedTransfer(ctx, req.IdempotencyKey); err != nil || ok {
		return res, err
	}

	recipient, err := s.accounts.GetByID(ctx, req.RecipientID)
	if err != nil || !recipient.Active {
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return TransferResult{}, err
		}
		return TransferResult{}, ErrRecipientNotFound
	}

	limit := int(s.settings.Int64(ctx, SettingRateLimitCount))
	window := time.Duration(s.settings.Int64(ctx, SettingRateLimitWindowSeconds)) * time.Second
	now := s.now()
	if !s.window.Allow(req.SenderID, limit, window, now) {
		metrics.OperationsFailed.WithLabelValues("transfer_rate_limited").Inc()
		return TransferResult{}, ErrRateLimited
	}

	_, st, err := s.loadForMutation(ctx, req.SenderID)
	if err != nil {
		return TransferResult{}, err
	}
	if st.Spendable(now) < req.Amount {
		return TransferResult{}, ErrInsufficientBalance
	}

	transferID := uuid.NewString()
	validityDays := s.settings.Int64(ctx, SettingDefaultValidityDays)
	expires := now.Add(time.Duration(validityDays) * 24 * time.Hour)

	out := models.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      req.SenderID,
		Kind:           models.KindTransferOut,
		Amount:         req.Amount,
		CreatedAt:      now,
		RelatedEntryID: &transferID,
		Description:    fmt.Sprintf("transfer to %s: %s", req.RecipientID, req.Description),
	}
	in := models.LedgerEntry{
		ID:             uuid.NewString(),
		AccountID:      req.RecipientID,
		Kind:           models.KindTransferIn,
		Amount:         req.Amount,
		CreatedAt:      now,
		ExpiresAt:      &expires,
		RelatedEntryID: &transferID,
		Description:    fmt.Sprintf("transfer from %s: %s", req.SenderID, req.Description),
	}
	err = s.entries.Append(ctx, repo.AppendBatch{
		Entries: []models.LedgerEntry{out, in},
		BalanceDeltas: map[string]int64{
			req.SenderID:    -req.Amount,
			req.RecipientID: req.Amount,
		},
		IdempotencyKey: req.IdempotencyKey,
		IdempotencyRef: transferID,
	})
	if errors.Is(err, repo.ErrDuplicateKey) {
		if res, ok, rerr := s.replayedTransfer(ctx, req.IdempotencyKey); rerr == nil && ok {
			return res, nil
		}
	}
	if err != nil {
		metrics.OperationsFailed.WithLabelValues("transfer").Inc()
		return TransferResult{}, err
	}

	metrics.TransfersTotal.Inc()
	metrics.EntriesAppended.WithLabelValues(string(models.KindTransferOut)).Inc()
	metrics.EntriesAppended.WithLabelValues(string(models.KindTransferIn)).Inc()
	s.audit("transfer", transferID, "transfer", map[string]any{
		"sender":    req.SenderID,
		"recipient": req.RecipientID,
		"amount":    req.Amount,
	})
	return TransferResult{
		TransferID:  transferID,
		OutEntryID:  out.ID,
		InEntryID:   in.ID,
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Amount:      req.Amount,
		CreatedAt:   now,
	}, nil
}

// replayedTransfer rebuilds the original result from the entry pair so a
// retried request returns byte-identical output without a second ledger
// effect.
func (s *Service) replayedTransfer(ctx context.Context, key string) (TransferResult, bool, error) {
	if key == "" {
		return TransferResult{}, false, nil
	}
	ref, ok, err := s.idem.Get(ctx, key)
	if err != nil || !ok {
		return TransferResult{}, false, err
	}
	pair, err := s.entries.ListByRelated(ctx, ref)
	if err != nil {
		return TransferResult{}, false, err
	}
	res := TransferResult{TransferID: ref}
	for _, e := range pair {
		switch e.Kind {
		case models.KindTransferOut:
			res.OutEntryID = e.ID
			res.SenderID = e.AccountID
			res.Amount = e.Amount
			res.CreatedAt = e.CreatedAt
		case models.KindTransferIn:
			res.InEntryID = e.ID
			res.RecipientID = e.AccountID
		}
	}
	if res.OutEntryID == "" || res.InEntryID == "" {
		return TransferResult{}, false, fmt.Errorf("idempotency ref %s: incomplete transfer pair", ref)
	}
	return res, true, nil
}
