package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/creditmarket/ledger-backend/internal/metrics"
	"github.com/creditmarket/ledger-backend/internal/models"
	repo "github.com/creditmarket/ledger-backend/internal/repository"
	"github.com/google/uuid"
)

// sweepBatchSize bounds how many accounts one pass touches, so a pass never
// turns into a long scan holding attention away from user traffic.
const sweepBatchSize = 200

// Sweeper is the background pass that materializes expired, unconsumed
// credit as expiry_writeoff entries and prunes stale idempotency keys. Each
// account is processed under its own short-lived lock; the sweep never
// holds a lock across accounts.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(svc *Service, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{svc: svc, interval: interval, log: log}
}

// Run loops until the context is cancelled. Every iteration is a complete
// atomic unit per account, so cancellation mid-pass leaves no partial state.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.SweepOnce(ctx); err != nil {
				w.log.Error("expiry sweep", "err", err)
			}
		}
	}
}

// SweepOnce performs one full pass: write off expired remainders, then
// prune idempotency keys past their TTL.
func (w *Sweeper) SweepOnce(ctx context.Context) error {
	s := w.svc
	now := s.now()
	accountIDs, err := s.entries.AccountsWithExpired(ctx, now, sweepBatchSize)
	if err != nil {
		return err
	}
	for _, accountID := range accountIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.sweepAccount(ctx, accountID, now); err != nil {
			w.log.Error("sweep account", "account", accountID, "err", err)
		}
	}

	ttl := time.Duration(s.settings.Int64(ctx, SettingIdempotencyTTLHours)) * time.Hour
	pruned, err := s.idem.DeleteExpired(ctx, now.Add(-ttl))
	if err != nil {
		return err
	}
	if pruned > 0 {
		w.log.Debug("pruned idempotency keys", "count", pruned)
	}
	return nil
}

func (w *Sweeper) sweepAccount(ctx context.Context, accountID string, now time.Time) error {
	s := w.svc
	unlock := s.locks.Lock(accountID)
	defer unlock()

	// Frozen or corrupt accounts are skipped; a write-off is a mutation.
	_, st, err := s.loadState(ctx, accountID)
	if err != nil {
		return err
	}
	due := st.DueForExpiry(now)
	if len(due) == 0 {
		return nil
	}

	var entries []models.LedgerEntry
	var total int64
	for _, d := range due {
		origID := d.Entry.ID
		entries = append(entries, models.LedgerEntry{
			ID:             uuid.NewString(),
			AccountID:      accountID,
			Kind:           models.KindExpiryWriteoff,
			Amount:         d.Remaining,
			CreatedAt:      now,
			RelatedEntryID: &origID,
			Description:    "expired credit write-off",
		})
		total += d.Remaining
	}
	err = s.entries.Append(ctx, repo.AppendBatch{
		Entries:       entries,
		BalanceDeltas: map[string]int64{accountID: -total},
	})
	if err != nil {
		return err
	}
	metrics.SweepWriteoffs.Add(float64(len(entries)))
	s.audit("account", accountID, "expiry_sweep", map[string]any{"entries": len(entries), "amount": total})
	w.log.Info("swept expired credit", "account", accountID, "entries", len(entries), "amount", total)
	return nil
}
