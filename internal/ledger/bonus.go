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

type ClaimResult struct {
	EntryID   string    `json:"entry_id"`
	Amount    int64     `json:"amount"`
	Date      time.Time `json:"date"` // midnight of the claim day, account tz
	ExpiresAt time.Time `json:"expires_at"`
}

// ClaimDailyBonus grants the recurring bonus at most once per calendar day
// in the account's timezone. Eligibility compares calendar dates, not
// elapsed hours: a claim at 23:59 does not block one at 00:01 the next day,
// and two claims inside the same day never both succeed.
func (s *Service) ClaimDailyBonus(ctx context.Context, accountID string) (ClaimResult, error) {
	if !s.settings.Bool(ctx, SettingDailyBonusEnabled) {
		return ClaimResult{}, ErrBonusDisabled
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	a, _, err := s.loadForMutation(ctx, accountID)
	if err != nil {
		return ClaimResult{}, err
	}

	now := s.now()
	loc := a.Location()
	today := midnightIn(now, loc)
	if a.LastBonusDate != nil && !midnightIn(*a.LastBonusDate, loc).Before(today) {
		return ClaimResult{}, ErrAlreadyClaimedToday
	}

	amount := s.settings.Int64(ctx, SettingDailyBonusAmount)
	validity := time.Duration(s.settings.Int64(ctx, SettingDailyBonusValidityHours)) * time.Hour
	expires := now.Add(validity)

	entry := models.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Kind:        models.KindDailyBonus,
		Amount:      amount,
		CreatedAt:   now,
		ExpiresAt:   &expires,
		Description: "daily bonus",
	}
	err = s.entries.Append(ctx, repo.AppendBatch{
		Entries:        []models.LedgerEntry{entry},
		BalanceDeltas:  map[string]int64{accountID: amount},
		BonusAccountID: accountID,
		BonusDate:      today,
	})
	// A non-advancing last_bonus_date means a concurrent claim (another
	// process) won the day.
	if errors.Is(err, repo.ErrDuplicateKey) {
		return ClaimResult{}, ErrAlreadyClaimedToday
	}
	if err != nil {
		metrics.OperationsFailed.WithLabelValues("bonus").Inc()
		return ClaimResult{}, err
	}

	metrics.EntriesAppended.WithLabelValues(string(models.KindDailyBonus)).Inc()
	s.audit("entry", entry.ID, "daily_bonus", map[string]any{"amount": amount, "date": today})
	return ClaimResult{
		EntryID:   entry.ID,
		Amount:    amount,
		Date:      today,
		ExpiresAt: expires,
	}, nil
}

// midnightIn truncates t to the start of its calendar day in loc.
func midnightIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
