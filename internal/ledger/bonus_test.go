package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimDailyBonusOncePerDay(t *testing.T) {
	svc, store, clk := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	res, err := svc.ClaimDailyBonus(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Amount)

	_, err = svc.ClaimDailyBonus(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimedToday)

	// hours elapsed are irrelevant; only the calendar date matters
	clk.Advance(11 * time.Hour)
	_, err = svc.ClaimDailyBonus(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimedToday)

	// one hour past midnight is a new day
	clk.Advance(2 * time.Hour)
	_, err = svc.ClaimDailyBonus(ctx, a.ID)
	assert.NoError(t, err)
	checkConservation(t, svc, store)
}

func TestClaimDailyBonusConsecutiveDays(t *testing.T) {
	svc, store, clk := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	for day := 0; day < 5; day++ {
		_, err := svc.ClaimDailyBonus(ctx, a.ID)
		require.NoError(t, err, "day %d", day)
		clk.Advance(24 * time.Hour)
	}
	bal, err := svc.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), bal)
}

func TestClaimDailyBonusMidnightBoundary(t *testing.T) {
	svc, store, clk := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	// 23:59 and 00:01 are different calendar days
	clk.Set(time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC))
	_, err := svc.ClaimDailyBonus(ctx, a.ID)
	require.NoError(t, err)

	clk.Set(time.Date(2025, 6, 2, 0, 1, 0, 0, time.UTC))
	_, err = svc.ClaimDailyBonus(ctx, a.ID)
	assert.NoError(t, err)
}

func TestClaimDailyBonusUsesAccountTimezone(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()
	a, err := store.Accounts().Create(ctx, "kenji", "kenji@example.com", "x", "user", "Asia/Tokyo")
	require.NoError(t, err)

	// 16:00 UTC June 1 is 01:00 June 2 in Tokyo
	clk.Set(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	_, err = svc.ClaimDailyBonus(ctx, a.ID)
	require.NoError(t, err)

	clk.Set(time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC))
	_, err = svc.ClaimDailyBonus(ctx, a.ID)
	assert.NoError(t, err, "new Tokyo day even though UTC date is unchanged")

	clk.Set(time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC))
	_, err = svc.ClaimDailyBonus(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyClaimedToday)
}

func TestClaimDailyBonusExpires(t *testing.T) {
	svc, store, clk := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	res, err := svc.ClaimDailyBonus(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(24*time.Hour), res.ExpiresAt)

	clk.Advance(25 * time.Hour)
	bal, err := svc.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal, "unspent bonus has expired")
}

func TestClaimDailyBonusDisabled(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	require.NoError(t, store.Settings().Set(ctx, SettingDailyBonusEnabled, "false"))
	_, err := svc.ClaimDailyBonus(ctx, a.ID)
	assert.ErrorIs(t, err, ErrBonusDisabled)
}

func TestClaimDailyBonusConcurrentClaimsGrantOne(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ClaimDailyBonus(ctx, a.ID)
		}(i)
	}
	wg.Wait()

	var granted int
	for _, err := range errs {
		if err == nil {
			granted++
		} else {
			assert.ErrorIs(t, err, ErrAlreadyClaimedToday)
		}
	}
	assert.Equal(t, 1, granted)

	bal, err := svc.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal)
}
