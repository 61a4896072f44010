package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditmarket/ledger-backend/internal/models"
	repo "github.com/creditmarket/ledger-backend/internal/repository"
)

func TestCreditAndBalance(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	creditAccount(t, svc, a.ID, 1000, nil)
	creditAccount(t, svc, a.ID, 500, nil)

	bal, err := svc.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), bal)
	checkConservation(t, svc, store)
}

func TestCreditDefaultsExpiryToValidityHorizon(t *testing.T) {
	svc, store, clk := newTestService(t)
	a := newTestAccount(t, store, "alice")

	e := creditAccount(t, svc, a.ID, 1000, nil)
	require.NotNil(t, e.ExpiresAt)
	assert.Equal(t, clk.Now().Add(90*24*time.Hour), *e.ExpiresAt)
}

func TestCreditRejectsInternalKinds(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	for _, kind := range []models.EntryKind{
		models.KindSpend, models.KindTransferIn, models.KindExtensionCredit,
		models.KindExpiryWriteoff, models.KindDailyBonus, models.EntryKind("bogus"),
	} {
		_, err := svc.Credit(ctx, CreditRequest{AccountID: a.ID, Kind: kind, Amount: 100})
		assert.ErrorIs(t, err, ErrUnknownKind, "kind %s", kind)
	}
}

func TestDebitConsumesOldestFirst(t *testing.T) {
	svc, store, clk := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	first := creditAccount(t, svc, a.ID, 300, nil)
	clk.Advance(time.Hour)
	second := creditAccount(t, svc, a.ID, 300, nil)

	_, err := svc.Debit(ctx, DebitRequest{AccountID: a.ID, Amount: 400})
	require.NoError(t, err)

	entries, err := store.Entries().ListByAccount(ctx, a.ID)
	require.NoError(t, err)
	st := replay(entries)
	r1, _ := st.Remaining(first.ID)
	r2, _ := st.Remaining(second.ID)
	assert.Equal(t, int64(0), r1)
	assert.Equal(t, int64(200), r2)
	checkConservation(t, svc, store)
}

func TestDebitInsufficientBalance(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	creditAccount(t, svc, a.ID, 100, nil)
	_, err := svc.Debit(ctx, DebitRequest{AccountID: a.ID, Amount: 101})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	bal, err := svc.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal, "failed debit leaves no trace")
}

func TestDebitCannotSpendExpiredCredit(t *testing.T) {
	svc, store, clk := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	creditAccount(t, svc, a.ID, 100, ptrTime(clk.Now().Add(24*time.Hour)))
	clk.Advance(48 * time.Hour)

	bal, err := svc.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)

	_, err = svc.Debit(ctx, DebitRequest{AccountID: a.ID, Amount: 1})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCreditIdempotentReplay(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	req := CreditRequest{AccountID: a.ID, Kind: models.KindEarn, Amount: 250, IdempotencyKey: "sale-42"}
	first, err := svc.Credit(ctx, req)
	require.NoError(t, err)
	second, err := svc.Credit(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "replay returns the original entry")
	assert.Equal(t, first.Amount, second.Amount)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	bal, err := svc.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), bal, "credited exactly once")
}

func TestUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Balance(ctx, "nope")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	_, err = svc.Debit(ctx, DebitRequest{AccountID: "nope", Amount: 1})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestCorruptionFreezesAccount(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	creditAccount(t, svc, a.ID, 100, nil)

	// Sneak an entry past the service so cached_balance no longer matches
	// the log.
	err := store.Entries().Append(ctx, repo.AppendBatch{
		Entries: []models.LedgerEntry{{
			ID: "rogue", AccountID: a.ID, Kind: models.KindPurchase,
			Amount: 999, CreatedAt: time.Now(),
		}},
	})
	require.NoError(t, err)

	_, err = svc.Balance(ctx, a.ID)
	assert.ErrorIs(t, err, ErrLedgerCorrupt)

	got, err := store.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Frozen)

	// Frozen stays frozen; no operation recovers it automatically.
	_, err = svc.Debit(ctx, DebitRequest{AccountID: a.ID, Amount: 1})
	assert.Error(t, err)
	_, err = svc.Credit(ctx, CreditRequest{AccountID: a.ID, Kind: models.KindEarn, Amount: 10})
	assert.Error(t, err)
}

func TestUnfreezeRefusesWhileDriftRemains(t *testing.T) {
	svc, store, _ := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	err := store.Entries().Append(ctx, repo.AppendBatch{
		Entries: []models.LedgerEntry{{
			ID: "rogue", AccountID: a.ID, Kind: models.KindPurchase,
			Amount: 999, CreatedAt: time.Now(),
		}},
	})
	require.NoError(t, err)
	_, err = svc.Balance(ctx, a.ID)
	require.ErrorIs(t, err, ErrLedgerCorrupt)

	assert.ErrorIs(t, svc.Unfreeze(ctx, a.ID), ErrLedgerCorrupt)

	// Repair the cache, then unfreeze succeeds.
	err = store.Entries().Append(ctx, repo.AppendBatch{BalanceDeltas: map[string]int64{a.ID: 999}})
	require.NoError(t, err)
	require.NoError(t, svc.Unfreeze(ctx, a.ID))

	bal, err := svc.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(999), bal)
}

func TestHistoryNewestFirst(t *testing.T) {
	svc, store, clk := newTestService(t)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		creditAccount(t, svc, a.ID, int64(100*(i+1)), nil)
		clk.Advance(time.Minute)
	}
	page, err := svc.History(ctx, a.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(300), page[0].Amount)
	assert.Equal(t, int64(200), page[1].Amount)

	rest, err := svc.History(ctx, a.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(100), rest[0].Amount)
}
