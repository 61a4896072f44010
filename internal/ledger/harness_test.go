package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/creditmarket/ledger-backend/internal/models"
	"github.com/creditmarket/ledger-backend/internal/repository/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// newTestService wires a Service onto the in-memory store with a controlled
// clock. The settings view shares the clock so its cache expires when tests
// advance time.
func newTestService(t *testing.T) (*Service, *memory.Store, *testClock) {
	t.Helper()
	store := memory.NewStore()
	clk := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store.Now = clk.Now
	svc := New(store.Accounts(), store.Entries(), store.Idempotency(), store.AuditLogs(), store.Settings(), nil)
	svc.now = clk.Now
	svc.settings.now = clk.Now
	return svc, store, clk
}

func newTestAccount(t *testing.T, store *memory.Store, username string) models.Account {
	t.Helper()
	a, err := store.Accounts().Create(context.Background(), username, username+"@example.com", "x", "user", "UTC")
	require.NoError(t, err)
	return a
}

func creditAccount(t *testing.T, svc *Service, accountID string, amount int64, expiresAt *time.Time) models.LedgerEntry {
	t.Helper()
	e, err := svc.Credit(context.Background(), CreditRequest{
		AccountID: accountID,
		Kind:      models.KindPurchase,
		Amount:    amount,
		ExpiresAt: expiresAt,
	})
	require.NoError(t, err)
	return e
}

// checkConservation verifies that nothing appears or disappears: external
// credit in, minus spend out, equals live balances plus fees collected plus
// expired write-offs. Transfers and extensions shuffle value without
// changing the total.
func checkConservation(t *testing.T, svc *Service, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	ids, err := store.Accounts().ListIDs(ctx)
	require.NoError(t, err)

	var balances, fees, writeoffs, creditsIn, spendOut int64
	for _, id := range ids {
		entries, err := store.Entries().ListByAccount(ctx, id)
		require.NoError(t, err)
		st := replay(entries)
		balances += st.Materialized()
		fees += st.fees
		writeoffs += st.writtenOff
		for _, e := range entries {
			switch e.Kind {
			case models.KindPurchase, models.KindEarn, models.KindReferral, models.KindDailyBonus:
				creditsIn += e.Amount
			case models.KindSpend:
				spendOut += e.Amount
			}
		}

		a, err := store.Accounts().GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, st.Materialized(), a.CachedBalance, "cached balance drift for %s", id)
	}
	require.Equal(t, creditsIn-spendOut, balances+fees+writeoffs,
		"conservation: in=%d out=%d balances=%d fees=%d writeoffs=%d",
		creditsIn, spendOut, balances, fees, writeoffs)
}

func ptrTime(t time.Time) *time.Time { return &t }
