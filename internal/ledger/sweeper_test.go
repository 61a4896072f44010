package ledger

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditmarket/ledger-backend/internal/models"
)

func newTestSweeper(svc *Service) *Sweeper {
	return NewSweeper(svc, time.Hour, slog.Default())
}

func TestSweepMaterializesExpiredCredit(t *testing.T) {
	svc, store, clk := newTestService(t)
	sw := newTestSweeper(svc)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	expiring := creditAccount(t, svc, a.ID, 300, ptrTime(clk.Now().Add(24*time.Hour)))
	creditAccount(t, svc, a.ID, 700, ptrTime(clk.Now().Add(60*24*time.Hour)))

	clk.Advance(48 * time.Hour)
	require.NoError(t, sw.SweepOnce(ctx))

	// the expired remainder became a write-off entry and left cached_balance
	entries, err := store.Entries().ListByRelated(ctx, expiring.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.KindExpiryWriteoff, entries[0].Kind)
	assert.Equal(t, int64(300), entries[0].Amount)

	got, err := store.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), got.CachedBalance)

	bal, err := svc.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), bal)
	checkConservation(t, svc, store)
}

func TestSweepWritesOffOnlyTheRemainder(t *testing.T) {
	svc, store, clk := newTestService(t)
	sw := newTestSweeper(svc)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	expiring := creditAccount(t, svc, a.ID, 300, ptrTime(clk.Now().Add(24*time.Hour)))
	_, err := svc.Debit(ctx, DebitRequest{AccountID: a.ID, Amount: 120})
	require.NoError(t, err)

	clk.Advance(48 * time.Hour)
	require.NoError(t, sw.SweepOnce(ctx))

	entries, err := store.Entries().ListByRelated(ctx, expiring.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(180), entries[0].Amount, "spent credit is not written off")
	checkConservation(t, svc, store)
}

func TestSweepIsIdempotent(t *testing.T) {
	svc, store, clk := newTestService(t)
	sw := newTestSweeper(svc)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	expiring := creditAccount(t, svc, a.ID, 300, ptrTime(clk.Now().Add(24*time.Hour)))
	clk.Advance(48 * time.Hour)

	require.NoError(t, sw.SweepOnce(ctx))
	require.NoError(t, sw.SweepOnce(ctx))

	entries, err := store.Entries().ListByRelated(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "a batch is written off at most once")

	got, err := store.Accounts().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.CachedBalance)
}

func TestSweepSkipsExtendedBatches(t *testing.T) {
	svc, store, clk := newTestService(t)
	sw := newTestSweeper(svc)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	orig := creditAccount(t, svc, a.ID, 500, ptrTime(clk.Now().Add(24*time.Hour)))
	_, err := svc.Extend(ctx, a.ID, orig.ID)
	require.NoError(t, err)

	// past the original expiry; the rescued credit must survive the sweep
	clk.Advance(48 * time.Hour)
	require.NoError(t, sw.SweepOnce(ctx))

	bal, err := svc.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), bal)
	checkConservation(t, svc, store)
}

func TestSweepPrunesStaleIdempotencyKeys(t *testing.T) {
	svc, store, clk := newTestService(t)
	sw := newTestSweeper(svc)
	a := newTestAccount(t, store, "alice")
	ctx := context.Background()

	_, err := svc.Credit(ctx, CreditRequest{
		AccountID: a.ID, Kind: models.KindPurchase, Amount: 100, IdempotencyKey: "old-key",
	})
	require.NoError(t, err)

	// within the TTL the key still answers replays
	require.NoError(t, sw.SweepOnce(ctx))
	_, ok, err := store.Idempotency().Get(ctx, "old-key")
	require.NoError(t, err)
	assert.True(t, ok)

	clk.Advance(49 * time.Hour)
	require.NoError(t, sw.SweepOnce(ctx))
	_, ok, err = store.Idempotency().Get(ctx, "old-key")
	require.NoError(t, err)
	assert.False(t, ok, "pruned past the 48h TTL")
}

func TestSweepRunStopsOnContextCancel(t *testing.T) {
	svc, _, _ := newTestService(t)
	sw := NewSweeper(svc, time.Millisecond, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
