package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/creditmarket/ledger-backend/internal/models"
)

var replayBase = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func credit(id string, amount int64, at, expires time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		ID: id, AccountID: "a", Kind: models.KindPurchase,
		Amount: amount, CreatedAt: at, ExpiresAt: ptrTime(expires),
	}
}

func spend(amount int64, at time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		ID: "spend-" + at.String(), AccountID: "a", Kind: models.KindSpend,
		Amount: amount, CreatedAt: at,
	}
}

func TestReplayFIFOConsumption(t *testing.T) {
	day := 24 * time.Hour
	entries := []models.LedgerEntry{
		credit("c1", 100, replayBase, replayBase.Add(30*day)),
		credit("c2", 200, replayBase.Add(day), replayBase.Add(60*day)),
		spend(150, replayBase.Add(2*day)),
	}
	st := replay(entries)

	r1, _ := st.Remaining("c1")
	r2, _ := st.Remaining("c2")
	assert.Equal(t, int64(0), r1, "oldest batch drains first")
	assert.Equal(t, int64(150), r2)
	assert.Equal(t, int64(150), st.Spendable(replayBase.Add(2*day)))
	assert.Zero(t, st.shortfall)
}

func TestReplaySkipsBatchesExpiredAtDebitTime(t *testing.T) {
	day := 24 * time.Hour
	entries := []models.LedgerEntry{
		credit("old", 100, replayBase, replayBase.Add(5*day)),
		credit("fresh", 100, replayBase.Add(day), replayBase.Add(60*day)),
		// old has expired by the time this debit lands; it must consume fresh
		spend(80, replayBase.Add(10*day)),
	}
	st := replay(entries)

	rOld, _ := st.Remaining("old")
	rFresh, _ := st.Remaining("fresh")
	assert.Equal(t, int64(100), rOld, "expired credit is never consumed")
	assert.Equal(t, int64(20), rFresh)
}

func TestReplayExpiredExcludedFromSpendable(t *testing.T) {
	day := 24 * time.Hour
	entries := []models.LedgerEntry{
		credit("c1", 100, replayBase, replayBase.Add(5*day)),
		credit("c2", 50, replayBase, replayBase.Add(60*day)),
	}
	st := replay(entries)

	assert.Equal(t, int64(150), st.Spendable(replayBase.Add(day)))
	assert.Equal(t, int64(50), st.Spendable(replayBase.Add(10*day)))
	// Materialized keeps counting the expired remainder until a write-off
	assert.Equal(t, int64(150), st.Materialized())
}

func TestReplayExpiryBoundaryIsExclusive(t *testing.T) {
	exp := replayBase.Add(24 * time.Hour)
	st := replay([]models.LedgerEntry{credit("c1", 100, replayBase, exp)})

	// spendable up to but not at the expiry instant
	assert.Equal(t, int64(100), st.Spendable(exp.Add(-time.Second)))
	assert.Equal(t, int64(0), st.Spendable(exp))
}

func TestReplayWriteoffRetiresBatch(t *testing.T) {
	day := 24 * time.Hour
	origID := "c1"
	entries := []models.LedgerEntry{
		credit(origID, 100, replayBase, replayBase.Add(5*day)),
		{
			ID: "w1", AccountID: "a", Kind: models.KindExpiryWriteoff,
			Amount: 100, CreatedAt: replayBase.Add(6 * day), RelatedEntryID: &origID,
		},
	}
	st := replay(entries)

	assert.Equal(t, int64(0), st.Materialized())
	assert.Equal(t, int64(100), st.writtenOff)
	assert.Empty(t, st.DueForExpiry(replayBase.Add(7*day)), "written-off batch is not due again")
}

func TestReplayShortfallSignalsCorruption(t *testing.T) {
	st := replay([]models.LedgerEntry{
		credit("c1", 100, replayBase, replayBase.Add(24*time.Hour)),
		spend(150, replayBase.Add(time.Hour)),
	})
	assert.Equal(t, int64(50), st.shortfall)
}

func TestExpiringWithinWindow(t *testing.T) {
	day := 24 * time.Hour
	entries := []models.LedgerEntry{
		credit("soon", 100, replayBase, replayBase.Add(3*day)),
		credit("later", 200, replayBase, replayBase.Add(30*day)),
		credit("gone", 50, replayBase, replayBase.Add(-day)),
	}
	st := replay(entries)

	batches, total := st.ExpiringWithin(replayBase, 7)
	assert.Len(t, batches, 1)
	assert.Equal(t, "soon", batches[0].Entry.ID)
	assert.Equal(t, int64(100), total)
}
