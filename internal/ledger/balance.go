package ledger

import (
	"time"

	"github.com/creditmarket/ledger-backend/internal/models"
)

// ExpiringBatch pairs a credit entry with its unconsumed remainder.
type ExpiringBatch struct {
	Entry     models.LedgerEntry `json:"entry"`
	Remaining int64              `json:"remaining"`
}

// ledgerState is the result of replaying an account's entry log: one batch
// per credit entry with the remainder left after FIFO consumption, plus the
// running aggregates the conservation invariant needs.
type ledgerState struct {
	batches    []*creditBatch
	index      map[string]*creditBatch
	fees       int64 // extension fees collected
	writtenOff int64 // materialized expiry write-offs
	shortfall  int64 // debit volume that found nothing to consume; must be zero
}

type creditBatch struct {
	entry     models.LedgerEntry
	remaining int64
}

// replay walks the log oldest-first. Credits open batches; spend and
// transfer_out debits consume batches oldest-first, skipping any batch
// already expired at the debit's own timestamp. Extension and write-off
// entries settle against the specific batch named by RelatedEntryID:
// an extension_credit replaces its original's remainder (the fee having
// been carved out of it), and an expiry_writeoff zeroes what expired.
func replay(entries []models.LedgerEntry) *ledgerState {
	st := &ledgerState{index: make(map[string]*creditBatch)}
	for _, e := range entries {
		switch {
		case e.Kind.IsCredit():
			if e.Kind == models.KindExtensionCredit && e.RelatedEntryID != nil {
				if orig, ok := st.index[*e.RelatedEntryID]; ok {
					orig.remaining = 0
				}
			}
			b := &creditBatch{entry: e, remaining: e.Amount}
			st.batches = append(st.batches, b)
			st.index[e.ID] = b

		case e.Kind == models.KindExtensionFee:
			st.fees += e.Amount

		case e.Kind == models.KindExpiryWriteoff:
			st.writtenOff += e.Amount
			if e.RelatedEntryID != nil {
				if orig, ok := st.index[*e.RelatedEntryID]; ok {
					orig.remaining = 0
				}
			}

		case e.Kind.IsDebit():
			st.consume(e.Amount, e.CreatedAt)
		}
	}
	return st
}

func (st *ledgerState) consume(amount int64, at time.Time) {
	for _, b := range st.batches {
		if amount == 0 {
			return
		}
		if b.remaining <= 0 || b.entry.Expired(at) {
			continue
		}
		take := b.remaining
		if take > amount {
			take = amount
		}
		b.remaining -= take
		amount -= take
	}
	st.shortfall += amount
}

// Spendable is the balance available right now: remainders of batches that
// have not expired as of t.
func (st *ledgerState) Spendable(t time.Time) int64 {
	var total int64
	for _, b := range st.batches {
		if b.remaining > 0 && !b.entry.Expired(t) {
			total += b.remaining
		}
	}
	return total
}

// Materialized is the sum of all remainders regardless of expiry. It is the
// quantity cached_balance tracks: expired-but-unswept credit still counts
// until the sweep writes it off.
func (st *ledgerState) Materialized() int64 {
	var total int64
	for _, b := range st.batches {
		total += b.remaining
	}
	return total
}

// ExpiringWithin returns unconsumed batches whose expiry falls inside
// (t, t+days*24h], oldest expiry first.
func (st *ledgerState) ExpiringWithin(t time.Time, days int) ([]ExpiringBatch, int64) {
	horizon := t.Add(time.Duration(days) * 24 * time.Hour)
	var out []ExpiringBatch
	var total int64
	for _, b := range st.batches {
		if b.remaining <= 0 || b.entry.Extended || b.entry.ExpiresAt == nil {
			continue
		}
		if b.entry.ExpiresAt.After(t) && !b.entry.ExpiresAt.After(horizon) {
			out = append(out, ExpiringBatch{Entry: b.entry, Remaining: b.remaining})
			total += b.remaining
		}
	}
	return out, total
}

// DueForExpiry returns batches whose expiry has passed with credit still
// unconsumed and not yet written off. These are the sweep's targets.
func (st *ledgerState) DueForExpiry(t time.Time) []ExpiringBatch {
	var out []ExpiringBatch
	for _, b := range st.batches {
		if b.remaining > 0 && !b.entry.Extended && b.entry.Expired(t) {
			out = append(out, ExpiringBatch{Entry: b.entry, Remaining: b.remaining})
		}
	}
	return out
}

// Remaining reports the unconsumed remainder of one credit entry.
func (st *ledgerState) Remaining(entryID string) (int64, bool) {
	b, ok := st.index[entryID]
	if !ok {
		return 0, false
	}
	return b.remaining, true
}
