package models

import "time"

// EntryKind is the closed set of ledger entry kinds. Unknown kinds are
// rejected at the boundary; there are no free-form transaction shapes.
type EntryKind string

const (
	KindPurchase        EntryKind = "purchase"
	KindEarn            EntryKind = "earn"
	KindReferral        EntryKind = "referral"
	KindDailyBonus      EntryKind = "daily_bonus"
	KindSpend           EntryKind = "spend"
	KindTransferIn      EntryKind = "transfer_in"
	KindTransferOut     EntryKind = "transfer_out"
	KindExtensionFee    EntryKind = "extension_fee"
	KindExtensionCredit EntryKind = "extension_credit"
	KindExpiryWriteoff  EntryKind = "expiry_writeoff"
)

// IsCredit reports whether the kind adds spendable value.
func (k EntryKind) IsCredit() bool {
	switch k {
	case KindPurchase, KindEarn, KindReferral, KindDailyBonus, KindTransferIn, KindExtensionCredit:
		return true
	}
	return false
}

// IsDebit reports whether the kind consumes value.
func (k EntryKind) IsDebit() bool {
	switch k {
	case KindSpend, KindTransferOut, KindExtensionFee, KindExpiryWriteoff:
		return true
	}
	return false
}

// Targeted debits settle against one specific credit batch (named by
// RelatedEntryID) instead of consuming oldest-first.
func (k EntryKind) IsTargetedDebit() bool {
	return k == KindExtensionFee || k == KindExpiryWriteoff
}

// Valid reports whether k belongs to the closed kind set.
func (k EntryKind) Valid() bool { return k.IsCredit() || k.IsDebit() }

// LedgerEntry is the append-only unit of the credit ledger. Entries are never
// mutated or deleted; the only post-write change permitted is the one-shot
// Extended flag flip on a credit entry.
type LedgerEntry struct {
	ID             string     `json:"id"`
	Seq            int64      `json:"-"` // store-assigned, total order within the log
	AccountID      string     `json:"account_id"`
	Kind           EntryKind  `json:"kind"`
	Amount         int64      `json:"amount"` // minor units, always positive
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"` // credit kinds only
	Extended       bool       `json:"extended"`
	RelatedEntryID *string    `json:"related_entry_id,omitempty"`
	Description    string     `json:"description,omitempty"`
}

// Expired reports whether the entry's expiry has passed at t. Entries
// without an expiry never expire.
func (e *LedgerEntry) Expired(t time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(t)
}
