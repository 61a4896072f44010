package repository

import (
	"context"
	"errors"
	"time"

	"github.com/creditmarket/ledger-backend/internal/models"
)

// Storage-level sentinel errors. Services translate these into their own
// named error kinds instead of leaking driver detail.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry id")
	ErrDuplicateKey   = errors.New("idempotency key already used")
	ErrNoAccount      = errors.New("account does not exist")
)

// AppendBatch is the atomic unit of ledger mutation: one or more entries plus
// the projection updates that must land with them. All-or-nothing; a partial
// write is never observable.
type AppendBatch struct {
	Entries []models.LedgerEntry

	// MarkExtendedID flips Extended on an existing credit entry. The flip is
	// permitted exactly once; a second flip aborts the batch.
	MarkExtendedID string

	// BalanceDeltas adjusts cached_balance per account in the same unit.
	BalanceDeltas map[string]int64

	// BonusAccountID/BonusDate advance last_bonus_date for a bonus grant.
	BonusAccountID string
	BonusDate      time.Time

	// IdempotencyKey, when set, is recorded with IdempotencyRef so replays of
	// the same request can be answered without re-applying the batch.
	IdempotencyKey string
	IdempotencyRef string
}

type Accounts interface {
	Create(ctx context.Context, username, email, passwordHash, role, timezone string) (models.Account, error)
	GetByID(ctx context.Context, id string) (models.Account, error)
	GetByEmail(ctx context.Context, email string) (models.Account, error)
	ListIDs(ctx context.Context) ([]string, error)
	Deactivate(ctx context.Context, id string) error
	SetFrozen(ctx context.Context, id string, frozen bool) error
}

type Entries interface {
	// Append writes the batch as a single atomic unit.
	Append(ctx context.Context, batch AppendBatch) error

	// ListByAccount returns the account's full log ordered by append sequence
	// ascending (oldest first).
	ListByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error)

	// ListPage returns a newest-first page for history views.
	ListPage(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error)

	GetByID(ctx context.Context, id string) (models.LedgerEntry, error)

	// ListByRelated returns all entries sharing a related entry id (a
	// transfer pair, or an extension fee/credit pair).
	ListByRelated(ctx context.Context, relatedID string) ([]models.LedgerEntry, error)

	// AccountsWithExpired returns ids of accounts holding non-extended credit
	// entries whose expiry has passed. Candidates only; the sweep re-derives
	// the unconsumed remainder per account under its lock.
	AccountsWithExpired(ctx context.Context, before time.Time, limit int) ([]string, error)
}

type Idempotency interface {
	// Get returns the stored ref for a key, if the key has been seen.
	Get(ctx context.Context, key string) (string, bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Settings interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}
