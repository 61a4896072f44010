package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creditmarket/ledger-backend/internal/metrics"
	"github.com/creditmarket/ledger-backend/internal/models"
	repo "github.com/creditmarket/ledger-backend/internal/repository"
	"github.com/creditmarket/ledger-backend/internal/worker"
	"github.com/google/uuid"
)

// Service is the ledger facade: the single entry point for every credit,
// debit, transfer, extension, bonus claim and balance query. All mutation
// passes through here, under the owning account's lock, and lands in the
// store as one atomic batch.
type Service struct {
	accounts repo.Accounts
	entries  repo.Entries
	idem     repo.Idempotency
	audits   repo.AuditLogs
	settings *SettingsView
	wp       *worker.Pool

	locks  *accountLocks
	window *slidingWindow
	now    func() time.Time
}

func New(accounts repo.Accounts, entries repo.Entries, idem repo.Idempotency, audits repo.AuditLogs, settings repo.Settings, wp *worker.Pool) *Service {
	return &Service{
		accounts: accounts,
		entries:  entries,
		idem:     idem,
		audits:   audits,
		settings: NewSettingsView(settings),
		wp:       wp,
		locks:    newAccountLocks(),
		window:   newSlidingWindow(),
		now:      time.Now,
	}
}

// Settings exposes the hot-reload view for the admin API.
func (s *Service) Settings() *SettingsView { return s.settings }

// externalCreditKinds are the kinds collaborators may deposit through
// Credit. Everything else is minted internally.
var externalCreditKinds = map[models.EntryKind]bool{
	models.KindPurchase: true,
	models.KindEarn:     true,
	models.KindReferral: true,
}

type CreditRequest struct {
	AccountID      string
	Kind           models.EntryKind
	Amount         int64
	ExpiresAt      *time.Time // nil: default validity horizon applies
	IdempotencyKey string
	Description    string
}

// Credit appends a credit entry for an external event (purchase webhook,
// sale, referral). Safe to retry with the same idempotency key.
func (s *Service) Credit(ctx context.Context, req CreditRequest) (models.LedgerEntry, error) {
	if !externalCreditKinds[req.Kind] {
		return models.LedgerEntry{}, ErrUnknownKind
	}
	if req.Amount <= 0 {
		return models.LedgerEntry{}, ErrAmountOutOfRange
	}

	unlock := s.locks.Lock(req.AccountID)
	defer unlock()

	if e, ok, err := s.replayedEntry(ctx, req.IdempotencyKey); err != nil || ok {
		return e, err
	}
	if _, _, err := s.loadForMutation(ctx, req.AccountID); err != nil {
		return models.LedgerEntry{}, err
	}

	now := s.now()
	expires := req.ExpiresAt
	if expires == nil {
		days := s.settings.Int64(ctx, SettingDefaultValidityDays)
		t := now.Add(time.Duration(days) * 24 * time.Hour)
		expires = &t
	}
	entry := models.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   req.AccountID,
		Kind:        req.Kind,
		Amount:      req.Amount,
		CreatedAt:   now,
		ExpiresAt:   expires,
		Description: req.Description,
	}
	err := s.entries.Append(ctx, repo.AppendBatch{
		Entries:        []models.LedgerEntry{entry},
		BalanceDeltas:  map[string]int64{req.AccountID: req.Amount},
		IdempotencyKey: req.IdempotencyKey,
		IdempotencyRef: entry.ID,
	})
	if errors.Is(err, repo.ErrDuplicateKey) {
		if e, ok, rerr := s.replayedEntry(ctx, req.IdempotencyKey); rerr == nil && ok {
			return e, nil
		}
	}
	if err != nil {
		metrics.OperationsFailed.WithLabelValues("credit").Inc()
		return models.LedgerEntry{}, err
	}
	metrics.EntriesAppended.WithLabelValues(string(req.Kind)).Inc()
	s.audit("entry", entry.ID, "credit", map[string]any{"kind": req.Kind, "amount": req.Amount})
	return entry, nil
}

type DebitRequest struct {
	AccountID      string
	Amount         int64
	Description    string
	IdempotencyKey string
}

// Debit spends from the account's oldest unexpired credit first. Fails with
// ErrInsufficientBalance when the spendable balance (expired credit
// excluded) cannot cover the amount.
func (s *Service) Debit(ctx context.Context, req DebitRequest) (models.LedgerEntry, error) {
	if req.Amount <= 0 {
		return models.LedgerEntry{}, ErrAmountOutOfRange
	}

	unlock := s.locks.Lock(req.AccountID)
	defer unlock()

	if e, ok, err := s.replayedEntry(ctx, req.IdempotencyKey); err != nil || ok {
		return e, err
	}
	_, st, err := s.loadForMutation(ctx, req.AccountID)
	if err != nil {
		return models.LedgerEntry{}, err
	}

	now := s.now()
	if st.Spendable(now) < req.Amount {
		return models.LedgerEntry{}, ErrInsufficientBalance
	}
	entry := models.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   req.AccountID,
		Kind:        models.KindSpend,
		Amount:      req.Amount,
		CreatedAt:   now,
		Description: req.Description,
	}
	err = s.entries.Append(ctx, repo.AppendBatch{
		Entries:        []models.LedgerEntry{entry},
		BalanceDeltas:  map[string]int64{req.AccountID: -req.Amount},
		IdempotencyKey: req.IdempotencyKey,
		IdempotencyRef: entry.ID,
	})
	if errors.Is(err, repo.ErrDuplicateKey) {
		if e, ok, rerr := s.replayedEntry(ctx, req.IdempotencyKey); rerr == nil && ok {
			return e, nil
		}
	}
	if err != nil {
		metrics.OperationsFailed.WithLabelValues("debit").Inc()
		return models.LedgerEntry{}, err
	}
	metrics.EntriesAppended.WithLabelValues(string(models.KindSpend)).Inc()
	s.audit("entry", entry.ID, "debit", map[string]any{"amount": req.Amount})
	return entry, nil
}

// Balance returns the spendable balance: unconsumed credit that has not
// expired as of now.
func (s *Service) Balance(ctx context.Context, accountID string) (int64, error) {
	_, st, err := s.loadState(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return st.Spendable(s.now()), nil
}

// ExpiringSoon lists unconsumed credit batches expiring within the given
// number of days, plus their total.
func (s *Service) ExpiringSoon(ctx context.Context, accountID string, days int) ([]ExpiringBatch, int64, error) {
	if days <= 0 {
		return nil, 0, ErrAmountOutOfRange
	}
	_, st, err := s.loadState(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	batches, total := st.ExpiringWithin(s.now(), days)
	return batches, total, nil
}

// History returns a newest-first page of the account's entry log.
func (s *Service) History(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		return nil, s.accountErr(err)
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.entries.ListPage(ctx, accountID, limit, offset)
}

// Reconcile recomputes the account's balance from the log and reports the
// drift against cached_balance. Zero drift is the only healthy state.
func (s *Service) Reconcile(ctx context.Context, accountID string) (cached, recomputed int64, err error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, 0, s.accountErr(err)
	}
	entries, err := s.entries.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, 0, err
	}
	st := replay(entries)
	return a.CachedBalance, st.Materialized(), nil
}

// Unfreeze lifts the corruption freeze after manual reconciliation. It
// refuses if the drift is still present.
func (s *Service) Unfreeze(ctx context.Context, accountID string) error {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	cached, recomputed, err := s.Reconcile(ctx, accountID)
	if err != nil {
		return err
	}
	if cached != recomputed {
		return fmt.Errorf("%w: cached=%d recomputed=%d", ErrLedgerCorrupt, cached, recomputed)
	}
	if err := s.accounts.SetFrozen(ctx, accountID, false); err != nil {
		return s.accountErr(err)
	}
	s.audit("account", accountID, "unfreeze", nil)
	return nil
}

// ---- internal helpers ----

// loadState fetches the account and replays its log, freezing the account
// when the cached balance disagrees with the recomputation. Corruption is
// never recovered automatically.
func (s *Service) loadState(ctx context.Context, accountID string) (models.Account, *ledgerState, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return models.Account{}, nil, s.accountErr(err)
	}
	entries, err := s.entries.ListByAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, nil, err
	}
	st := replay(entries)
	if st.Materialized() != a.CachedBalance || st.shortfall != 0 {
		if !a.Frozen {
			_ = s.accounts.SetFrozen(ctx, accountID, true)
			s.audit("account", accountID, "freeze", map[string]any{
				"cached":     a.CachedBalance,
				"recomputed": st.Materialized(),
				"shortfall":  st.shortfall,
			})
		}
		metrics.OperationsFailed.WithLabelValues("reconcile").Inc()
		return models.Account{}, nil, ErrLedgerCorrupt
	}
	return a, st, nil
}

// loadForMutation additionally refuses frozen accounts.
func (s *Service) loadForMutation(ctx context.Context, accountID string) (models.Account, *ledgerState, error) {
	a, st, err := s.loadState(ctx, accountID)
	if err != nil {
		return a, st, err
	}
	if a.Frozen {
		return models.Account{}, nil, ErrAccountFrozen
	}
	return a, st, nil
}

// replayedEntry answers a retried credit/debit from its idempotency record.
func (s *Service) replayedEntry(ctx context.Context, key string) (models.LedgerEntry, bool, error) {
	if key == "" {
		return models.LedgerEntry{}, false, nil
	}
	ref, ok, err := s.idem.Get(ctx, key)
	if err != nil || !ok {
		return models.LedgerEntry{}, false, err
	}
	e, err := s.entries.GetByID(ctx, ref)
	if err != nil {
		return models.LedgerEntry{}, false, err
	}
	return e, true, nil
}

func (s *Service) accountErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrAccountNotFound
	}
	return err
}

func (s *Service) audit(entityType, entityID, action string, details map[string]any) {
	id := entityID
	l := models.AuditLog{
		EntityType: entityType,
		EntityID:   &id,
		Action:     action,
		Details:    details,
	}
	if s.wp != nil {
		s.wp.Submit(func() { _ = s.audits.Create(context.Background(), l) })
		return
	}
	_ = s.audits.Create(context.Background(), l)
}
