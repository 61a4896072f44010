// Package memory holds an in-process implementation of the repository
// interfaces. It backs the service tests and mirrors the transactional
// guarantees of the postgres store: Append is all-or-nothing and validates
// the same constraints (duplicate ids, missing accounts, reused idempotency
// keys) before anything becomes visible.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/creditmarket/ledger-backend/internal/models"
	repo "github.com/creditmarket/ledger-backend/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	// Now stamps created/updated times; tests swap it for a fake clock.
	Now func() time.Time

	mu       sync.RWMutex
	accounts map[string]models.Account
	entries  []models.LedgerEntry
	byID     map[string]int // entry id -> index into entries
	idem     map[string]idemRecord
	settings map[string]string
	audits   []models.AuditLog
	seq      int64
}

type idemRecord struct {
	ref       string
	createdAt time.Time
}

func NewStore() *Store {
	return &Store{
		Now:      time.Now,
		accounts: make(map[string]models.Account),
		byID:     make(map[string]int),
		idem:     make(map[string]idemRecord),
		settings: make(map[string]string),
	}
}

// Interface views, matching the postgres factory shape.
func (s *Store) Accounts() repo.Accounts       { return (*accountsView)(s) }
func (s *Store) Entries() repo.Entries         { return (*entriesView)(s) }
func (s *Store) Idempotency() repo.Idempotency { return (*idemView)(s) }
func (s *Store) Settings() repo.Settings       { return (*settingsView)(s) }
func (s *Store) AuditLogs() repo.AuditLogs     { return (*auditView)(s) }

// ---- accounts ----

type accountsView Store

func (v *accountsView) Create(_ context.Context, username, email, passwordHash, role, timezone string) (models.Account, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now().UTC()
	a := models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Timezone:     timezone,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (v *accountsView) GetByID(_ context.Context, id string) (models.Account, error) {
	s := (*Store)(v)
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.Account{}, repo.ErrNotFound
	}
	return a, nil
}

func (v *accountsView) GetByEmail(_ context.Context, email string) (models.Account, error) {
	s := (*Store)(v)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return models.Account{}, repo.ErrNotFound
}

func (v *accountsView) ListIDs(_ context.Context) ([]string, error) {
	s := (*Store)(v)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (v *accountsView) Deactivate(_ context.Context, id string) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return repo.ErrNotFound
	}
	a.Active = false
	a.UpdatedAt = s.Now().UTC()
	s.accounts[id] = a
	return nil
}

func (v *accountsView) SetFrozen(_ context.Context, id string, frozen bool) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return repo.ErrNotFound
	}
	a.Frozen = frozen
	a.UpdatedAt = s.Now().UTC()
	s.accounts[id] = a
	return nil
}

// ---- entries ----

type entriesView Store

func (v *entriesView) Append(_ context.Context, batch repo.AppendBatch) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before touching state; Append is all-or-nothing.
	for _, e := range batch.Entries {
		if _, dup := s.byID[e.ID]; dup {
			return repo.ErrDuplicateEntry
		}
		if _, ok := s.accounts[e.AccountID]; !ok {
			return repo.ErrNoAccount
		}
	}
	if batch.MarkExtendedID != "" {
		idx, ok := s.byID[batch.MarkExtendedID]
		if !ok || s.entries[idx].Extended {
			return repo.ErrNotFound
		}
	}
	for accountID := range batch.BalanceDeltas {
		if _, ok := s.accounts[accountID]; !ok {
			return repo.ErrNoAccount
		}
	}
	if batch.BonusAccountID != "" {
		a, ok := s.accounts[batch.BonusAccountID]
		if !ok {
			return repo.ErrNoAccount
		}
		if a.LastBonusDate != nil && !a.LastBonusDate.Before(batch.BonusDate) {
			return repo.ErrDuplicateKey
		}
	}
	if batch.IdempotencyKey != "" {
		if _, seen := s.idem[batch.IdempotencyKey]; seen {
			return repo.ErrDuplicateKey
		}
	}

	for _, e := range batch.Entries {
		s.seq++
		e.Seq = s.seq
		s.byID[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	if batch.MarkExtendedID != "" {
		s.entries[s.byID[batch.MarkExtendedID]].Extended = true
	}
	for accountID, delta := range batch.BalanceDeltas {
		a := s.accounts[accountID]
		a.CachedBalance += delta
		a.UpdatedAt = s.Now().UTC()
		s.accounts[accountID] = a
	}
	if batch.BonusAccountID != "" {
		a := s.accounts[batch.BonusAccountID]
		d := batch.BonusDate
		a.LastBonusDate = &d
		s.accounts[batch.BonusAccountID] = a
	}
	if batch.IdempotencyKey != "" {
		s.idem[batch.IdempotencyKey] = idemRecord{ref: batch.IdempotencyRef, createdAt: s.Now().UTC()}
	}
	return nil
}

func (v *entriesView) ListByAccount(_ context.Context, accountID string) ([]models.LedgerEntry, error) {
	s := (*Store)(v)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v *entriesView) ListPage(_ context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	s := (*Store)(v)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []models.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].AccountID == accountID {
			all = append(all, s.entries[i])
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (v *entriesView) GetByID(_ context.Context, id string) (models.LedgerEntry, error) {
	s := (*Store)(v)
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return models.LedgerEntry{}, repo.ErrNotFound
	}
	return s.entries[idx], nil
}

func (v *entriesView) ListByRelated(_ context.Context, relatedID string) ([]models.LedgerEntry, error) {
	s := (*Store)(v)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.LedgerEntry
	for _, e := range s.entries {
		if e.RelatedEntryID != nil && *e.RelatedEntryID == relatedID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v *entriesView) AccountsWithExpired(_ context.Context, before time.Time, limit int) ([]string, error) {
	s := (*Store)(v)
	s.mu.RLock()
	defer s.mu.RUnlock()

	writtenOff := make(map[string]bool)
	for _, e := range s.entries {
		if e.Kind == models.KindExpiryWriteoff && e.RelatedEntryID != nil {
			writtenOff[*e.RelatedEntryID] = true
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, e := range s.entries {
		if !e.Kind.IsCredit() || e.Extended || writtenOff[e.ID] {
			continue
		}
		if e.ExpiresAt == nil || e.ExpiresAt.After(before) {
			continue
		}
		if !seen[e.AccountID] {
			seen[e.AccountID] = true
			out = append(out, e.AccountID)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// ---- idempotency ----

type idemView Store

func (v *idemView) Get(_ context.Context, key string) (string, bool, error) {
	s := (*Store)(v)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idem[key]
	if !ok {
		return "", false, nil
	}
	return rec.ref, true, nil
}

func (v *idemView) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.idem {
		if rec.createdAt.Before(before) {
			delete(s.idem, k)
			n++
		}
	}
	return n, nil
}

// ---- settings ----

type settingsView Store

func (v *settingsView) GetAll(_ context.Context) (map[string]string, error) {
	s := (*Store)(v)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.settings))
	for k, val := range s.settings {
		out[k] = val
	}
	return out, nil
}

func (v *settingsView) Set(_ context.Context, key, value string) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// ---- audit logs ----

type auditView Store

func (v *auditView) Create(_ context.Context, l models.AuditLog) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = s.Now().UTC()
	s.audits = append(s.audits, l)
	return nil
}
