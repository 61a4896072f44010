package models

import (
	"errors"
	"strings"
	"time"
)

// Account is the ledger-side view of a user. CachedBalance is the
// materialized sum of all unconsumed credit batches net of debits; it is
// written only by the ledger service, never by handlers.
type Account struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Role          string     `json:"role"`
	Timezone      string     `json:"timezone"`
	CachedBalance int64      `json:"cached_balance"`
	LastBonusDate *time.Time `json:"last_bonus_date,omitempty"` // date only, midnight in Timezone
	Active        bool       `json:"active"`
	Frozen        bool       `json:"frozen"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (a *Account) Validate() error {
	if len(strings.TrimSpace(a.Username)) < 3 {
		return errors.New("username too short")
	}
	if !strings.Contains(a.Email, "@") {
		return errors.New("invalid email")
	}
	if a.Role == "" {
		a.Role = "user"
	}
	if a.Timezone == "" {
		a.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(a.Timezone); err != nil {
		return errors.New("unknown timezone")
	}
	return nil
}

// Location resolves the account's timezone, falling back to UTC.
func (a *Account) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}
