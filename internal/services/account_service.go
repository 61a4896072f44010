package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/creditmarket/ledger-backend/internal/auth"
	"github.com/creditmarket/ledger-backend/internal/models"
	repo "github.com/creditmarket/ledger-backend/internal/repository"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AccountService handles signup, login and account lifecycle. Accounts are
// created with zero balance and no bonus history; deactivation is soft so
// the ledger log survives for audit.
type AccountService struct {
	r  repo.Accounts
	tm *auth.TokenManager
}

func NewAccountService(r repo.Accounts, tm *auth.TokenManager) *AccountService {
	return &AccountService{r: r, tm: tm}
}

func (s *AccountService) Register(ctx context.Context, username, email, password, timezone string) (models.Account, error) {
	a := models.Account{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
		Role:     "user",
		Timezone: strings.TrimSpace(timezone),
	}
	if err := a.Validate(); err != nil {
		return models.Account{}, err
	}
	if len(password) < 8 {
		return models.Account{}, errors.New("password too short")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.Account{}, err
	}
	return s.r.Create(ctx, a.Username, a.Email, hash, a.Role, a.Timezone)
}

type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

func (s *AccountService) Login(ctx context.Context, email, password string) (TokenPair, error) {
	a, err := s.r.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if !a.Active {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(password, a.PasswordHash); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	access, refresh, exp, err := s.tm.GeneratePair(a.ID, a.Role)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    time.Until(exp).Truncate(time.Second),
	}, nil
}

func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, isRefresh, err := s.tm.ParseAny(refreshToken)
	if err != nil || !isRefresh {
		return TokenPair{}, ErrInvalidCredentials
	}
	access, refresh, exp, err := s.tm.GeneratePair(claims.UserID, claims.Role)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    time.Until(exp).Truncate(time.Second),
	}, nil
}

func (s *AccountService) Get(ctx context.Context, id string) (models.Account, error) {
	return s.r.GetByID(ctx, id)
}

func (s *AccountService) Deactivate(ctx context.Context, id string) error {
	return s.r.Deactivate(ctx, id)
}
