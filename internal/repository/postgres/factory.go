package postgres

import (
	repo "github.com/creditmarket/ledger-backend/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repositories struct {
	Accounts    repo.Accounts
	Entries     repo.Entries
	Idempotency repo.Idempotency
	Settings    repo.Settings
	AuditLogs   repo.AuditLogs
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Accounts:    &accountsRepo{pool},
		Entries:     &entriesRepo{pool},
		Idempotency: &idempotencyRepo{pool},
		Settings:    &settingsRepo{pool},
		AuditLogs:   &auditLogsRepo{pool},
	}
}
