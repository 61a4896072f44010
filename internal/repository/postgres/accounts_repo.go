package postgres

import (
	"context"
	"errors"

	"github.com/creditmarket/ledger-backend/internal/models"
	repo "github.com/creditmarket/ledger-backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type accountsRepo struct{ pool *pgxpool.Pool }

const accountCols = `id, username, email, password_hash, role, timezone,
       cached_balance, last_bonus_date, active, frozen, created_at, updated_at`

func scanAccount(row pgx.Row) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &a.Timezone,
		&a.CachedBalance, &a.LastBonusDate, &a.Active, &a.Frozen, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, repo.ErrNotFound
	}
	return a, err
}

func (r *accountsRepo) Create(ctx context.Context, username, email, passwordHash, role, timezone string) (models.Account, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts(id, username, email, password_hash, role, timezone, cached_balance, active, frozen)
		 VALUES($1,$2,$3,$4,$5,$6,0,true,false)`,
		id, username, email, passwordHash, role, timezone,
	)
	if err != nil {
		return models.Account{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *accountsRepo) GetByID(ctx context.Context, id string) (models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE id=$1`, id))
}

func (r *accountsRepo) GetByEmail(ctx context.Context, email string) (models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE email=$1`, email))
}

func (r *accountsRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Deactivate is a soft delete; the entry log survives for audit.
func (r *accountsRepo) Deactivate(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET active=false, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *accountsRepo) SetFrozen(ctx context.Context, id string, frozen bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET frozen=$2, updated_at=now() WHERE id=$1`, id, frozen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}
