package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type idempotencyRepo struct{ pool *pgxpool.Pool }

func (r *idempotencyRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var ref string
	err := r.pool.QueryRow(ctx,
		`SELECT ref FROM idempotency_keys WHERE key=$1`, key).Scan(&ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ref, true, nil
}

func (r *idempotencyRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
