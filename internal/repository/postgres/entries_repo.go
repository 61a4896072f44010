package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creditmarket/ledger-backend/internal/models"
	repo "github.com/creditmarket/ledger-backend/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type entriesRepo struct{ pool *pgxpool.Pool }

const entryCols = `id, seq, account_id, kind, amount, created_at, expires_at,
       extended, related_entry_id, description`

func scanEntry(row pgx.Row) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.Seq, &e.AccountID, &e.Kind, &e.Amount, &e.CreatedAt,
		&e.ExpiresAt, &e.Extended, &e.RelatedEntryID, &e.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.LedgerEntry{}, repo.ErrNotFound
	}
	return e, err
}

// Append writes the whole batch inside one Serializable transaction. Any
// constraint violation aborts everything; partial writes never commit.
func (r *entriesRepo) Append(ctx context.Context, batch repo.AppendBatch) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	if err := applyBatch(ctx, tx, batch); err != nil {
		_ = tx.Rollback(ctx)
		return translatePgErr(err)
	}
	return tx.Commit(ctx)
}

func applyBatch(ctx context.Context, tx pgx.Tx, batch repo.AppendBatch) error {
	for _, e := range batch.Entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO ledger_entries(id, account_id, kind, amount, created_at, expires_at, extended, related_entry_id, description)
			 VALUES($1,$2,$3,$4,$5,$6,false,$7,$8)`,
			e.ID, e.AccountID, e.Kind, e.Amount, e.CreatedAt, e.ExpiresAt, e.RelatedEntryID, e.Description,
		)
		if err != nil {
			return err
		}
	}
	if batch.MarkExtendedID != "" {
		tag, err := tx.Exec(ctx,
			`UPDATE ledger_entries SET extended=true WHERE id=$1 AND extended=false`,
			batch.MarkExtendedID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("entry %s: %w", batch.MarkExtendedID, repo.ErrNotFound)
		}
	}
	for accountID, delta := range batch.BalanceDeltas {
		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET cached_balance = cached_balance + $2, updated_at=now() WHERE id=$1`,
			accountID, delta)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repo.ErrNoAccount
		}
	}
	if batch.BonusAccountID != "" {
		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET last_bonus_date=$2, updated_at=now()
			  WHERE id=$1 AND (last_bonus_date IS NULL OR last_bonus_date < $2)`,
			batch.BonusAccountID, batch.BonusDate)
		if err != nil {
			return err
		}
		// last_bonus_date strictly increases; a non-advancing write means a
		// concurrent claim already landed for the same day.
		if tag.RowsAffected() == 0 {
			return repo.ErrDuplicateKey
		}
	}
	if batch.IdempotencyKey != "" {
		_, err := tx.Exec(ctx,
			`INSERT INTO idempotency_keys(key, ref, created_at) VALUES($1,$2,now())`,
			batch.IdempotencyKey, batch.IdempotencyRef)
		if err != nil {
			return err
		}
	}
	return nil
}

func translatePgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.ConstraintName == "idempotency_keys_pkey" {
				return repo.ErrDuplicateKey
			}
			return repo.ErrDuplicateEntry
		case "23503": // foreign_key_violation
			return repo.ErrNoAccount
		}
	}
	return err
}

func (r *entriesRepo) ListByAccount(ctx context.Context, accountID string) ([]models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE account_id=$1 ORDER BY seq ASC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *entriesRepo) ListPage(ctx context.Context, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryCols+` FROM ledger_entries
		  WHERE account_id=$1 ORDER BY seq DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *entriesRepo) GetByID(ctx context.Context, id string) (models.LedgerEntry, error) {
	return scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE id=$1`, id))
}

func (r *entriesRepo) ListByRelated(ctx context.Context, relatedID string) ([]models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE related_entry_id=$1 ORDER BY seq ASC`,
		relatedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *entriesRepo) AccountsWithExpired(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT e.account_id
		   FROM ledger_entries e
		  WHERE e.expires_at <= $1
		    AND e.extended = false
		    AND e.kind NOT IN ('spend','transfer_out','extension_fee','expiry_writeoff')
		    AND NOT EXISTS (
		        SELECT 1 FROM ledger_entries w
		         WHERE w.kind = 'expiry_writeoff' AND w.related_entry_id = e.id)
		  LIMIT $2`,
		before, limit)
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

func collectEntries(rows pgx.Rows) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Seq, &e.AccountID, &e.Kind, &e.Amount, &e.CreatedAt,
			&e.ExpiresAt, &e.Extended, &e.RelatedEntryID, &e.Description); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
