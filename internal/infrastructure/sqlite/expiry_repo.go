package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type ExpiryRepository struct {
	db *sql.DB
}

func NewExpiryRepository(db *sql.DB) *ExpiryRepository {
	return &ExpiryRepository{db: db}
}

func (r *ExpiryRepository) PurgeExpired(ctx context.Context, now, failuresBefore time.Time) (int64, error) {
	now, failuresBefore = now.UTC(), failuresBefore.UTC()
	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM refresh_tokens WHERE expires_at < ? OR revoked_at IS NOT NULL`, []any{now}},
		{`DELETE FROM verification_tokens WHERE expires_at < ? OR used_at IS NOT NULL`, []any{now}},
		{`DELETE FROM oauth_states WHERE expires_at < ?`, []any{now}},
		{`DELETE FROM login_failures WHERE created_at < ?`, []any{failuresBefore}},
	}

	var total int64
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, s := range stmts {
			res, err := tx.ExecContext(ctx, s.query, s.args...)
			if err != nil {
				return fmt.Errorf("purge expired: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("purge expired: %w", err)
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
