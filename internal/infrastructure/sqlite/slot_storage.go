package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SlotStorage implements tokenstore.Storage on a sqlite table.
type SlotStorage struct {
	db *sql.DB
}

func NewSlotStorage(db *sql.DB) *SlotStorage {
	return &SlotStorage{db: db}
}

func (s *SlotStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get slot: %w", err)
	}
	return value, true, nil
}

func (s *SlotStorage) Set(ctx context.Context, values map[string]string) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		for k, v := range values {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO slots (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				k, v,
			)
			if err != nil {
				return fmt.Errorf("set slot %q: %w", k, err)
			}
		}
		return nil
	})
}

func (s *SlotStorage) Delete(ctx context.Context, keys ...string) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE key = ?`, k); err != nil {
				return fmt.Errorf("delete slot %q: %w", k, err)
			}
		}
		return nil
	})
}
