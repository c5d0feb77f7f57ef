package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
)

type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) Upsert(ctx context.Context, userID string, contacts []domain.Contact) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO contacts (user_id, email, name, phone) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, email) DO UPDATE SET name = excluded.name, phone = excluded.phone`)
		if err != nil {
			return fmt.Errorf("prepare contact upsert: %w", err)
		}
		defer stmt.Close()

		for _, ct := range contacts {
			if _, err := stmt.ExecContext(ctx, userID, ct.Email, ct.Name, ct.Phone); err != nil {
				return fmt.Errorf("upsert contact %s: %w", ct.Email, err)
			}
		}
		return nil
	})
}

func (r *ContactRepository) List(ctx context.Context, userID string) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, email, phone FROM contacts WHERE user_id = ? ORDER BY name, email`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []domain.Contact
	for rows.Next() {
		var ct domain.Contact
		if err := rows.Scan(&ct.Name, &ct.Email, &ct.Phone); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}
