package repository

import (
	"context"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
)

type ContactRepository interface {
	// Upsert inserts or updates contacts keyed by (user, email).
	Upsert(ctx context.Context, userID string, contacts []domain.Contact) error
	List(ctx context.Context, userID string) ([]domain.Contact, error)
}
