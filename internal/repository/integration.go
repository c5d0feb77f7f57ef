package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
)

type IntegrationRepository interface {
	SaveState(ctx context.Context, st domain.OAuthState) error
	// ClaimState deletes and returns the pending handshake. Unknown or
	// expired states give domain.ErrOAuthExpired.
	ClaimState(ctx context.Context, state, userID string, now time.Time) (*domain.OAuthState, error)
	Upsert(ctx context.Context, g domain.IntegrationGrant) (*domain.Integration, error)
	List(ctx context.Context, userID string) ([]domain.Integration, error)
}
