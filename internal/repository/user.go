package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
)

type UserRepository interface {
	// Create returns domain.ErrEmailTaken when the email is already registered.
	Create(ctx context.Context, u *domain.User, passwordHash string) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// FindByEmail also returns the stored bcrypt hash.
	FindByEmail(ctx context.Context, email string) (*domain.User, string, error)
	Update(ctx context.Context, u *domain.User) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	CreateVerificationToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	// ClaimVerificationToken marks the token used, verifies the owner's email
	// and returns the owner's ID. Spent or expired tokens give domain.ErrTokenInvalid.
	ClaimVerificationToken(ctx context.Context, tokenHash string, now time.Time) (string, error)

	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	// RotateRefreshToken revokes oldHash and stores newHash in one transaction.
	RotateRefreshToken(ctx context.Context, oldHash, newHash string, expiresAt, now time.Time) (string, error)
	RevokeRefreshTokens(ctx context.Context, userID string, now time.Time) error

	RecordLoginFailure(ctx context.Context, ip, email string, at time.Time) error
	CountLoginFailures(ctx context.Context, ip string, since time.Time) (int, error)
}
