package tokenstore

import (
	"context"
	"log/slog"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
)

// Slot names shared with the browser build of the product.
const (
	AccessTokenKey  = "auth_token"
	RefreshTokenKey = "refresh_token"
)

// Store owns the credential pair. Tokens are opaque; nothing here inspects them.
type Store struct {
	storage Storage
	logger  *slog.Logger
}

// New returns a Store backed by storage. A nil storage behaves like an
// unavailable one: reads return "" and writes are dropped.
func New(storage Storage, logger *slog.Logger) *Store {
	return &Store{storage: storage, logger: logger.With("component", "token_store")}
}

// AccessToken returns "" when the slot is empty or the storage fails.
func (s *Store) AccessToken(ctx context.Context) string {
	return s.get(ctx, AccessTokenKey)
}

// RefreshToken returns "" when the slot is empty or the storage fails.
func (s *Store) RefreshToken(ctx context.Context) string {
	return s.get(ctx, RefreshTokenKey)
}

func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	if s.storage == nil {
		return ErrUnavailable
	}
	return s.storage.Set(ctx, map[string]string{AccessTokenKey: token})
}

// SetCredentials writes both slots in one storage operation. An empty
// Refresh keeps whatever refresh token is already stored.
func (s *Store) SetCredentials(ctx context.Context, creds domain.Credentials) error {
	if s.storage == nil {
		return ErrUnavailable
	}
	values := map[string]string{AccessTokenKey: creds.Access}
	if creds.Refresh != "" {
		values[RefreshTokenKey] = creds.Refresh
	}
	return s.storage.Set(ctx, values)
}

// Clear removes both tokens in one storage operation.
func (s *Store) Clear(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	return s.storage.Delete(ctx, AccessTokenKey, RefreshTokenKey)
}

func (s *Store) get(ctx context.Context, key string) string {
	if s.storage == nil {
		return ""
	}
	v, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "read token slot", "slot", key, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}
