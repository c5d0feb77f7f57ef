package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/google/uuid"
)

type IntegrationRepository struct {
	db *sql.DB
}

func NewIntegrationRepository(db *sql.DB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

func (r *IntegrationRepository) SaveState(ctx context.Context, st domain.OAuthState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO oauth_states (state, user_id, provider, integration_type, redirect_uri, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		st.State, st.UserID, st.Provider, string(st.Type), st.RedirectURI, st.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert oauth state: %w", err)
	}
	return nil
}

func (r *IntegrationRepository) ClaimState(ctx context.Context, state, userID string, now time.Time) (*domain.OAuthState, error) {
	st := domain.OAuthState{State: state, UserID: userID}
	var typ string
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM oauth_states
		WHERE state = ? AND user_id = ? AND expires_at > ?
		RETURNING provider, integration_type, redirect_uri`,
		state, userID, now.UTC(),
	).Scan(&st.Provider, &typ, &st.RedirectURI)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOAuthExpired
	}
	if err != nil {
		return nil, fmt.Errorf("claim oauth state: %w", err)
	}
	st.Type = domain.IntegrationType(typ)
	return &st, nil
}

// Upsert replaces the credentials of an existing connection for the same
// user, provider and type.
func (r *IntegrationRepository) Upsert(ctx context.Context, g domain.IntegrationGrant) (*domain.Integration, error) {
	var expiry sql.NullTime
	if !g.Expiry.IsZero() {
		expiry = sql.NullTime{Time: g.Expiry.UTC(), Valid: true}
	}

	integ := domain.Integration{Provider: g.Provider, Type: g.Type, Active: true}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO integrations (id, user_id, provider, integration_type, access_token, refresh_token, token_expiry, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider, integration_type) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry
		RETURNING id`,
		uuid.NewString(), g.UserID, g.Provider, string(g.Type), g.AccessToken, g.RefreshToken, expiry, time.Now().UTC(),
	).Scan(&integ.ID)
	if err != nil {
		return nil, fmt.Errorf("upsert integration: %w", err)
	}
	return &integ, nil
}

func (r *IntegrationRepository) List(ctx context.Context, userID string) ([]domain.Integration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, provider, integration_type FROM integrations
		WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	out := []domain.Integration{}
	for rows.Next() {
		integ := domain.Integration{Active: true}
		var typ string
		if err := rows.Scan(&integ.ID, &integ.Provider, &typ); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		integ.Type = domain.IntegrationType(typ)
		out = append(out, integ)
	}
	return out, rows.Err()
}
