package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/repository"
	"golang.org/x/oauth2"
)

const defaultStateTTL = 10 * time.Minute

// Provider is a third-party account the backend can connect, with the
// scopes requested for each integration type it supports.
type Provider struct {
	Name   string
	Scopes map[domain.IntegrationType][]string
}

// DefaultProviders mirrors what the scheduling backend offers.
var DefaultProviders = []Provider{
	{Name: "google", Scopes: map[domain.IntegrationType][]string{
		domain.IntegrationCalendar: {"https://www.googleapis.com/auth/calendar.events"},
		domain.IntegrationVideo:    {"https://www.googleapis.com/auth/meetings.space.created"},
	}},
	{Name: "microsoft", Scopes: map[domain.IntegrationType][]string{
		domain.IntegrationCalendar: {"offline_access", "Calendars.ReadWrite"},
		domain.IntegrationVideo:    {"offline_access", "OnlineMeetings.ReadWrite"},
	}},
	{Name: "zoom", Scopes: map[domain.IntegrationType][]string{
		domain.IntegrationVideo: {"meeting:write"},
	}},
}

type IntegrationUsecase struct {
	repo      repository.IntegrationRepository
	endpoint  oauth2.Endpoint
	clientID  string
	secret    string
	providers map[string]Provider
	now       func() time.Time
	logger    *slog.Logger
}

func NewIntegrationUsecase(repo repository.IntegrationRepository, endpoint oauth2.Endpoint, clientID, secret string, providers []Provider, logger *slog.Logger) *IntegrationUsecase {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
	}
	return &IntegrationUsecase{
		repo:      repo,
		endpoint:  endpoint,
		clientID:  clientID,
		secret:    secret,
		providers: byName,
		now:       time.Now,
		logger:    logger.With("component", "integration_usecase"),
	}
}

// Initiate remembers a fresh state for the user and returns the provider's
// consent URL.
func (u *IntegrationUsecase) Initiate(ctx context.Context, userID string, req domain.OAuthInitiateRequest) (*domain.OAuthInitiation, error) {
	cfg, err := u.config(req.Provider, req.Type, req.RedirectURI)
	if err != nil {
		return nil, err
	}

	b := make([]byte, 24)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(b)

	err = u.repo.SaveState(ctx, domain.OAuthState{
		State:       state,
		UserID:      userID,
		Provider:    req.Provider,
		Type:        req.Type,
		RedirectURI: req.RedirectURI,
		ExpiresAt:   u.now().Add(defaultStateTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("save oauth state: %w", err)
	}

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("provider", req.Provider))
	return &domain.OAuthInitiation{AuthorizationURL: url, State: state}, nil
}

// Complete spends the state, exchanges the code and stores the grant.
func (u *IntegrationUsecase) Complete(ctx context.Context, userID string, cb domain.OAuthCallback) (*domain.Integration, error) {
	st, err := u.repo.ClaimState(ctx, cb.State, userID, u.now())
	if err != nil {
		return nil, err
	}
	if st.Provider != cb.Provider || st.Type != cb.Type {
		return nil, domain.ErrOAuthStateMismatch
	}

	cfg, err := u.config(st.Provider, st.Type, st.RedirectURI)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(ctx, cb.Code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	integ, err := u.repo.Upsert(ctx, domain.IntegrationGrant{
		UserID:       userID,
		Provider:     st.Provider,
		Type:         st.Type,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	})
	if err != nil {
		return nil, err
	}

	u.logger.InfoContext(ctx, "integration connected", "user_id", userID, "provider", st.Provider, "type", st.Type)
	return integ, nil
}

func (u *IntegrationUsecase) List(ctx context.Context, userID string) ([]domain.Integration, error) {
	return u.repo.List(ctx, userID)
}

func (u *IntegrationUsecase) config(provider string, typ domain.IntegrationType, redirectURI string) (*oauth2.Config, error) {
	p, ok := u.providers[provider]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	scopes, ok := p.Scopes[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s integration", domain.ErrUnknownProvider, provider, typ)
	}
	return &oauth2.Config{
		ClientID:     u.clientID,
		ClientSecret: u.secret,
		Endpoint:     u.endpoint,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
	}, nil
}
