// Package integration runs the portal side of a third-party OAuth
// connection: it remembers the state the backend issued and checks the
// provider's redirect against it before relaying the code.
package integration

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/booking-portal/internal/apiclient"
	"github.com/ErlanBelekov/booking-portal/internal/domain"
)

// Slot names in session-scoped storage.
const (
	StateKey    = "oauth_state"
	ProviderKey = "oauth_provider"
	TypeKey     = "oauth_type"
)

var ErrProviderDenied = errors.New("provider returned an error")

type API interface {
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.Option) error
}

// Slots is satisfied by tokenstore.Storage implementations.
type Slots interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

type Handshake struct {
	api         API
	slots       Slots
	redirectURI string
	logger      *slog.Logger
}

func New(api API, slots Slots, redirectURI string, logger *slog.Logger) *Handshake {
	return &Handshake{
		api:         api,
		slots:       slots,
		redirectURI: redirectURI,
		logger:      logger.With("component", "oauth_handshake"),
	}
}

// Initiate asks the backend for an authorization URL and remembers the
// state it issued. The caller sends the user to the returned URL.
func (h *Handshake) Initiate(ctx context.Context, provider string, typ domain.IntegrationType) (string, error) {
	var out domain.OAuthInitiation
	err := h.api.Post(ctx, apiclient.OAuthInitiateEndpoint, domain.OAuthInitiateRequest{
		Provider:    provider,
		Type:        typ,
		RedirectURI: h.redirectURI,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.State == "" || out.AuthorizationURL == "" {
		return "", fmt.Errorf("initiate %s: backend returned no state or url", provider)
	}

	if err := h.slots.Set(ctx, map[string]string{
		StateKey:    out.State,
		ProviderKey: provider,
		TypeKey:     string(typ),
	}); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}

	h.logger.InfoContext(ctx, "oauth handshake started", "provider", provider, "type", typ)
	return out.AuthorizationURL, nil
}

// CallbackParams are the query parameters the provider redirects back with.
type CallbackParams struct {
	Code  string
	State string
	Error string
}

// Complete validates the redirect and relays the code to the backend. The
// stored handshake is cleared only once the backend accepts it.
func (h *Handshake) Complete(ctx context.Context, p CallbackParams) (*domain.Integration, error) {
	if p.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderDenied, p.Error)
	}
	if p.Code == "" || p.State == "" {
		return nil, domain.ErrOAuthMissingParams
	}

	stored, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(p.State), []byte(stored.State)) != 1 {
		h.logger.WarnContext(ctx, "oauth state mismatch", "provider", stored.Provider)
		return nil, domain.ErrOAuthStateMismatch
	}

	var integ domain.Integration
	if err := h.api.Post(ctx, apiclient.OAuthCallbackEndpoint, stored.withCode(p.Code), &integ); err != nil {
		return nil, err
	}

	if err := h.slots.Delete(ctx, StateKey, ProviderKey, TypeKey); err != nil {
		h.logger.WarnContext(ctx, "clear oauth state", "error", err)
	}
	h.logger.InfoContext(ctx, "integration connected", "provider", stored.Provider, "type", stored.Type)
	return &integ, nil
}

type pending struct {
	State    string
	Provider string
	Type     domain.IntegrationType
}

func (p pending) withCode(code string) domain.OAuthCallback {
	return domain.OAuthCallback{Provider: p.Provider, Type: p.Type, Code: code, State: p.State}
}

// load returns ErrOAuthExpired unless all three slots are present.
func (h *Handshake) load(ctx context.Context) (pending, error) {
	var vals [3]string
	for i, key := range []string{StateKey, ProviderKey, TypeKey} {
		v, ok, err := h.slots.Get(ctx, key)
		if err != nil {
			return pending{}, fmt.Errorf("read %s: %w", key, err)
		}
		if !ok || v == "" {
			return pending{}, domain.ErrOAuthExpired
		}
		vals[i] = v
	}
	return pending{State: vals[0], Provider: vals[1], Type: domain.IntegrationType(vals[2])}, nil
}
