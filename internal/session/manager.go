// Package session owns the signed-in user and every transition of the
// authentication state observed by the portal.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/ErlanBelekov/booking-portal/internal/apiclient"
	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/metrics"
)

// ErrSessionChanged is returned when the session ended or was replaced while
// a profile call was in flight. The stale result is discarded.
var ErrSessionChanged = errors.New("session changed during request")

// API is the subset of *apiclient.Client the manager calls.
type API interface {
	Get(ctx context.Context, path string, out any, opts ...apiclient.Option) error
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.Option) error
	Patch(ctx context.Context, path string, body, out any, opts ...apiclient.Option) error
}

type TokenStore interface {
	AccessToken(ctx context.Context) string
	SetCredentials(ctx context.Context, creds domain.Credentials) error
	Clear(ctx context.Context) error
}

type Navigator interface {
	Navigate(ctx context.Context, location string)
}

// State is a read-only snapshot of the session.
type State struct {
	User    *domain.User
	Loading bool
}

func (s State) Authenticated() bool { return s.User != nil }

type Manager struct {
	api    API
	tokens TokenStore
	nav    Navigator
	logger *slog.Logger

	mu      sync.RWMutex
	user    *domain.User
	loading bool
	// gen changes whenever credentials are established or cleared.
	gen uint64

	schedule    string
	revalidator *Revalidator
	stop        context.CancelFunc
	done        chan struct{}
}

type Option func(*Manager)

// WithRevalidateSchedule re-fetches the profile on a cron schedule while
// signed in. An empty spec disables it.
func WithRevalidateSchedule(spec string) Option {
	return func(m *Manager) { m.schedule = spec }
}

func New(api API, tokens TokenStore, nav Navigator, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		api:     api,
		tokens:  tokens,
		nav:     nav,
		logger:  logger.With("component", "session"),
		loading: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init resolves the initial state. A stored token is only trusted once the
// profile endpoint accepts it; otherwise the tokens are dropped.
func (m *Manager) Init(ctx context.Context) error {
	if m.tokens.AccessToken(ctx) != "" {
		if err := m.RefreshUser(ctx); err != nil && !errors.Is(err, ErrSessionChanged) {
			m.logger.WarnContext(ctx, "stored token rejected", "error", err)
			m.clear(ctx)
		}
	}

	m.mu.Lock()
	m.loading = false
	m.mu.Unlock()

	if m.schedule == "" {
		return nil
	}
	rv, err := NewRevalidator(m, m.schedule, m.logger)
	if err != nil {
		return fmt.Errorf("start revalidation: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.revalidator, m.stop, m.done = rv, cancel, make(chan struct{})
	go func() {
		defer close(m.done)
		rv.Start(runCtx)
	}()
	return nil
}

// Close stops background revalidation.
func (m *Manager) Close() {
	if m.stop == nil {
		return
	}
	m.stop()
	<-m.done
	m.stop = nil
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{User: m.user, Loading: m.loading}
}

// Login signs in and navigates to redirect when it is a local path, or to
// the dashboard. It returns the destination. On failure state is untouched.
func (m *Manager) Login(ctx context.Context, creds domain.LoginCredentials, redirect string) (string, error) {
	var resp domain.AuthResponse
	if err := m.api.Post(ctx, apiclient.LoginEndpoint, creds, &resp, apiclient.WithoutAuthRetry()); err != nil {
		return "", err
	}
	if err := m.establish(ctx, resp); err != nil {
		return "", err
	}

	dest := SafeRedirect(redirect)
	m.logger.InfoContext(ctx, "signed in", "user_id", resp.User.ID)
	metrics.SessionTransitionsTotal.WithLabelValues("login").Inc()
	m.nav.Navigate(ctx, dest)
	return dest, nil
}

// Register creates the account, signs it in and sends the user to email verification.
func (m *Manager) Register(ctx context.Context, data domain.RegisterData) error {
	var resp domain.AuthResponse
	if err := m.api.Post(ctx, apiclient.RegisterEndpoint, data, &resp, apiclient.WithoutAuthRetry()); err != nil {
		return err
	}
	if err := m.establish(ctx, resp); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "registered", "user_id", resp.User.ID)
	metrics.SessionTransitionsTotal.WithLabelValues("register").Inc()
	m.nav.Navigate(ctx, domain.VerifyEmailPath)
	return nil
}

func (m *Manager) establish(ctx context.Context, resp domain.AuthResponse) error {
	if resp.Token == "" {
		return fmt.Errorf("establish session: %w", domain.ErrTokenInvalid)
	}
	user := resp.User

	m.mu.Lock()
	defer m.mu.Unlock()
	// a previous account's refresh token must not outlive it
	if resp.Refresh == "" {
		if err := m.tokens.Clear(ctx); err != nil {
			return fmt.Errorf("clear credentials: %w", err)
		}
	}
	if err := m.tokens.SetCredentials(ctx, domain.Credentials{Access: resp.Token, Refresh: resp.Refresh}); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	m.user = &user
	m.gen++
	return nil
}

// Logout always ends the local session, even when the backend cannot be told.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.api.Post(ctx, apiclient.LogoutEndpoint, nil, nil); err != nil {
		m.logger.WarnContext(ctx, "server logout failed", "error", err)
	}

	m.clear(ctx)
	metrics.SessionTransitionsTotal.WithLabelValues("logout").Inc()
	m.nav.Navigate(ctx, domain.LoginPath)
}

// RefreshUser replaces the user with the backend profile.
func (m *Manager) RefreshUser(ctx context.Context) error {
	gen := m.generation()
	var user domain.User
	if err := m.api.Get(ctx, apiclient.ProfileEndpoint, &user); err != nil {
		return err
	}
	return m.adopt(gen, &user)
}

// UpdateProfile sends a partial update and adopts the record the backend returns.
func (m *Manager) UpdateProfile(ctx context.Context, partial map[string]any) error {
	gen := m.generation()
	var user domain.User
	if err := m.api.Patch(ctx, apiclient.ProfileEndpoint, partial, &user); err != nil {
		return err
	}
	return m.adopt(gen, &user)
}

func (m *Manager) generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

// adopt sets user only if no login, logout or lost session happened since gen was read.
func (m *Manager) adopt(gen uint64, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return ErrSessionChanged
	}
	m.user = user
	return nil
}

// HandleAuthLost is installed as the API client's reaction to a failed token refresh.
func (m *Manager) HandleAuthLost(ctx context.Context) {
	m.logger.WarnContext(ctx, "session lost, refresh failed")
	m.clear(ctx)
	metrics.SessionTransitionsTotal.WithLabelValues("auth_lost").Inc()
	m.nav.Navigate(ctx, domain.LoginPath)
}

func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.tokens.Clear(ctx); err != nil {
		m.logger.ErrorContext(ctx, "clear tokens", "error", err)
	}
	m.user = nil
	m.gen++
}

// SafeRedirect accepts only local absolute paths and falls back to the dashboard.
func SafeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return domain.DashboardPath
	}

	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return domain.DashboardPath
	}
	if u.Path == domain.LoginPath || u.Path == domain.RegisterPath {
		return domain.DashboardPath
	}
	return u.RequestURI()
}
