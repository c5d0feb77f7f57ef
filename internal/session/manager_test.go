package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/apiclient"
	"github.com/ErlanBelekov/booking-portal/internal/apierr"
	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/session"
	"github.com/ErlanBelekov/booking-portal/internal/tokenstore"
)

// ---- fakes ----

type fakeAPI struct {
	get   func(ctx context.Context, path string, out any) error
	post  func(ctx context.Context, path string, body, out any) error
	patch func(ctx context.Context, path string, body, out any) error
}

func (f *fakeAPI) Get(ctx context.Context, path string, out any, _ ...apiclient.Option) error {
	return f.get(ctx, path, out)
}

func (f *fakeAPI) Post(ctx context.Context, path string, body, out any, _ ...apiclient.Option) error {
	return f.post(ctx, path, body, out)
}

func (f *fakeAPI) Patch(ctx context.Context, path string, body, out any, _ ...apiclient.Option) error {
	return f.patch(ctx, path, body, out)
}

type fakeNavigator struct {
	mu        sync.Mutex
	locations []string
}

func (n *fakeNavigator) Navigate(_ context.Context, location string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.locations = append(n.locations, location)
}

func (n *fakeNavigator) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.locations) == 0 {
		return ""
	}
	return n.locations[len(n.locations)-1]
}

// ---- helpers ----

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStore() *tokenstore.Store {
	return tokenstore.New(tokenstore.NewMemoryStorage(), discardLogger())
}

// fill copies v into out the way the client decodes the data envelope.
func fill(out, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

var testUser = domain.User{
	ID:            "user-1",
	Email:         "ada@example.com",
	FirstName:     "Ada",
	LastName:      "Lovelace",
	AccountStatus: domain.AccountActive,
	CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	UpdatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
}

var errInvalidLogin = apierr.FromResponse(http.StatusUnauthorized, []byte(`{"error":"Invalid email or password"}`))

func loginAPI() *fakeAPI {
	return &fakeAPI{
		post: func(_ context.Context, path string, body, out any) error {
			switch path {
			case apiclient.LoginEndpoint:
				creds := body.(domain.LoginCredentials)
				if creds.Password != "correct-horse" {
					return errInvalidLogin
				}
				return fill(out, domain.AuthResponse{User: testUser, Token: "access-1", Refresh: "refresh-1"})
			case apiclient.LogoutEndpoint:
				return nil
			}
			return errors.New("unexpected path " + path)
		},
	}
}

// ---- Init ----

func TestInit_NoToken_ResolvesSignedOut(t *testing.T) {
	api := &fakeAPI{get: func(context.Context, string, any) error {
		t.Fatal("profile must not be fetched without a token")
		return nil
	}}
	m := session.New(api, newStore(), &fakeNavigator{}, discardLogger())

	if !m.State().Loading {
		t.Fatal("state must start loading")
	}
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	st := m.State()
	if st.Loading || st.User != nil {
		t.Fatalf("state = %+v, want resolved signed out", st)
	}
}

func TestInit_ValidToken_LoadsUser(t *testing.T) {
	store := newStore()
	_ = store.SetAccessToken(context.Background(), "access-1")

	api := &fakeAPI{get: func(_ context.Context, path string, out any) error {
		if path != apiclient.ProfileEndpoint {
			t.Errorf("path = %s", path)
		}
		return fill(out, testUser)
	}}
	m := session.New(api, store, &fakeNavigator{}, discardLogger())

	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	st := m.State()
	if st.Loading || st.User == nil || st.User.ID != "user-1" {
		t.Fatalf("state = %+v, want user-1", st)
	}
}

func TestInit_RejectedToken_ClearsTokens(t *testing.T) {
	store := newStore()
	ctx := context.Background()
	_ = store.SetCredentials(ctx, domain.Credentials{Access: "stale", Refresh: "stale-refresh"})

	api := &fakeAPI{get: func(context.Context, string, any) error {
		return apierr.FromResponse(http.StatusUnauthorized, nil)
	}}
	m := session.New(api, store, &fakeNavigator{}, discardLogger())

	if err := m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if st := m.State(); st.Loading || st.User != nil {
		t.Fatalf("state = %+v, want resolved signed out", st)
	}
	if store.AccessToken(ctx) != "" || store.RefreshToken(ctx) != "" {
		t.Fatal("tokens must be cleared")
	}
}

func TestInit_BadSchedule_ReturnsError(t *testing.T) {
	m := session.New(&fakeAPI{}, newStore(), &fakeNavigator{}, discardLogger(),
		session.WithRevalidateSchedule("not a schedule"))

	if err := m.Init(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// ---- Login ----

func TestLogin_ValidCredentials_SetsUserAndToken(t *testing.T) {
	store := newStore()
	nav := &fakeNavigator{}
	m := session.New(loginAPI(), store, nav, discardLogger())
	ctx := context.Background()
	_ = m.Init(ctx)

	if m.State().User != nil {
		t.Fatal("user must start nil")
	}

	dest, err := m.Login(ctx, domain.LoginCredentials{Email: "ada@example.com", Password: "correct-horse"}, "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if u := m.State().User; u == nil || u.ID != testUser.ID {
		t.Fatalf("user = %+v, want %s", u, testUser.ID)
	}
	if store.AccessToken(ctx) != "access-1" || store.RefreshToken(ctx) != "refresh-1" {
		t.Fatal("credentials not stored")
	}
	if dest != domain.DashboardPath || nav.last() != domain.DashboardPath {
		t.Fatalf("dest = %s, navigated = %s", dest, nav.last())
	}
}

func TestLogin_HonoursLocalRedirect(t *testing.T) {
	nav := &fakeNavigator{}
	m := session.New(loginAPI(), newStore(), nav, discardLogger())

	dest, err := m.Login(context.Background(),
		domain.LoginCredentials{Email: "ada@example.com", Password: "correct-horse"},
		"/integrations?tab=calendar")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if dest != "/integrations?tab=calendar" {
		t.Fatalf("dest = %s", dest)
	}
}

func TestLogin_InvalidCredentials_StateUnchanged(t *testing.T) {
	store := newStore()
	nav := &fakeNavigator{}
	m := session.New(loginAPI(), store, nav, discardLogger())
	ctx := context.Background()
	_ = m.Init(ctx)
	before := m.State()

	_, err := m.Login(ctx, domain.LoginCredentials{Email: "ada@example.com", Password: "wrong"}, "")

	e, ok := apierr.As(err)
	if !ok {
		t.Fatalf("err = %v, want normalized error", err)
	}
	if e.Message != "Invalid email or password" {
		t.Errorf("message = %q", e.Message)
	}
	if after := m.State(); after != before {
		t.Fatalf("state changed: %+v -> %+v", before, after)
	}
	if store.AccessToken(ctx) != "" {
		t.Fatal("token stored on failed login")
	}
	if len(nav.locations) != 0 {
		t.Fatalf("navigated on failure: %v", nav.locations)
	}
}

func TestLogin_ResponseWithoutRefresh_DropsPreviousRefresh(t *testing.T) {
	store := newStore()
	ctx := context.Background()
	_ = store.SetCredentials(ctx, domain.Credentials{Access: "old", Refresh: "old-refresh"})

	api := &fakeAPI{post: func(_ context.Context, _ string, _, out any) error {
		return fill(out, domain.AuthResponse{User: testUser, Token: "access-2"})
	}}
	m := session.New(api, store, &fakeNavigator{}, discardLogger())

	if _, err := m.Login(ctx, domain.LoginCredentials{}, ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	if store.AccessToken(ctx) != "access-2" || store.RefreshToken(ctx) != "" {
		t.Fatalf("access=%q refresh=%q", store.AccessToken(ctx), store.RefreshToken(ctx))
	}
}

// ---- Register ----

func TestRegister_Success_NavigatesToVerifyEmail(t *testing.T) {
	store := newStore()
	nav := &fakeNavigator{}
	api := &fakeAPI{post: func(_ context.Context, path string, _, out any) error {
		if path != apiclient.RegisterEndpoint {
			t.Errorf("path = %s", path)
		}
		return fill(out, domain.AuthResponse{User: testUser, Token: "access-1"})
	}}
	m := session.New(api, store, nav, discardLogger())

	err := m.Register(context.Background(), domain.RegisterData{Email: "ada@example.com", Password: "pw12345678", PasswordConfirm: "pw12345678"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if m.State().User == nil || store.AccessToken(context.Background()) != "access-1" {
		t.Fatal("session not established")
	}
	if nav.last() != domain.VerifyEmailPath {
		t.Fatalf("navigated to %s", nav.last())
	}
}

func TestRegister_FieldErrors_Propagate(t *testing.T) {
	api := &fakeAPI{post: func(context.Context, string, any, any) error {
		return apierr.FromResponse(http.StatusBadRequest,
			[]byte(`{"error":"Validation failed","field_errors":{"email":["already registered"]}}`))
	}}
	m := session.New(api, newStore(), &fakeNavigator{}, discardLogger())

	err := m.Register(context.Background(), domain.RegisterData{})
	e, ok := apierr.As(err)
	if !ok {
		t.Fatalf("err = %v", err)
	}
	if msgs := e.FieldMessages(); len(msgs) != 1 || msgs[0] != "email: already registered" {
		t.Fatalf("field messages = %v", msgs)
	}
	if m.State().User != nil {
		t.Fatal("user set on failure")
	}
}

// ---- Logout ----

func TestLogout_ServerFailure_StillClearsEverything(t *testing.T) {
	store := newStore()
	nav := &fakeNavigator{}
	api := loginAPI()
	login := api.post
	api.post = func(ctx context.Context, path string, body, out any) error {
		if path == apiclient.LogoutEndpoint {
			return apierr.FromTransport(errors.New("connection refused"))
		}
		return login(ctx, path, body, out)
	}
	m := session.New(api, store, nav, discardLogger())
	ctx := context.Background()

	if _, err := m.Login(ctx, domain.LoginCredentials{Password: "correct-horse"}, ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	m.Logout(ctx)

	if m.State().User != nil {
		t.Fatal("user must be nil after logout")
	}
	if store.AccessToken(ctx) != "" || store.RefreshToken(ctx) != "" {
		t.Fatal("tokens must be cleared after logout")
	}
	if nav.last() != domain.LoginPath {
		t.Fatalf("navigated to %s", nav.last())
	}
}

// ---- RefreshUser / UpdateProfile ----

func TestRefreshUser_Failure_KeepsUser(t *testing.T) {
	api := loginAPI()
	api.get = func(context.Context, string, any) error {
		return apierr.FromResponse(http.StatusInternalServerError, nil)
	}
	m := session.New(api, newStore(), &fakeNavigator{}, discardLogger())
	ctx := context.Background()
	_, _ = m.Login(ctx, domain.LoginCredentials{Password: "correct-horse"}, "")

	if err := m.RefreshUser(ctx); err == nil {
		t.Fatal("expected error")
	}
	if m.State().User == nil {
		t.Fatal("user dropped on refresh failure")
	}
}

func TestUpdateProfile_AdoptsServerRecord(t *testing.T) {
	serverRecord := testUser
	serverRecord.FirstName = "Augusta"
	serverRecord.UpdatedAt = testUser.UpdatedAt.Add(time.Hour)
	serverRecord.Profile = &domain.UserProfile{DisplayName: "Countess", TimezoneName: "Europe/London"}

	api := loginAPI()
	api.patch = func(_ context.Context, path string, body, out any) error {
		if path != apiclient.ProfileEndpoint {
			t.Errorf("path = %s", path)
		}
		// the server normalizes what the client sent
		if body.(map[string]any)["first_name"] != "augusta " {
			t.Errorf("body = %v", body)
		}
		return fill(out, serverRecord)
	}
	m := session.New(api, newStore(), &fakeNavigator{}, discardLogger())
	ctx := context.Background()
	_, _ = m.Login(ctx, domain.LoginCredentials{Password: "correct-horse"}, "")

	if err := m.UpdateProfile(ctx, map[string]any{"first_name": "augusta "}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got := m.State().User
	want, _ := json.Marshal(serverRecord)
	have, _ := json.Marshal(got)
	if string(want) != string(have) {
		t.Fatalf("user = %s, want %s", have, want)
	}
}

// ---- HandleAuthLost ----

func TestHandleAuthLost_ClearsAndNavigates(t *testing.T) {
	store := newStore()
	nav := &fakeNavigator{}
	m := session.New(loginAPI(), store, nav, discardLogger())
	ctx := context.Background()
	_, _ = m.Login(ctx, domain.LoginCredentials{Password: "correct-horse"}, "")

	m.HandleAuthLost(ctx)

	if m.State().User != nil || store.AccessToken(ctx) != "" || store.RefreshToken(ctx) != "" {
		t.Fatal("session not cleared")
	}
	if nav.last() != domain.LoginPath {
		t.Fatalf("navigated to %s", nav.last())
	}
}

func TestManager_ConcurrentTransitions_RaceFree(t *testing.T) {
	store := newStore()
	m := session.New(loginAPI(), store, &fakeNavigator{}, discardLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				_, _ = m.Login(ctx, domain.LoginCredentials{Password: "correct-horse"}, "")
			} else {
				m.HandleAuthLost(ctx)
			}
		}
	}()

	for range 2000 {
		st := m.State()
		_ = st.Authenticated()
	}
	close(stop)
	wg.Wait()
}

func TestRefreshUser_LogoutWhileInFlight_DiscardsProfile(t *testing.T) {
	store := newStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	api := loginAPI()
	api.get = func(_ context.Context, _ string, out any) error {
		close(entered)
		<-release
		return fill(out, testUser)
	}
	m := session.New(api, store, &fakeNavigator{}, discardLogger())
	ctx := context.Background()
	if _, err := m.Login(ctx, domain.LoginCredentials{Password: "correct-horse"}, ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- m.RefreshUser(ctx) }()
	<-entered
	m.Logout(ctx)
	close(release)

	if err := <-errc; !errors.Is(err, session.ErrSessionChanged) {
		t.Fatalf("err = %v, want ErrSessionChanged", err)
	}
	if m.State().Authenticated() {
		t.Fatal("late profile resurrected a signed-out session")
	}
	if store.AccessToken(ctx) != "" || store.RefreshToken(ctx) != "" {
		t.Fatal("tokens must stay cleared")
	}
}

func TestUpdateProfile_AuthLostWhileInFlight_DiscardsRecord(t *testing.T) {
	api := loginAPI()
	m := session.New(api, newStore(), &fakeNavigator{}, discardLogger())
	api.patch = func(ctx context.Context, _ string, _, out any) error {
		// the token refresh underneath this call failed
		m.HandleAuthLost(ctx)
		return fill(out, testUser)
	}
	ctx := context.Background()
	if _, err := m.Login(ctx, domain.LoginCredentials{Password: "correct-horse"}, ""); err != nil {
		t.Fatalf("login: %v", err)
	}

	err := m.UpdateProfile(ctx, map[string]any{"first_name": "Augusta"})

	if !errors.Is(err, session.ErrSessionChanged) {
		t.Fatalf("err = %v, want ErrSessionChanged", err)
	}
	if m.State().Authenticated() {
		t.Fatal("user must stay signed out")
	}
}

// ---- SafeRedirect ----

func TestSafeRedirect(t *testing.T) {
	cases := map[string]string{
		"":                        domain.DashboardPath,
		"/bookings":               "/bookings",
		"/bookings?page=2":        "/bookings?page=2",
		"https://evil.example":    domain.DashboardPath,
		"//evil.example/x":        domain.DashboardPath,
		`/\evil.example`:          domain.DashboardPath,
		"javascript:alert(1)":     domain.DashboardPath,
		"/auth/login":             domain.DashboardPath,
		"/auth/login?redirect=/x": domain.DashboardPath,
	}
	for in, want := range cases {
		if got := session.SafeRedirect(in); got != want {
			t.Errorf("SafeRedirect(%q) = %q, want %q", in, got, want)
		}
	}
}
