package portal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/ErlanBelekov/booking-portal/internal/apiclient"
	"github.com/ErlanBelekov/booking-portal/internal/apierr"
	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/integration"
	"github.com/ErlanBelekov/booking-portal/internal/session"
	"github.com/ErlanBelekov/booking-portal/internal/transport/http/portal"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSession struct {
	state         session.State
	login         func(ctx context.Context, creds domain.LoginCredentials, redirect string) (string, error)
	register      func(ctx context.Context, data domain.RegisterData) error
	logout        func(ctx context.Context)
	refreshUser   func(ctx context.Context) error
	updateProfile func(ctx context.Context, partial map[string]any) error
}

func (f *fakeSession) State() session.State { return f.state }

func (f *fakeSession) Login(ctx context.Context, creds domain.LoginCredentials, redirect string) (string, error) {
	return f.login(ctx, creds, redirect)
}

func (f *fakeSession) Register(ctx context.Context, data domain.RegisterData) error {
	return f.register(ctx, data)
}

func (f *fakeSession) Logout(ctx context.Context) {
	if f.logout != nil {
		f.logout(ctx)
	}
}

func (f *fakeSession) RefreshUser(ctx context.Context) error {
	if f.refreshUser == nil {
		return nil
	}
	return f.refreshUser(ctx)
}

func (f *fakeSession) UpdateProfile(ctx context.Context, partial map[string]any) error {
	return f.updateProfile(ctx, partial)
}

type fakeBackend struct {
	post     func(ctx context.Context, path string, body, out any) error
	do       func(ctx context.Context, req *apiclient.Request) (*apiclient.Response, error)
	upload   func(ctx context.Context, path string, form apiclient.Form, out any) error
	download func(ctx context.Context, path, filename string) (string, error)
}

func (f *fakeBackend) Post(ctx context.Context, path string, body, out any, _ ...apiclient.Option) error {
	return f.post(ctx, path, body, out)
}

func (f *fakeBackend) Do(ctx context.Context, req *apiclient.Request) (*apiclient.Response, error) {
	return f.do(ctx, req)
}

func (f *fakeBackend) Upload(ctx context.Context, path string, form apiclient.Form, out any, _ ...apiclient.Option) error {
	return f.upload(ctx, path, form, out)
}

func (f *fakeBackend) Download(ctx context.Context, path, filename string, _ ...apiclient.Option) (string, error) {
	return f.download(ctx, path, filename)
}

type fakeHandshake struct {
	initiate func(ctx context.Context, provider string, typ domain.IntegrationType) (string, error)
	complete func(ctx context.Context, p integration.CallbackParams) (*domain.Integration, error)
}

func (f *fakeHandshake) Initiate(ctx context.Context, provider string, typ domain.IntegrationType) (string, error) {
	return f.initiate(ctx, provider, typ)
}

func (f *fakeHandshake) Complete(ctx context.Context, p integration.CallbackParams) (*domain.Integration, error) {
	return f.complete(ctx, p)
}

var alice = &domain.User{ID: "u1", Email: "alice@example.com", FirstName: "Alice"}

func newEngine(s *fakeSession, b *fakeBackend, hs *fakeHandshake) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if b == nil {
		b = &fakeBackend{}
	}
	if hs == nil {
		hs = &fakeHandshake{}
	}
	return portal.NewRouter(logger, portal.NewHandler(s, b, hs, logger), s, false)
}

func serve(r http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSession_SignedIn_ReturnsUser(t *testing.T) {
	r := newEngine(&fakeSession{state: session.State{User: alice}}, nil, nil)

	w := serve(r, http.MethodGet, "/session", "")

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	require.Equal(t, true, data["authenticated"])
	require.Equal(t, false, data["loading"])
}

func TestLogin_Success_CarriesNavigation(t *testing.T) {
	s := &fakeSession{}
	s.login = func(ctx context.Context, creds domain.LoginCredentials, redirect string) (string, error) {
		require.Equal(t, "alice@example.com", creds.Email)
		require.Equal(t, "/bookings", redirect)
		s.state = session.State{User: alice}
		session.ContextNavigator{}.Navigate(ctx, redirect)
		return redirect, nil
	}
	r := newEngine(s, nil, nil)

	w := serve(r, http.MethodPost, "/auth/login?redirect=%2Fbookings",
		`{"email":"alice@example.com","password":"secret123"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "/bookings", w.Header().Get("X-Portal-Redirect"))
	body := decodeBody(t, w)
	require.Equal(t, "/bookings", body["redirect"])
	require.Equal(t, "u1", body["data"].(map[string]any)["id"])
}

func TestLogin_BackendRejects_RelaysFieldErrors(t *testing.T) {
	s := &fakeSession{login: func(context.Context, domain.LoginCredentials, string) (string, error) {
		return "", apierr.FromResponse(http.StatusBadRequest,
			[]byte(`{"error":"Invalid input.","field_errors":{"email":["Enter a valid email address."]}}`))
	}}
	r := newEngine(s, nil, nil)

	w := serve(r, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"secret123"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, "Invalid input.", body["error"])
	require.Contains(t, body["field_errors"], "email")
}

func TestLogin_BackendDown_Returns502(t *testing.T) {
	s := &fakeSession{login: func(context.Context, domain.LoginCredentials, string) (string, error) {
		return "", apierr.FromTransport(errors.New("connection refused"))
	}}
	r := newEngine(s, nil, nil)

	w := serve(r, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"secret123"}`)

	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Equal(t, "connection refused", decodeBody(t, w)["error"])
}

func TestLogin_MissingFields_ReturnsBindError(t *testing.T) {
	r := newEngine(&fakeSession{}, nil, nil)

	w := serve(r, http.MethodPost, "/auth/login", `{"email":""}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout_NavigatesToLogin(t *testing.T) {
	called := false
	s := &fakeSession{state: session.State{User: alice}}
	s.logout = func(ctx context.Context) {
		called = true
		session.ContextNavigator{}.Navigate(ctx, domain.LoginPath)
	}
	r := newEngine(s, nil, nil)

	w := serve(r, http.MethodPost, "/auth/logout", "", "Accept", "application/json")

	require.True(t, called)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, domain.LoginPath, decodeBody(t, w)["redirect"])
}

func TestVerifyEmail_Authenticated_RefreshesUser(t *testing.T) {
	refreshed := false
	s := &fakeSession{
		state:       session.State{User: alice},
		refreshUser: func(context.Context) error { refreshed = true; return nil },
	}
	b := &fakeBackend{post: func(_ context.Context, path string, _, out any) error {
		require.Equal(t, apiclient.VerifyEmailEndpoint, path)
		*out.(*domain.User) = *alice
		return nil
	}}
	r := newEngine(s, b, nil)

	w := serve(r, http.MethodPost, "/auth/verify-email", `{"token":"abc"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, refreshed)
}

func TestProfile_SignedOut_RedirectsToLogin(t *testing.T) {
	r := newEngine(&fakeSession{}, nil, nil)

	w := serve(r, http.MethodGet, "/profile", "")

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/auth/login?redirect=%2Fprofile", w.Header().Get("Location"))
}

func TestProfile_Loading_Returns503(t *testing.T) {
	r := newEngine(&fakeSession{state: session.State{Loading: true}}, nil, nil)

	w := serve(r, http.MethodGet, "/profile", "")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUpdateProfile_ForwardsPartial(t *testing.T) {
	var got map[string]any
	s := &fakeSession{
		state: session.State{User: alice},
		updateProfile: func(_ context.Context, partial map[string]any) error {
			got = partial
			return nil
		},
	}
	r := newEngine(s, nil, nil)

	w := serve(r, http.MethodPatch, "/profile", `{"first_name":"Alicia"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"first_name": "Alicia"}, got)
}

func TestConnect_PageLoad_RedirectsToProvider(t *testing.T) {
	hs := &fakeHandshake{initiate: func(_ context.Context, provider string, typ domain.IntegrationType) (string, error) {
		require.Equal(t, "google", provider)
		require.Equal(t, domain.IntegrationType("calendar"), typ)
		return "https://accounts.example.com/auth?state=s1", nil
	}}
	r := newEngine(&fakeSession{state: session.State{User: alice}}, nil, hs)

	w := serve(r, http.MethodGet, "/integrations/connect?provider=google&integration_type=calendar", "")

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "https://accounts.example.com/auth?state=s1", w.Header().Get("Location"))
}

func TestConnect_JSON_ReturnsURL(t *testing.T) {
	hs := &fakeHandshake{initiate: func(context.Context, string, domain.IntegrationType) (string, error) {
		return "https://accounts.example.com/auth", nil
	}}
	r := newEngine(&fakeSession{state: session.State{User: alice}}, nil, hs)

	w := serve(r, http.MethodPost, "/integrations/connect",
		`{"provider":"zoom","integration_type":"video"}`, "Accept", "application/json")

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	require.Equal(t, "https://accounts.example.com/auth", data["authorization_url"])
}

func TestCallback_ProviderDenied_RedirectsWithMessage(t *testing.T) {
	hs := &fakeHandshake{complete: func(_ context.Context, p integration.CallbackParams) (*domain.Integration, error) {
		return nil, errors.Join(integration.ErrProviderDenied, errors.New(p.Error))
	}}
	r := newEngine(&fakeSession{state: session.State{User: alice}}, nil, hs)

	w := serve(r, http.MethodGet, "/integrations/callback?error=access_denied", "")

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, domain.IntegrationsPath, loc.Path)
	require.Equal(t, "OAuth error: access_denied", loc.Query().Get("error"))
}

func TestCallback_StateMismatch_JSON400(t *testing.T) {
	hs := &fakeHandshake{complete: func(context.Context, integration.CallbackParams) (*domain.Integration, error) {
		return nil, domain.ErrOAuthStateMismatch
	}}
	r := newEngine(&fakeSession{state: session.State{User: alice}}, nil, hs)

	w := serve(r, http.MethodGet, "/integrations/callback?code=c&state=forged", "", "Accept", "application/json")

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Invalid state parameter", decodeBody(t, w)["error"])
}

func TestCallback_Success_RedirectsToIntegrations(t *testing.T) {
	hs := &fakeHandshake{complete: func(_ context.Context, p integration.CallbackParams) (*domain.Integration, error) {
		require.Equal(t, "c", p.Code)
		require.Equal(t, "s", p.State)
		return &domain.Integration{Provider: "google"}, nil
	}}
	r := newEngine(&fakeSession{state: session.State{User: alice}}, nil, hs)

	w := serve(r, http.MethodGet, "/integrations/callback?code=c&state=s", "")

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/integrations?connected=google", w.Header().Get("Location"))
}

func TestProxy_ReservedPath_Returns404(t *testing.T) {
	b := &fakeBackend{do: func(context.Context, *apiclient.Request) (*apiclient.Response, error) {
		t.Fatal("reserved path must not reach the backend")
		return nil, nil
	}}
	r := newEngine(&fakeSession{}, b, nil)

	w := serve(r, http.MethodPost, apiclient.LoginEndpoint, `{}`)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProxy_PassesStatusAndBody(t *testing.T) {
	b := &fakeBackend{do: func(_ context.Context, req *apiclient.Request) (*apiclient.Response, error) {
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "/api/v1/events/bookings/", req.Path)
		require.Equal(t, "2", req.Query.Get("page"))
		require.JSONEq(t, `{"slot":"s1"}`, string(req.Body))
		require.False(t, req.Binary)
		return &apiclient.Response{
			StatusCode: http.StatusConflict,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       []byte(`{"error":"Slot taken."}`),
		}, nil
	}}
	r := newEngine(&fakeSession{state: session.State{User: alice}}, b, nil)

	w := serve(r, http.MethodPost, "/api/v1/events/bookings/?page=2", `{"slot":"s1"}`)

	require.Equal(t, http.StatusConflict, w.Code)
	require.JSONEq(t, `{"error":"Slot taken."}`, w.Body.String())
}

func TestProxy_Multipart_KeepsBoundary(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "contacts.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("name,email\nAda,ada@example.com\n"))
	require.NoError(t, mw.Close())

	b := &fakeBackend{do: func(_ context.Context, req *apiclient.Request) (*apiclient.Response, error) {
		require.Equal(t, mw.FormDataContentType(), req.ContentType)
		_, params, err := mime.ParseMediaType(req.ContentType)
		require.NoError(t, err)
		form, err := multipart.NewReader(bytes.NewReader(req.Body), params["boundary"]).ReadForm(1 << 20)
		require.NoError(t, err)
		require.Len(t, form.File["file"], 1)
		return &apiclient.Response{StatusCode: http.StatusOK, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{}`)}, nil
	}}
	r := newEngine(&fakeSession{state: session.State{User: alice}}, b, nil)

	w := serve(r, http.MethodPost, apiclient.ContactsImportEndpoint, body.String(), "Content-Type", mw.FormDataContentType())

	require.Equal(t, http.StatusOK, w.Code)
}

func TestProxy_OctetStream_AsksForBinary(t *testing.T) {
	b := &fakeBackend{do: func(_ context.Context, req *apiclient.Request) (*apiclient.Response, error) {
		require.True(t, req.Binary)
		return &apiclient.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte{0x1, 0x2}}, nil
	}}
	r := newEngine(&fakeSession{}, b, nil)

	w := serve(r, http.MethodGet, "/api/v1/contacts/export/", "", "Accept", "application/octet-stream")

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	require.Equal(t, []byte{0x1, 0x2}, w.Body.Bytes())
}

func TestProxy_NavigationDuringCall_SetsHeader(t *testing.T) {
	b := &fakeBackend{do: func(ctx context.Context, _ *apiclient.Request) (*apiclient.Response, error) {
		// the session was lost mid-call
		session.ContextNavigator{}.Navigate(ctx, domain.LoginPath)
		return &apiclient.Response{
			StatusCode: http.StatusUnauthorized,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       []byte(`{"error":"Session expired."}`),
		}, nil
	}}
	r := newEngine(&fakeSession{}, b, nil)

	w := serve(r, http.MethodGet, "/api/v1/users/profile/", "")

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, domain.LoginPath, w.Header().Get("X-Portal-Redirect"))
}
