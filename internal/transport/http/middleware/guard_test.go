package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/session"
	"github.com/ErlanBelekov/booking-portal/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

type fixedState session.State

func (f fixedState) State() session.State { return session.State(f) }

func newGuardedEngine(st session.State) *gin.Engine {
	r := gin.New()
	h := func(c *gin.Context) {
		u := c.MustGet("user").(*domain.User)
		c.String(http.StatusOK, "hello %s", u.FirstName)
	}
	r.GET("/bookings", middleware.RequireSession(fixedState(st)), h)
	r.GET("/api/v1/events/bookings/", middleware.RequireSession(fixedState(st)), h)
	return r
}

func TestRequireSession_Loading_Returns503WithoutRedirect(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	newGuardedEngine(session.State{Loading: true}).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if w.Header().Get("Location") != "" {
		t.Fatal("must not redirect while loading")
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Fatalf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	if body := w.Body.String(); body != `{"status":"loading"}` {
		t.Fatalf("body = %s", body)
	}
}

func TestRequireSession_SignedOut_RedirectsToLoginWithPath(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bookings?page=2", nil)
	newGuardedEngine(session.State{}).ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/auth/login?redirect=%2Fbookings%3Fpage%3D2" {
		t.Fatalf("Location = %s", loc)
	}
}

func TestRequireSession_SignedOutAPI_Returns401JSON(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/bookings/", nil)
	newGuardedEngine(session.State{}).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("Content-Type = %s", ct)
	}
}

func TestRequireSession_SignedIn_PassesAndSetsUser(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bookings", nil)
	newGuardedEngine(session.State{User: &domain.User{FirstName: "Ada"}}).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "hello Ada" {
		t.Fatalf("body = %q", got)
	}
}
