package metrics_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/booking-portal/internal/health"
	"github.com/ErlanBelekov/booking-portal/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func serve(t *testing.T, p health.Pinger, path string) *httptest.ResponseRecorder {
	t.Helper()
	checker := health.NewChecker(p, slog.Default(), prometheus.NewRegistry())
	srv := metrics.NewServer(":0", checker)

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestServer_Livez_AlwaysOK(t *testing.T) {
	w := serve(t, fakePinger{err: errors.New("down")}, "/livez")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestServer_Readyz_BackendDown_Returns503(t *testing.T) {
	w := serve(t, fakePinger{err: errors.New("connection refused")}, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestServer_Readyz_BackendUp_Returns200(t *testing.T) {
	w := serve(t, fakePinger{}, "/readyz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
