package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ErlanBelekov/booking-portal/config"
	"github.com/ErlanBelekov/booking-portal/internal/apiclient"
	"github.com/ErlanBelekov/booking-portal/internal/health"
	"github.com/ErlanBelekov/booking-portal/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/booking-portal/internal/integration"
	ctxlog "github.com/ErlanBelekov/booking-portal/internal/log"
	"github.com/ErlanBelekov/booking-portal/internal/metrics"
	"github.com/ErlanBelekov/booking-portal/internal/session"
	"github.com/ErlanBelekov/booking-portal/internal/tokenstore"
	"github.com/ErlanBelekov/booking-portal/internal/transport/http/portal"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != config.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	storage, db, err := openTokenStorage(ctx, cfg)
	if err != nil {
		stop()
		log.Fatalf("token store: %v", err)
	}
	if db != nil {
		defer db.Close()
	}
	tokens := tokenstore.New(storage, logger)

	// The manager needs the client and the client reports lost sessions to
	// the manager.
	var mgr *session.Manager
	client, err := apiclient.New(apiclient.Config{
		BaseURL:        cfg.APIBaseURL,
		Timeout:        time.Duration(cfg.RequestTimeoutSec) * time.Second,
		AuthScheme:     cfg.AuthScheme,
		CSRFCookieName: cfg.CSRFCookieName,
		CSRFHeaderName: cfg.CSRFHeaderName,
		DownloadDir:    cfg.DownloadDir,
		Diagnostics:    !cfg.Production(),
		OnAuthLost:     func(ctx context.Context) { mgr.HandleAuthLost(ctx) },
	}, tokens, logger)
	if err != nil {
		stop()
		log.Fatalf("api client: %v", err)
	}
	mgr = session.New(client, tokens, session.ContextNavigator{}, logger,
		session.WithRevalidateSchedule(cfg.RevalidateSchedule))

	oauth := integration.New(client, tokenstore.NewMemoryStorage(), cfg.AppBaseURL+"/integrations/callback", logger)

	metrics.Register()
	checker := health.NewChecker(client, logger, prometheus.DefaultRegisterer)
	if db != nil {
		checker.Add("token_store", health.PingFunc(db.PingContext))
	}

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           portal.NewRouter(logger, portal.NewHandler(mgr, client, oauth, logger), mgr,
			strings.HasPrefix(cfg.AppBaseURL, "https")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("portal started", "port", cfg.Port, "api", cfg.APIBaseURL, "token_store", cfg.TokenStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	// Guarded routes answer 503 until this resolves.
	if err := mgr.Init(ctx); err != nil {
		logger.Error("session init", "error", err)
	}

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	mgr.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

// openTokenStorage returns the configured credential storage. The database
// handle is non-nil only for the sqlite store.
func openTokenStorage(ctx context.Context, cfg *config.Config) (tokenstore.Storage, *sql.DB, error) {
	if cfg.TokenStore == "memory" {
		return tokenstore.NewMemoryStorage(), nil, nil
	}

	path := cfg.TokenStorePath
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, nil, fmt.Errorf("locate config dir: %w", err)
		}
		name := "tokens.json"
		if cfg.TokenStore == "sqlite" {
			name = "tokens.db"
		}
		path = filepath.Join(dir, "booking-portal", name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create token dir: %w", err)
	}

	if cfg.TokenStore == "sqlite" {
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewSlotStorage(db), db, nil
	}

	file, err := tokenstore.NewFileStorage(path)
	if err != nil {
		return nil, nil, err
	}
	return file, nil, nil
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == config.EnvLocal {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
