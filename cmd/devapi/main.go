package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ErlanBelekov/booking-portal/config"
	"github.com/ErlanBelekov/booking-portal/internal/email"
	"github.com/ErlanBelekov/booking-portal/internal/infrastructure/sqlite"
	ctxlog "github.com/ErlanBelekov/booking-portal/internal/log"
	"github.com/ErlanBelekov/booking-portal/internal/scheduler"
	httptransport "github.com/ErlanBelekov/booking-portal/internal/transport/http"
	"github.com/ErlanBelekov/booking-portal/internal/transport/http/handler"
	"github.com/ErlanBelekov/booking-portal/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"golang.org/x/oauth2"
)

func main() {
	cfg, err := config.LoadDevAPI()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != config.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Users
	userRepo := sqlite.NewUserRepository(db)
	sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	authUsecase := usecase.NewAuthUsecase(userRepo, sender, usecase.AuthConfig{
		JWTKey:        []byte(cfg.JWTSecret),
		AccessTTL:     time.Duration(cfg.AccessTTLMin) * time.Minute,
		RefreshTTL:    time.Duration(cfg.RefreshTTLHours) * time.Hour,
		LoginIPMax:    cfg.LoginIPMax,
		LoginIPWindow: time.Duration(cfg.LoginIPWindowSec) * time.Second,
		AppBaseURL:    cfg.AppBaseURL,
	}, logger)

	// Integrations, against the built-in stand-in provider
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	integrationUsecase := usecase.NewIntegrationUsecase(sqlite.NewIntegrationRepository(db),
		oauth2.Endpoint{AuthURL: publicURL + "/dev/oauth/authorize", TokenURL: publicURL + "/dev/oauth/token"},
		cfg.OAuthClientID, cfg.OAuthClientSecret, usecase.DefaultProviders, logger)

	// Contacts
	contactsUsecase := usecase.NewContactsUsecase(sqlite.NewContactRepository(db), logger)

	router := httptransport.NewRouter(logger, httptransport.Handlers{
		Auth:         handler.NewAuthHandler(authUsecase, logger),
		Integrations: handler.NewIntegrationHandler(integrationUsecase, logger),
		Contacts:     handler.NewContactsHandler(contactsUsecase, logger),
		Provider:     handler.NewProviderHandler(cfg.OAuthClientID, cfg.OAuthClientSecret, logger),
	}, userRepo, []byte(cfg.JWTSecret), httptransport.CSRFConfig{
		CookieName: "csrftoken",
		HeaderName: "X-CSRFToken",
		Secure:     strings.HasPrefix(publicURL, "https"),
	})

	reaper := scheduler.NewReaper(sqlite.NewExpiryRepository(db), logger,
		time.Duration(cfg.ReapIntervalSec)*time.Second,
		time.Duration(cfg.LoginIPWindowSec)*time.Second)
	go reaper.Start(ctx)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("dev backend started", "port", cfg.Port, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
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
