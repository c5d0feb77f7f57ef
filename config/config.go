package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	EnvLocal      = "local"
	EnvStaging    = "staging"
	EnvProduction = "production"
)

// Config drives the portal process (cmd/portal).
type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"3000"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	APIBaseURL        string `env:"API_BASE_URL"        envDefault:"http://localhost:8000" validate:"required,url"`
	AppBaseURL        string `env:"APP_BASE_URL"        envDefault:"http://localhost:3000" validate:"required,url"`
	RequestTimeoutSec int    `env:"REQUEST_TIMEOUT_SEC" envDefault:"30"                    validate:"min=1,max=300"`
	AuthScheme        string `env:"AUTH_SCHEME"         envDefault:"Token"                 validate:"required,oneof=Token Bearer"`
	CSRFCookieName    string `env:"CSRF_COOKIE_NAME"    envDefault:"csrftoken"             validate:"required"`
	CSRFHeaderName    string `env:"CSRF_HEADER_NAME"    envDefault:"X-CSRFToken"           validate:"required"`

	TokenStore     string `env:"TOKEN_STORE"      envDefault:"file" validate:"oneof=memory file sqlite"`
	TokenStorePath string `env:"TOKEN_STORE_PATH"` // defaults under os.UserConfigDir
	DownloadDir    string `env:"DOWNLOAD_DIR"     envDefault:"."`

	// Empty disables background revalidation.
	RevalidateSchedule string `env:"SESSION_REVALIDATE_SCHEDULE" envDefault:"@every 5m"`
}

// DevAPIConfig drives the in-memory development backend (cmd/devapi).
type DevAPIConfig struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8000"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug" validate:"oneof=debug info warn error"`

	JWTSecret       string `env:"JWT_SECRET,required" validate:"required,min=32"`
	AccessTTLMin    int    `env:"ACCESS_TOKEN_TTL_MIN"  envDefault:"15"  validate:"min=1,max=1440"`
	RefreshTTLHours int    `env:"REFRESH_TOKEN_TTL_HOURS" envDefault:"168" validate:"min=1,max=8760"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
	AppBaseURL   string `env:"APP_BASE_URL"   envDefault:"http://localhost:3000" validate:"required,url"`

	// ":memory:" keeps everything in process memory.
	DBPath    string `env:"DB_PATH"    envDefault:":memory:"`
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:8000" validate:"required,url"`

	LoginIPMax       int `env:"LOGIN_IP_MAX"        envDefault:"5"  validate:"min=1"`
	LoginIPWindowSec int `env:"LOGIN_IP_WINDOW_SEC" envDefault:"60" validate:"min=1"`

	OAuthClientID     string `env:"OAUTH_CLIENT_ID"     envDefault:"devapi"`
	OAuthClientSecret string `env:"OAUTH_CLIENT_SECRET" envDefault:"devapi-secret"`

	ReapIntervalSec int `env:"REAP_INTERVAL_SEC" envDefault:"300" validate:"min=1"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadDevAPI() (*DevAPIConfig, error) {
	cfg := &DevAPIConfig{}
	if err := load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(cfg any) error {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level { return parseLevel(c.LogLevel) }

// Production reports whether request diagnostics must stay off.
func (c *Config) Production() bool { return c.Env == EnvProduction }

func (c *DevAPIConfig) SlogLevel() slog.Level { return parseLevel(c.LogLevel) }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
