package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ErlanBelekov/booking-portal/internal/domain"
	"github.com/ErlanBelekov/booking-portal/internal/email"
	"github.com/ErlanBelekov/booking-portal/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultVerifyTTL = 24 * time.Hour
	// Sessions without "remember me" get at most this much refresh lifetime.
	shortRefreshTTL = 24 * time.Hour
)

type AuthConfig struct {
	JWTKey        []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	LoginIPMax    int
	LoginIPWindow time.Duration
	AppBaseURL    string
	BcryptCost    int // zero means bcrypt.DefaultCost
}

type AuthUsecase struct {
	users  repository.UserRepository
	email  email.Sender
	cfg    AuthConfig
	now    func() time.Time
	logger *slog.Logger
}

func NewAuthUsecase(users repository.UserRepository, emailSender email.Sender, cfg AuthConfig, logger *slog.Logger) *AuthUsecase {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthUsecase{
		users:  users,
		email:  emailSender,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With("component", "auth_usecase"),
	}
}

// Login checks the password and issues a token pair. Repeated failures from
// one IP inside the window are answered with a *domain.RateLimitError.
func (u *AuthUsecase) Login(ctx context.Context, creds domain.LoginCredentials, ip string) (*domain.AuthResponse, error) {
	now := u.now()

	if u.cfg.LoginIPMax > 0 && ip != "" {
		n, err := u.users.CountLoginFailures(ctx, ip, now.Add(-u.cfg.LoginIPWindow))
		if err != nil {
			return nil, fmt.Errorf("check login throttle: %w", err)
		}
		if n >= u.cfg.LoginIPMax {
			return nil, &domain.RateLimitError{RetryAfter: u.cfg.LoginIPWindow}
		}
	}

	user, hash, err := u.users.FindByEmail(ctx, strings.TrimSpace(creds.Email))
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)) != nil {
		if recErr := u.users.RecordLoginFailure(ctx, ip, creds.Email, now); recErr != nil {
			u.logger.ErrorContext(ctx, "record login failure", "error", recErr)
		}
		return nil, domain.ErrInvalidCredentials
	}

	if user.AccountStatus == domain.AccountSuspended {
		return nil, domain.ErrAccountSuspended
	}

	if err := u.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("touch last login: %w", err)
	}
	user.LastLogin = &now

	refreshTTL := u.cfg.RefreshTTL
	if !creds.RememberMe && refreshTTL > shortRefreshTTL {
		refreshTTL = shortRefreshTTL
	}
	return u.issue(ctx, user, refreshTTL)
}

// Register creates a pending account, emails a verification link and signs
// the new user in. A failed email is logged, not returned: the account exists.
func (u *AuthUsecase) Register(ctx context.Context, data domain.RegisterData) (*domain.AuthResponse, error) {
	first, last := strings.TrimSpace(data.FirstName), strings.TrimSpace(data.LastName)
	fields := map[string][]string{}
	if first == "" {
		fields["first_name"] = append(fields["first_name"], "This field may not be blank.")
	}
	if last == "" {
		fields["last_name"] = append(fields["last_name"], "This field may not be blank.")
	}
	if !data.TermsAccepted {
		fields["terms_accepted"] = append(fields["terms_accepted"], "You must accept the terms.")
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(data.Password), u.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := u.now()
	user := &domain.User{
		ID:            uuid.NewString(),
		Email:         strings.TrimSpace(data.Email),
		FirstName:     first,
		LastName:      last,
		IsOrganizer:   true,
		AccountStatus: domain.AccountPendingVerification,
		Roles:         []domain.Role{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := u.users.Create(ctx, user, string(hash)); err != nil {
		return nil, err
	}

	if err := u.sendVerification(ctx, user); err != nil {
		u.logger.ErrorContext(ctx, "send verification email", "user_id", user.ID, "error", err)
	}

	return u.issue(ctx, user, u.cfg.RefreshTTL)
}

func (u *AuthUsecase) sendVerification(ctx context.Context, user *domain.User) error {
	rawToken, tokenHash, err := newOpaqueToken()
	if err != nil {
		return err
	}

	if err := u.users.CreateVerificationToken(ctx, user.ID, tokenHash, u.now().Add(defaultVerifyTTL)); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	link := u.cfg.AppBaseURL + domain.VerifyEmailPath + "?token=" + rawToken
	msg, err := email.Verification(user.Email, user.FirstName, link, defaultVerifyTTL)
	if err != nil {
		return err
	}
	if err := u.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("send verification: %w", err)
	}
	return nil
}

// VerifyEmail claims a verification token and returns the now verified user.
func (u *AuthUsecase) VerifyEmail(ctx context.Context, rawToken string) (*domain.User, error) {
	userID, err := u.users.ClaimVerificationToken(ctx, hashToken(rawToken), u.now())
	if err != nil {
		return nil, err
	}
	return u.users.FindByID(ctx, userID)
}

// Refresh rotates the refresh token: the presented one is spent and a new
// pair is returned.
func (u *AuthUsecase) Refresh(ctx context.Context, rawRefresh string) (*domain.TokenPair, error) {
	if rawRefresh == "" {
		return nil, domain.ErrTokenInvalid
	}
	newRaw, newHash, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := u.now()
	userID, err := u.users.RotateRefreshToken(ctx, hashToken(rawRefresh), newHash, now.Add(u.cfg.RefreshTTL), now)
	if err != nil {
		return nil, err
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user.AccountStatus == domain.AccountSuspended {
		return nil, domain.ErrAccountSuspended
	}

	access, expiresAt, err := u.sign(user, now)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{Token: access, Refresh: newRaw, ExpiresAt: expiresAt}, nil
}

// Logout revokes every refresh token the user holds.
func (u *AuthUsecase) Logout(ctx context.Context, userID string) error {
	if err := u.users.RevokeRefreshTokens(ctx, userID, u.now()); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (u *AuthUsecase) Profile(ctx context.Context, userID string) (*domain.User, error) {
	return u.users.FindByID(ctx, userID)
}

// UpdateProfile applies the non-nil fields of upd. Names are trimmed and
// may not end up blank.
func (u *AuthUsecase) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.User, error) {
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	fields := map[string][]string{}
	if upd.FirstName != nil {
		if user.FirstName = strings.TrimSpace(*upd.FirstName); user.FirstName == "" {
			fields["first_name"] = []string{"This field may not be blank."}
		}
	}
	if upd.LastName != nil {
		if user.LastName = strings.TrimSpace(*upd.LastName); user.LastName == "" {
			fields["last_name"] = []string{"This field may not be blank."}
		}
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}
	if upd.Profile != nil {
		user.Profile = upd.Profile
	}
	user.UpdatedAt = u.now()

	if err := u.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

func (u *AuthUsecase) issue(ctx context.Context, user *domain.User, refreshTTL time.Duration) (*domain.AuthResponse, error) {
	now := u.now()
	access, expiresAt, err := u.sign(user, now)
	if err != nil {
		return nil, err
	}

	rawRefresh, refreshHash, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	if err := u.users.CreateRefreshToken(ctx, user.ID, refreshHash, now.Add(refreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.AuthResponse{User: *user, Token: access, Refresh: rawRefresh, ExpiresAt: expiresAt}, nil
}

func (u *AuthUsecase) sign(user *domain.User, now time.Time) (string, time.Time, error) {
	exp := now.Add(u.cfg.AccessTTL)
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.cfg.JWTKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, exp, nil
}

// newOpaqueToken returns a random token and the hash that gets stored.
func newOpaqueToken() (raw, hash string, err error) {
	b := make([]byte, 32)
	if _, err = io.ReadFull(rand.Reader, b); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	raw = hex.EncodeToString(b)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}
