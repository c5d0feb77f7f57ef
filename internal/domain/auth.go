package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenInvalid       = errors.New("token is invalid or expired")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrAccountSuspended   = errors.New("account is suspended")
	ErrRateLimited        = errors.New("too many attempts")
)

// RateLimitError carries how long the caller should wait before trying again.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

type AccountStatus string

const (
	AccountActive              AccountStatus = "active"
	AccountInactive            AccountStatus = "inactive"
	AccountSuspended           AccountStatus = "suspended"
	AccountPendingVerification AccountStatus = "pending_verification"
	AccountPasswordExpired     AccountStatus = "password_expired"
)

// User is the backend's authoritative user record.
type User struct {
	ID              string        `json:"id"`
	Email           string        `json:"email"`
	FirstName       string        `json:"first_name"`
	LastName        string        `json:"last_name"`
	IsOrganizer     bool          `json:"is_organizer"`
	IsEmailVerified bool          `json:"is_email_verified"`
	IsPhoneVerified bool          `json:"is_phone_verified"`
	IsMFAEnabled    bool          `json:"is_mfa_enabled"`
	AccountStatus   AccountStatus `json:"account_status"`
	Roles           []Role        `json:"roles"`
	LastLogin       *time.Time    `json:"last_login"`
	Profile         *UserProfile  `json:"profile,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type UserProfile struct {
	OrganizerSlug string `json:"organizer_slug"`
	DisplayName   string `json:"display_name"`
	Bio           string `json:"bio"`
	Phone         string `json:"phone"`
	Website       string `json:"website"`
	Company       string `json:"company"`
	JobTitle      string `json:"job_title"`
	TimezoneName  string `json:"timezone_name"`
	Language      string `json:"language"`
	PublicProfile bool   `json:"public_profile"`
}

type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RoleType string `json:"role_type"`
}

type LoginCredentials struct {
	Email      string `json:"email"                 binding:"required,email"`
	Password   string `json:"password"              binding:"required"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

type RegisterData struct {
	Email           string `json:"email"            binding:"required,email"`
	FirstName       string `json:"first_name"       binding:"required,max=150"`
	LastName        string `json:"last_name"        binding:"required,max=150"`
	Password        string `json:"password"         binding:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" binding:"required,eqfield=Password"`
	TermsAccepted   bool   `json:"terms_accepted"`
}

// AuthResponse is the payload of a successful login or registration.
// Refresh is only present when the backend issues refresh tokens.
type AuthResponse struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	Refresh   string    `json:"refresh,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProfileUpdate is a partial profile change. Nil fields are left alone.
type ProfileUpdate struct {
	FirstName *string      `json:"first_name" binding:"omitempty,max=150"`
	LastName  *string      `json:"last_name"  binding:"omitempty,max=150"`
	Profile   *UserProfile `json:"profile"`
}

// TokenPair is what the backend returns from a token refresh.
type TokenPair struct {
	Token     string    `json:"token"`
	Refresh   string    `json:"refresh,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Credentials is the access/refresh pair held by the token store.
type Credentials struct {
	Access  string
	Refresh string
}

// ValidationError reports per-field problems found after binding.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string { return "validation failed" }
