package domain

import (
	"errors"
	"time"
)

var (
	ErrOAuthStateMismatch = errors.New("oauth state mismatch")
	ErrOAuthExpired       = errors.New("oauth handshake expired")
	ErrOAuthMissingParams = errors.New("missing code or state")
	ErrUnknownProvider    = errors.New("unknown integration provider")
)

// IntegrationType is what a connected provider is used for.
type IntegrationType string

const (
	IntegrationCalendar IntegrationType = "calendar"
	IntegrationVideo    IntegrationType = "video"
)

// OAuthInitiation is the backend's answer to starting a provider handshake.
type OAuthInitiation struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// OAuthCallback is relayed to the backend once the provider redirects back.
type OAuthCallback struct {
	Provider string          `json:"provider" binding:"required"`
	Type     IntegrationType `json:"integration_type" binding:"required,oneof=calendar video"`
	Code     string          `json:"code" binding:"required"`
	State    string          `json:"state" binding:"required"`
}

// Integration is a connected third-party account.
type Integration struct {
	ID       string          `json:"id"`
	Provider string          `json:"provider"`
	Type     IntegrationType `json:"integration_type"`
	Active   bool            `json:"is_active"`
}

// OAuthInitiateRequest asks the backend to start a provider handshake.
type OAuthInitiateRequest struct {
	Provider    string          `json:"provider" binding:"required"`
	Type        IntegrationType `json:"integration_type" binding:"required,oneof=calendar video"`
	RedirectURI string          `json:"redirect_uri" binding:"required,url"`
}

// OAuthState is a pending handshake as the backend remembers it.
type OAuthState struct {
	State       string
	UserID      string
	Provider    string
	Type        IntegrationType
	RedirectURI string
	ExpiresAt   time.Time
}

// IntegrationGrant is the provider credential stored once a handshake completes.
type IntegrationGrant struct {
	UserID       string
	Provider     string
	Type         IntegrationType
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}
