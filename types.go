package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-github-auth/provider"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Token lifetimes are load bearing: cookie max-age in the HTTP layer must
// match the embedded JWT expiry, so both sides read these constants.
const (
	// AccessTokenTTL is the lifetime of a stateless access token.
	AccessTokenTTL = 15 * time.Minute
	// RefreshTokenTTL is the lifetime of a refresh token and its stored record.
	RefreshTokenTTL = 30 * 24 * time.Hour
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// TokenPair holds the two signed tokens returned by every login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenService mints, rotates, revokes, and validates the token pair.
type TokenService interface {
	IssuePair(ctx context.Context, accountID uuid.UUID) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Revoke(ctx context.Context, refreshToken string) error
	Validate(tokenString string) (AuthClaims, error)
}

// LoginResult is what the session boundary gets back from a completed login.
type LoginResult struct {
	Pair         *TokenPair
	Account      *Account
	IsNewAccount bool
	Profile      *provider.Profile
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	LoginWithCode(ctx context.Context, code, codeVerifier string) (*LoginResult, error)
	LoginWithProviderToken(ctx context.Context, providerName, providerToken string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string)
	AccountFromToken(ctx context.Context, accessToken string) (*Account, error)
}

// HTTPAuthenticator is the session boundary: it moves tokens in and out of
// cookies and guards protected routes.
type HTTPAuthenticator interface {
	Middleware
	Login(c router.Context, result *LoginResult)
	Refresh(c router.Context, pair *TokenPair)
	Logout(c router.Context)
	MakeClientRouteAuthErrorHandler(optionalAuth bool) func(c router.Context, err error) error
}

type Middleware interface {
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetAccessCookieName() string
	GetRefreshCookieName() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
