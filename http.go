package auth

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-github-auth/middleware/jwtware"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator is the session boundary: tokens live in HTTP-only
// cookies, the browser never sees them from script. Cookie lifetimes track
// the token lifetimes so a cookie never outlives the JWT inside it.
type RouteAuthenticator struct {
	auth             Authenticator
	cfg              Config
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

var _ HTTPAuthenticator = (*RouteAuthenticator)(nil)

func (a *RouteAuthenticator) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return jwtware.New(jwtware.Config{
			ErrorHandler: errorHandler,
			SigningKey: jwtware.SigningKey{
				Key:    []byte(cfg.GetSigningKey()),
				JWTAlg: cfg.GetSigningMethod(),
			},
			AuthScheme:      cfg.GetAuthScheme(),
			ContextKey:      cfg.GetContextKey(),
			TokenLookup:     cfg.GetTokenLookup(),
			ContextEnricher: ContextEnricherAdapter,
		})
	}
}

// Login sets both cookies after a completed login.
func (a *RouteAuthenticator) Login(c router.Context, result *LoginResult) {
	a.setTokenCookies(c, result.Pair)
}

// Refresh swaps both cookies for the rotated pair.
func (a *RouteAuthenticator) Refresh(c router.Context, pair *TokenPair) {
	a.setTokenCookies(c, pair)
}

// Logout clears both cookies. Server-side revocation happens in the
// controller before this; clearing cookies is all the boundary does.
func (a *RouteAuthenticator) Logout(c router.Context) {
	a.cookieDel(c, a.cfg.GetAccessCookieName())
	a.cookieDel(c, a.cfg.GetRefreshCookieName())
}

// AccessToken reads the access token from the cookie, falling back to the
// Authorization header for non-browser clients.
func (a *RouteAuthenticator) AccessToken(c router.Context) string {
	if v := c.Cookies(a.cfg.GetAccessCookieName()); v != "" {
		return v
	}

	header := c.GetString("Authorization", "")
	scheme := a.cfg.GetAuthScheme()
	if scheme == "" {
		scheme = "Bearer"
	}

	prefix := scheme + " "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}

	return ""
}

// RefreshToken reads the refresh token cookie.
func (a *RouteAuthenticator) RefreshToken(c router.Context) string {
	return c.Cookies(a.cfg.GetRefreshCookieName())
}

func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding: %s", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) setTokenCookies(c router.Context, pair *TokenPair) {
	if pair == nil {
		return
	}

	a.setCookieToken(c, a.cfg.GetAccessCookieName(), pair.AccessToken, AccessTokenTTL)
	a.setCookieToken(c, a.cfg.GetRefreshCookieName(), pair.RefreshToken, RefreshTokenTTL)
}

func (a *RouteAuthenticator) setCookieToken(c router.Context, name, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error %s (%s) at %s",
		richErr.Message,
		richErr.TextCode,
		c.OriginalURL(),
	)

	return c.JSON(http.StatusUnauthorized, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
		},
	})
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler %s (%s): %s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.JSON(richErr.Code, map[string]any{
			"error": map[string]any{
				"message": richErr.Message,
			},
		})
	}
}
