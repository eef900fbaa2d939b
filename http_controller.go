package auth

import (
	"net/http"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes the auth flows over HTTP. Every handler is a thin
// shim: parse and validate the payload, call the Auther, move tokens through
// the RouteAuthenticator, serialize the result.
type HTTPController struct {
	Logger       Logger
	Repo         RepositoryManager
	Auther       *Auther
	Boundary     *RouteAuthenticator
	Config       Config
	ErrorHandler func(ctx router.Context, err error) error

	// SuccessRedirect is where the redirect flow lands after the callback.
	SuccessRedirect string
	// ErrorRedirect is where the redirect flow lands on provider errors.
	ErrorRedirect string
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithSuccessRedirect(path string) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.SuccessRedirect = path
		return c
	}
}

func WithErrorRedirect(path string) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.ErrorRedirect = path
		return c
	}
}

func NewHTTPController(auther *Auther, boundary *RouteAuthenticator, repo RepositoryManager, cfg Config, opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger:          defLogger{},
		Repo:            repo,
		Auther:          auther,
		Boundary:        boundary,
		Config:          cfg,
		SuccessRedirect: "/",
		ErrorRedirect:   "/login?error=auth_failed",
	}

	c.ErrorHandler = c.handleError

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Boundary == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	return c
}

// RegisterRoutes mounts the auth endpoints. The group is expected to be
// rooted at /auth. The redirect flow gets a literal path per registered
// provider (/github, /github/callback) rather than a :provider parameter,
// so the routes cannot shadow fixed paths mounted on the same group later.
func (a *HTTPController) RegisterRoutes(group RouteRegistrar, protected router.MiddlewareFunc) {
	group.Post("/exchange-code", a.ExchangeCode)
	group.Post("/exchange-token", a.ExchangeToken)
	group.Post("/refresh", a.RefreshSession)
	group.Post("/logout", a.LogOut)
	group.Get("/me", a.Me, protected)

	for _, name := range a.Auther.Providers() {
		group.Get("/"+name+"/callback", a.Callback)
		group.Get("/"+name, a.beginAuthHandler(name))
	}
}

// ExchangeCodeRequest is the payload for the client driven PKCE flow.
type ExchangeCodeRequest struct {
	Code         string `form:"code" json:"code"`
	CodeVerifier string `form:"code_verifier" json:"code_verifier"`
}

// Validate will run validation rules
func (r ExchangeCodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Code,
			validation.Required,
		),
	)
}

// ExchangeCode trades an authorization code for a session. Tokens travel in
// cookies; the body carries the account so the client can render it.
func (a *HTTPController) ExchangeCode(ctx router.Context) error {
	payload := new(ExchangeCodeRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, "failed to parse payload", err)
	}

	if err := payload.Validate(); err != nil {
		return a.badRequest(ctx, "invalid payload", err)
	}

	result, err := a.Auther.LoginWithCode(ctx.Context(), payload.Code, payload.CodeVerifier)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Boundary.Login(ctx, result)

	return ctx.JSON(router.StatusOK, loginResponse(result))
}

// ExchangeTokenRequest is the payload for clients that already hold a
// provider access token.
type ExchangeTokenRequest struct {
	Provider    string `form:"provider" json:"provider"`
	AccessToken string `form:"access_token" json:"access_token"`
}

// Validate will run validation rules
func (r ExchangeTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.AccessToken,
			validation.Required,
		),
	)
}

// ExchangeToken logs in with a provider issued access token, skipping the
// code exchange.
func (a *HTTPController) ExchangeToken(ctx router.Context) error {
	payload := new(ExchangeTokenRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badRequest(ctx, "failed to parse payload", err)
	}

	if err := payload.Validate(); err != nil {
		return a.badRequest(ctx, "invalid payload", err)
	}

	result, err := a.Auther.LoginWithProviderToken(ctx.Context(), payload.Provider, payload.AccessToken)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Boundary.Login(ctx, result)

	return ctx.JSON(router.StatusOK, loginResponse(result))
}

// RefreshRequest allows non-browser clients to send the refresh token in the
// body instead of the cookie.
type RefreshRequest struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

// RefreshSession rotates the refresh token and swaps both cookies.
func (a *HTTPController) RefreshSession(ctx router.Context) error {
	refreshToken := a.Boundary.RefreshToken(ctx)

	if refreshToken == "" {
		payload := new(RefreshRequest)
		if err := ctx.Bind(payload); err == nil {
			refreshToken = payload.RefreshToken
		}
	}

	if refreshToken == "" {
		return a.unauthorized(ctx, ErrInvalidToken)
	}

	pair, err := a.Auther.Refresh(ctx.Context(), refreshToken)
	if err != nil {
		a.Boundary.Logout(ctx)
		return a.ErrorHandler(ctx, err)
	}

	a.Boundary.Refresh(ctx, pair)

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "refreshed",
	})
}

// LogOut revokes the refresh token and clears both cookies. Always succeeds.
func (a *HTTPController) LogOut(ctx router.Context) error {
	if refreshToken := a.Boundary.RefreshToken(ctx); refreshToken != "" {
		a.Auther.Logout(ctx.Context(), refreshToken)
	}

	a.Boundary.Logout(ctx)

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "logged_out",
	})
}

// Me returns the account bound to the validated access token.
func (a *HTTPController) Me(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return a.unauthorized(ctx, err)
	}

	account, err := a.Repo.Accounts().GetByID(ctx.Context(), session.GetAccountID())
	if err != nil {
		return a.ErrorHandler(ctx, ErrAccountNotFound)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"account": accountResponse(account),
	})
}

// ListAccounts returns the user directory. Mount it behind the protected
// middleware; it is a separate method so callers choose the route.
func (a *HTTPController) ListAccounts(ctx router.Context) error {
	records, total, err := a.Repo.Accounts().List(ctx.Context())
	if err != nil {
		return a.ErrorHandler(ctx, wrapStorageError(err, "failed to list accounts"))
	}

	response := make([]map[string]any, 0, len(records))
	for _, record := range records {
		response = append(response, accountResponse(record))
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"accounts": response,
		"total":    total,
	})
}

// BeginAuth starts the server initiated redirect flow, reading the provider
// from the :provider route parameter. RegisterRoutes mounts literal paths
// through beginAuthHandler instead; this variant serves manual mounting.
func (a *HTTPController) BeginAuth(ctx router.Context) error {
	return a.beginAuth(ctx, ctx.Param("provider"))
}

func (a *HTTPController) beginAuthHandler(providerName string) router.HandlerFunc {
	return func(ctx router.Context) error {
		return a.beginAuth(ctx, providerName)
	}
}

func (a *HTTPController) beginAuth(ctx router.Context, providerName string) error {
	redirectURL := ctx.Query("redirect_url")
	if redirectURL == "" {
		redirectURL = a.SuccessRedirect
	}

	authURL, err := a.Auther.BeginAuth(providerName, redirectURL)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(authURL, http.StatusTemporaryRedirect)
}

// Callback completes the redirect flow on the provider callback.
func (a *HTTPController) Callback(ctx router.Context) error {
	code := ctx.Query("code")
	state := ctx.Query("state")

	if errCode := ctx.Query("error"); errCode != "" {
		redirectURL := appendQueryParam(a.ErrorRedirect, "oauth_error", errCode)
		if errDesc := ctx.Query("error_description"); errDesc != "" {
			redirectURL = appendQueryParam(redirectURL, "desc", errDesc)
		}
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	if code == "" || state == "" {
		redirectURL := appendQueryParam(a.ErrorRedirect, "error", "missing_params")
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	result, err := a.Auther.CompleteAuth(ctx.Context(), state, code)
	if err != nil {
		a.Logger.Error("Callback complete auth error: %v", err)
		redirectURL := appendQueryParam(a.ErrorRedirect, "error", "auth_failed")
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	a.Boundary.Login(ctx, result)

	redirectURL := a.SuccessRedirect
	if result.Profile != nil {
		if v, ok := result.Profile.Raw["redirect_url"].(string); ok && v != "" {
			redirectURL = v
		}
	}

	if result.IsNewAccount {
		redirectURL = appendQueryParam(redirectURL, "new_account", "true")
	}

	return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
}

func (a *HTTPController) badRequest(ctx router.Context, msg string, err error) error {
	a.Logger.Error("Controller bad request %s: %v", msg, err)
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message": msg,
			"detail":  err.Error(),
		},
	})
}

func (a *HTTPController) unauthorized(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = ErrInvalidToken
	}

	return ctx.JSON(router.StatusUnauthorized, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
		},
	})
}

func (a *HTTPController) handleError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	a.Logger.Error("Controller error %s (%s) %s",
		richErr.Message,
		richErr.Category,
		richErr.TextCode,
	)

	status := richErr.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}

	return ctx.JSON(status, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
		},
	})
}

func loginResponse(result *LoginResult) map[string]any {
	return map[string]any{
		"account":     accountResponse(result.Account),
		"new_account": result.IsNewAccount,
	}
}

func accountResponse(account *Account) map[string]any {
	if account == nil {
		return nil
	}

	return map[string]any{
		"id":           account.ID,
		"external_id":  account.ExternalID,
		"provider":     account.Provider,
		"email":        account.Email,
		"username":     account.Username,
		"display_name": account.DisplayName,
		"avatar_url":   account.AvatarURL,
		"profile_url":  account.ProfileURL,
		"created_at":   account.CreatedAt,
	}
}

func appendQueryParam(rawURL, key, value string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
