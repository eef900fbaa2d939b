package auth

import (
	"context"
	"sort"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-github-auth/provider"
	"github.com/goliatone/go-repository-bun"
)

// Auther orchestrates the full login flow: provider exchange, profile
// upsert, and token issuance. It is the only place these three concerns
// meet; the HTTP layer below it never talks to a provider or repository
// directly.
type Auther struct {
	providers       map[string]provider.Provider
	defaultProvider string
	repo            RepositoryManager
	tokenService    TokenService
	stateManager    provider.StateManager
	activitySink    ActivitySink
	logger          Logger
}

// NewAuthenticator returns a new Authenticator wired to the given provider.
// The provider passed here becomes the default for LoginWithCode.
func NewAuthenticator(p provider.Provider, repo RepositoryManager, tokenService TokenService) *Auther {
	a := &Auther{
		providers:    map[string]provider.Provider{},
		repo:         repo,
		tokenService: tokenService,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	if p != nil {
		a.providers[p.Name()] = p
		a.defaultProvider = p.Name()
	}

	return a
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithProvider registers an additional identity provider.
func (s *Auther) WithProvider(p provider.Provider) *Auther {
	if p != nil {
		s.providers[p.Name()] = p
	}
	return s
}

// WithStateManager enables the server initiated redirect flow.
func (s *Auther) WithStateManager(sm provider.StateManager) *Auther {
	s.stateManager = sm
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Providers returns the registered provider names in sorted order.
func (s *Auther) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoginWithCode completes a client driven PKCE flow: the SPA already ran the
// redirect dance and hands us the authorization code plus its verifier.
func (s *Auther) LoginWithCode(ctx context.Context, code, codeVerifier string) (*LoginResult, error) {
	p, err := s.lookupProvider(s.defaultProvider)
	if err != nil {
		return nil, err
	}

	var opts []provider.ExchangeOption
	if codeVerifier != "" {
		opts = append(opts, provider.WithCodeVerifier(codeVerifier))
	}

	token, err := p.Exchange(ctx, code, opts...)
	if err != nil {
		s.logger.Error("LoginWithCode exchange failed for %s: %v", p.Name(), err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"provider": p.Name(),
			"stage":    "exchange",
		})
		return nil, s.upstreamError(provider.ErrTokenExchangeFailed, p.Name(), "exchange", err)
	}

	return s.login(ctx, p, token)
}

// LoginWithProviderToken completes a login for a client that already holds a
// provider access token, skipping the code exchange.
func (s *Auther) LoginWithProviderToken(ctx context.Context, providerName, providerToken string) (*LoginResult, error) {
	p, err := s.lookupProvider(providerName)
	if err != nil {
		return nil, err
	}

	return s.login(ctx, p, &provider.Token{
		AccessToken: providerToken,
		TokenType:   "bearer",
	})
}

// BeginAuth starts the server initiated redirect flow: it generates a PKCE
// verifier, folds it into an encrypted state token, and returns the provider
// authorization URL to redirect the user to.
func (s *Auther) BeginAuth(providerName, redirectURL string) (string, error) {
	if s.stateManager == nil {
		return "", errors.New("redirect flow requires a state manager", errors.CategoryInternal)
	}

	p, err := s.lookupProvider(providerName)
	if err != nil {
		return "", err
	}

	verifier, err := provider.GenerateCodeVerifier()
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate code verifier")
	}

	state, err := s.stateManager.Encode(&provider.State{
		Provider:     p.Name(),
		CodeVerifier: verifier,
		RedirectURL:  redirectURL,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to encode state")
	}

	challenge := provider.ComputeCodeChallenge(verifier)

	return p.AuthCodeURL(state, provider.WithPKCE(challenge, "S256")), nil
}

// CompleteAuth finishes the redirect flow on the provider callback. The
// state token restores the PKCE verifier minted in BeginAuth.
func (s *Auther) CompleteAuth(ctx context.Context, stateToken, code string) (*LoginResult, error) {
	if s.stateManager == nil {
		return nil, errors.New("redirect flow requires a state manager", errors.CategoryInternal)
	}

	state, err := s.stateManager.Decode(stateToken)
	if err != nil {
		s.logger.Warn("CompleteAuth state rejected: %v", err)
		return nil, err
	}

	p, err := s.lookupProvider(state.Provider)
	if err != nil {
		return nil, err
	}

	var opts []provider.ExchangeOption
	if state.CodeVerifier != "" {
		opts = append(opts, provider.WithCodeVerifier(state.CodeVerifier))
	}

	token, err := p.Exchange(ctx, code, opts...)
	if err != nil {
		s.logger.Error("CompleteAuth exchange failed for %s: %v", p.Name(), err)
		return nil, s.upstreamError(provider.ErrTokenExchangeFailed, p.Name(), "exchange", err)
	}

	result, err := s.login(ctx, p, token)
	if err != nil {
		return nil, err
	}

	if result.Profile != nil && state.RedirectURL != "" {
		if result.Profile.Raw == nil {
			result.Profile.Raw = map[string]any{}
		}
		result.Profile.Raw["redirect_url"] = state.RedirectURL
	}

	return result, nil
}

// Refresh rotates the refresh token and returns a fresh pair.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := s.tokenService.Refresh(ctx, refreshToken)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, ActorRef{Type: "unknown"}, "", nil)
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventRefreshSuccess, ActorRef{Type: "account"}, "", nil)

	return pair, nil
}

// Logout revokes the refresh token. It never reports failure: an invalid or
// already revoked token leaves the caller logged out all the same.
func (s *Auther) Logout(ctx context.Context, refreshToken string) {
	if err := s.tokenService.Revoke(ctx, refreshToken); err != nil {
		s.logger.Error("Logout error revoking token: %v", err)
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, ActorRef{Type: "account"}, "", nil)
}

// AccountFromToken validates an access token and loads the account it is
// bound to.
func (s *Auther) AccountFromToken(ctx context.Context, accessToken string) (*Account, error) {
	claims, err := s.tokenService.Validate(accessToken)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.Accounts().GetByID(ctx, claims.AccountID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapStorageError(err, "failed to load account")
	}

	return account, nil
}

// login runs the shared tail of every login variant: fetch the profile,
// upsert the directory record, and mint the pair.
func (s *Auther) login(ctx context.Context, p provider.Provider, token *provider.Token) (*LoginResult, error) {
	profile, err := p.UserInfo(ctx, token)
	if err != nil {
		s.logger.Error("login user info failed for %s: %v", p.Name(), err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"provider": p.Name(),
			"stage":    "user_info",
		})
		return nil, s.upstreamError(provider.ErrUserInfoFailed, p.Name(), "user_info", err)
	}

	account, created, err := s.repo.Accounts().UpsertFromProfile(ctx, profile)
	if err != nil {
		s.logger.Error("login account upsert failed for %s: %v", p.Name(), err)
		return nil, err
	}

	pair, err := s.tokenService.IssuePair(ctx, account.ID)
	if err != nil {
		s.logger.Error("login token issuance failed for account %s: %v", account.ID, err)
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, ActorRef{ID: account.ID.String(), Type: "account"}, account.ID.String(), map[string]any{
		"provider": p.Name(),
		"new":      created,
	})

	return &LoginResult{
		Pair:         pair,
		Account:      account,
		IsNewAccount: created,
		Profile:      profile,
	}, nil
}

func (s *Auther) lookupProvider(name string) (provider.Provider, error) {
	if name == "" {
		name = s.defaultProvider
	}

	p, ok := s.providers[name]
	if !ok {
		return nil, provider.ErrProviderNotFound.Clone().WithMetadata(map[string]any{
			"provider": name,
		})
	}

	return p, nil
}

// upstreamError hides provider payloads from callers. The failure is first
// folded into the stage sentinel (ErrTokenExchangeFailed or ErrUserInfoFailed)
// so callers can tell which step broke, then wrapped as ErrUpstreamAuth for
// the client surface. The detail already went to the log.
func (s *Auther) upstreamError(base *errors.Error, providerName, operation string, err error) error {
	cause := provider.WrapError(base, providerName, operation, err)

	wrapped := ErrUpstreamAuth.Clone()
	if wrapped == nil {
		return cause
	}
	wrapped.Source = cause

	return wrapped.WithMetadata(map[string]any{
		"provider":  providerName,
		"operation": operation,
	})
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, accountID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		AccountID: accountID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

var _ Authenticator = (*Auther)(nil)
