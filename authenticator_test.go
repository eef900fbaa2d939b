package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-github-auth"
	"github.com/goliatone/go-github-auth/provider"
	"github.com/goliatone/go-github-auth/provider/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub stands in for the three upstream endpoints a login touches.
type fakeGitHub struct {
	server *httptest.Server

	failExchange bool
	failEmails   bool

	lastCode     string
	lastVerifier string
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()

	f := &fakeGitHub{}

	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.lastCode = r.Form.Get("code")
		f.lastVerifier = r.Form.Get("code_verifier")

		w.Header().Set("Content-Type", "application/json")
		if f.failExchange {
			json.NewEncoder(w).Encode(map[string]string{
				"error":             "bad_verification_code",
				"error_description": "The code passed is incorrect or expired.",
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "gho_testtoken",
			"token_type":   "bearer",
			"scope":        "user:email,read:user",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_testtoken", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":         42,
			"login":      "octocat",
			"name":       "The Octocat",
			"avatar_url": "https://avatars.example.com/u/42",
			"html_url":   "https://github.com/octocat",
		})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		if f.failEmails {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "Bad credentials"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "octocat@example.com", "primary": true, "verified": true},
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeGitHub) provider() *github.Provider {
	return github.New(github.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "http://localhost/auth/github/callback",
		TokenURL:     f.server.URL + "/login/oauth/access_token",
		UserURL:      f.server.URL + "/user",
		EmailsURL:    f.server.URL + "/user/emails",
	})
}

func newAuther(t *testing.T, gh *fakeGitHub) (*auth.Auther, auth.RepositoryManager) {
	t.Helper()

	repo := setupRepos(t)
	service := newTokenService(t, repo)
	auther := auth.NewAuthenticator(gh.provider(), repo, service)

	return auther, repo
}

func TestAuther_LoginWithCode(t *testing.T) {
	t.Run("first login creates the account and a valid pair", func(t *testing.T) {
		gh := newFakeGitHub(t)
		auther, repo := newAuther(t, gh)

		result, err := auther.LoginWithCode(context.Background(), "abc123", "v1")
		require.NoError(t, err)
		require.NotNil(t, result)

		assert.Equal(t, "abc123", gh.lastCode)
		assert.Equal(t, "v1", gh.lastVerifier)

		assert.True(t, result.IsNewAccount)
		assert.Equal(t, "42", result.Account.ExternalID)
		assert.Equal(t, "github", result.Account.Provider)
		assert.Equal(t, "octocat@example.com", result.Account.Email)
		assert.Equal(t, "octocat", result.Account.Username)

		claims, err := auther.TokenService().Validate(result.Pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, result.Account.ID.String(), claims.AccountID())

		_, total, err := repo.Accounts().List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("second login reuses the account", func(t *testing.T) {
		gh := newFakeGitHub(t)
		auther, repo := newAuther(t, gh)

		first, err := auther.LoginWithCode(context.Background(), "abc123", "v1")
		require.NoError(t, err)

		second, err := auther.LoginWithCode(context.Background(), "def456", "v2")
		require.NoError(t, err)

		assert.False(t, second.IsNewAccount)
		assert.Equal(t, first.Account.ID, second.Account.ID)

		_, total, err := repo.Accounts().List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("exchange failure surfaces as upstream auth error", func(t *testing.T) {
		gh := newFakeGitHub(t)
		gh.failExchange = true
		auther, _ := newAuther(t, gh)

		_, err := auther.LoginWithCode(context.Background(), "bad", "")
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, auth.TextCodeUpstreamAuth, richErr.TextCode)
		assert.Equal(t, "exchange", richErr.Metadata["operation"])

		stage, ok := richErr.Source.(*goerrors.Error)
		require.True(t, ok, "cause should carry the exchange sentinel")
		assert.Equal(t, provider.TextCodeTokenExchangeFail, stage.TextCode)
	})

	t.Run("emails failure aborts the login", func(t *testing.T) {
		gh := newFakeGitHub(t)
		gh.failEmails = true
		auther, repo := newAuther(t, gh)

		_, err := auther.LoginWithCode(context.Background(), "abc123", "v1")
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, auth.TextCodeUpstreamAuth, richErr.TextCode)
		assert.Equal(t, "user_info", richErr.Metadata["operation"])

		stage, ok := richErr.Source.(*goerrors.Error)
		require.True(t, ok, "cause should carry the user info sentinel")
		assert.Equal(t, provider.TextCodeUserInfoFail, stage.TextCode)

		_, total, err := repo.Accounts().List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, total)
	})
}

func TestAuther_LoginWithProviderToken(t *testing.T) {
	gh := newFakeGitHub(t)
	auther, _ := newAuther(t, gh)

	result, err := auther.LoginWithProviderToken(context.Background(), "github", "gho_testtoken")
	require.NoError(t, err)
	assert.Equal(t, "42", result.Account.ExternalID)

	t.Run("unknown provider is rejected", func(t *testing.T) {
		_, err := auther.LoginWithProviderToken(context.Background(), "gitlab", "tok")
		require.Error(t, err)
	})
}

func TestAuther_RefreshAndLogout(t *testing.T) {
	gh := newFakeGitHub(t)
	auther, _ := newAuther(t, gh)

	result, err := auther.LoginWithCode(context.Background(), "abc123", "v1")
	require.NoError(t, err)

	rotated, err := auther.Refresh(context.Background(), result.Pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, result.Pair.RefreshToken, rotated.RefreshToken)

	// logout consumes the rotated token; a later refresh must fail
	auther.Logout(context.Background(), rotated.RefreshToken)

	_, err = auther.Refresh(context.Background(), rotated.RefreshToken)
	require.Error(t, err)
	assert.True(t, auth.IsInvalidTokenError(err))

	// logout with garbage never fails
	auther.Logout(context.Background(), "not-a-jwt")
}

func TestAuther_AccountFromToken(t *testing.T) {
	gh := newFakeGitHub(t)
	auther, _ := newAuther(t, gh)

	result, err := auther.LoginWithCode(context.Background(), "abc123", "v1")
	require.NoError(t, err)

	account, err := auther.AccountFromToken(context.Background(), result.Pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.Account.ID, account.ID)

	_, err = auther.AccountFromToken(context.Background(), "not-a-jwt")
	require.Error(t, err)
}

func TestAuther_RedirectFlow(t *testing.T) {
	gh := newFakeGitHub(t)
	auther, _ := newAuther(t, gh)

	key := []byte("0123456789abcdef0123456789abcdef")
	auther.WithStateManager(provider.NewEncryptedStateManager(key, key, 0))

	authURL, err := auther.BeginAuth("github", "/dashboard")
	require.NoError(t, err)
	assert.Contains(t, authURL, "code_challenge=")
	assert.Contains(t, authURL, "state=")

	// pull the state back out of the generated URL
	loc, err := url.Parse(authURL)
	require.NoError(t, err)
	parsed := loc.Query().Get("state")
	require.NotEmpty(t, parsed)

	result, err := auther.CompleteAuth(context.Background(), parsed, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "42", result.Account.ExternalID)
	assert.Equal(t, "/dashboard", result.Profile.Raw["redirect_url"])
	assert.NotEmpty(t, gh.lastVerifier)

	t.Run("tampered state is rejected", func(t *testing.T) {
		_, err := auther.CompleteAuth(context.Background(), parsed+"x", "abc123")
		require.Error(t, err)
	})
}
