package provider_test

import (
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-github-auth/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testEncryptionKey = []byte("0123456789abcdef0123456789abcdef")
	testHMACKey       = []byte("fedcba9876543210fedcba9876543210")
)

func newStateManager(ttl time.Duration) *provider.EncryptedStateManager {
	return provider.NewEncryptedStateManager(testEncryptionKey, testHMACKey, ttl)
}

func TestEncryptedStateManager_RoundTrip(t *testing.T) {
	sm := newStateManager(0)

	token, err := sm.Encode(&provider.State{
		Provider:     "github",
		CodeVerifier: "verifier-123",
		RedirectURL:  "/dashboard",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	state, err := sm.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "github", state.Provider)
	assert.Equal(t, "verifier-123", state.CodeVerifier)
	assert.Equal(t, "/dashboard", state.RedirectURL)
	assert.NotEmpty(t, state.Nonce)
	assert.NotZero(t, state.IssuedAt)
	assert.Greater(t, state.ExpiresAt, state.IssuedAt)
}

func TestEncryptedStateManager_Decode(t *testing.T) {
	sm := newStateManager(0)

	token, err := sm.Encode(&provider.State{Provider: "github"})
	require.NoError(t, err)

	t.Run("rejects a tampered token", func(t *testing.T) {
		_, err := sm.Decode(token[:len(token)-4] + "AAAA")
		require.Error(t, err)
		assert.True(t, goerrors.Is(err, provider.ErrInvalidState))
	})

	t.Run("rejects a token signed with another hmac key", func(t *testing.T) {
		other := provider.NewEncryptedStateManager(testEncryptionKey, []byte("00000000000000000000000000000000"), 0)

		_, err := other.Decode(token)
		require.Error(t, err)
		assert.True(t, goerrors.Is(err, provider.ErrInvalidState))
	})

	t.Run("rejects garbage input", func(t *testing.T) {
		_, err := sm.Decode("not-base64-%%%")
		require.Error(t, err)
	})

	t.Run("rejects a token shorter than the signature", func(t *testing.T) {
		_, err := sm.Decode("AAAA")
		require.Error(t, err)
	})

	t.Run("rejects an expired state", func(t *testing.T) {
		expired, err := sm.Encode(&provider.State{
			Provider:  "github",
			IssuedAt:  time.Now().Add(-time.Hour).Unix(),
			ExpiresAt: time.Now().Add(-time.Minute).Unix(),
		})
		require.NoError(t, err)

		_, err = sm.Decode(expired)
		require.Error(t, err)
		assert.True(t, goerrors.Is(err, provider.ErrStateExpired))
	})
}

func TestEncryptedStateManager_EncodeNil(t *testing.T) {
	sm := newStateManager(0)

	_, err := sm.Encode(nil)
	require.Error(t, err)
}

func TestGenerateCodeVerifier(t *testing.T) {
	first, err := provider.GenerateCodeVerifier()
	require.NoError(t, err)

	second, err := provider.GenerateCodeVerifier()
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestComputeCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B test vector
	challenge := provider.ComputeCodeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", challenge)
}
