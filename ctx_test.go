package auth_test

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-github-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountContext(t *testing.T) {
	account := &auth.Account{ID: uuid.New(), Username: "octocat"}

	ctx := auth.WithContext(context.Background(), account)

	found, ok := auth.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, account, found)

	_, ok = auth.FromContext(context.Background())
	assert.False(t, ok)
}

func TestClaimsContext(t *testing.T) {
	claims := &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "account-1"},
	}

	ctx := auth.WithClaimsContext(context.Background(), claims)

	found, ok := auth.GetClaims(ctx)
	require.True(t, ok)
	assert.Equal(t, "account-1", found.AccountID())

	_, ok = auth.GetClaims(context.Background())
	assert.False(t, ok)
}

func TestContextEnricherAdapter(t *testing.T) {
	claims := &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "account-1"},
	}

	ctx := auth.ContextEnricherAdapter(context.Background(), claims)

	found, ok := auth.GetClaims(ctx)
	require.True(t, ok)
	assert.Equal(t, "account-1", found.AccountID())
}

func TestHasAccountUUID(t *testing.T) {
	assert.True(t, auth.HasAccountUUID(&auth.SessionObject{AccountID: uuid.New().String()}))
	assert.False(t, auth.HasAccountUUID(&auth.SessionObject{AccountID: "nope"}))
	assert.False(t, auth.HasAccountUUID(nil))
}
