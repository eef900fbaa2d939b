package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-github-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokens_CreateAndGet(t *testing.T) {
	repo := setupRepos(t)
	account := createTestAccount(t, repo)

	record, err := repo.RefreshTokens().Create(context.Background(), &auth.RefreshToken{
		TokenID:   "tok-1",
		AccountID: account.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)

	found, err := repo.RefreshTokens().GetByTokenID(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.AccountID)
	assert.False(t, found.Revoked)
	assert.True(t, found.Valid(time.Now()))
}

func TestRefreshTokens_Revoke(t *testing.T) {
	repo := setupRepos(t)
	account := createTestAccount(t, repo)

	_, err := repo.RefreshTokens().Create(context.Background(), &auth.RefreshToken{
		TokenID:   "tok-2",
		AccountID: account.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	t.Run("flips the record", func(t *testing.T) {
		require.NoError(t, repo.RefreshTokens().Revoke(context.Background(), "tok-2"))

		record, err := repo.RefreshTokens().GetByTokenID(context.Background(), "tok-2")
		require.NoError(t, err)
		assert.True(t, record.Revoked)
		require.NotNil(t, record.RevokedAt)
		assert.False(t, record.Valid(time.Now()))
	})

	t.Run("revoking again is a no-op", func(t *testing.T) {
		require.NoError(t, repo.RefreshTokens().Revoke(context.Background(), "tok-2"))
	})

	t.Run("revoking an unknown token id is a no-op", func(t *testing.T) {
		require.NoError(t, repo.RefreshTokens().Revoke(context.Background(), "missing"))
	})
}

// Rotation consumes the token through RevokeTx; the row count tells the
// caller whether it won the flip, so two racing refreshes cannot both mint
// a new pair from the same token.
func TestRefreshTokens_RevokeTxSingleWinner(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewRepositoryManager(db)
	account := createTestAccount(t, repo)

	_, err := repo.RefreshTokens().Create(context.Background(), &auth.RefreshToken{
		TokenID:   "tok-3",
		AccountID: account.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	affected, err := repo.RefreshTokens().RevokeTx(context.Background(), db, "tok-3")
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	t.Run("second flip reports zero rows", func(t *testing.T) {
		affected, err := repo.RefreshTokens().RevokeTx(context.Background(), db, "tok-3")
		require.NoError(t, err)
		assert.EqualValues(t, 0, affected)
	})

	t.Run("unknown token id reports zero rows", func(t *testing.T) {
		affected, err := repo.RefreshTokens().RevokeTx(context.Background(), db, "missing")
		require.NoError(t, err)
		assert.EqualValues(t, 0, affected)
	})
}

func TestRefreshToken_Valid(t *testing.T) {
	now := time.Now()

	assert.False(t, (*auth.RefreshToken)(nil).Valid(now))
	assert.False(t, (&auth.RefreshToken{Revoked: true, ExpiresAt: now.Add(time.Hour)}).Valid(now))
	assert.False(t, (&auth.RefreshToken{ExpiresAt: now.Add(-time.Minute)}).Valid(now))
	assert.True(t, (&auth.RefreshToken{ExpiresAt: now.Add(time.Minute)}).Valid(now))
}
