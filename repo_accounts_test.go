package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-github-auth"
	"github.com/goliatone/go-github-auth/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func githubProfile() *provider.Profile {
	return &provider.Profile{
		ExternalID:  "42",
		Provider:    "github",
		Email:       "octocat@example.com",
		Username:    "octocat",
		DisplayName: "The Octocat",
		AvatarURL:   "https://avatars.example.com/u/42",
		ProfileURL:  "https://github.com/octocat",
	}
}

func TestAccounts_UpsertFromProfile(t *testing.T) {
	t.Run("creates an account on first login", func(t *testing.T) {
		repo := setupRepos(t)

		account, created, err := repo.Accounts().UpsertFromProfile(context.Background(), githubProfile())
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEmpty(t, account.ID)
		assert.Equal(t, "42", account.ExternalID)
		assert.Equal(t, "github", account.Provider)
		assert.Equal(t, "octocat@example.com", account.Email)
		assert.Equal(t, "octocat", account.Username)
	})

	t.Run("same external id maps to the same account", func(t *testing.T) {
		repo := setupRepos(t)

		first, created, err := repo.Accounts().UpsertFromProfile(context.Background(), githubProfile())
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := repo.Accounts().UpsertFromProfile(context.Background(), githubProfile())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)

		_, total, err := repo.Accounts().List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("most recent login wins on profile fields", func(t *testing.T) {
		repo := setupRepos(t)

		_, _, err := repo.Accounts().UpsertFromProfile(context.Background(), githubProfile())
		require.NoError(t, err)

		changed := githubProfile()
		changed.Email = "new@example.com"
		changed.DisplayName = "Octo Cat"

		account, created, err := repo.Accounts().UpsertFromProfile(context.Background(), changed)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "new@example.com", account.Email)
		assert.Equal(t, "Octo Cat", account.DisplayName)

		reloaded, err := repo.Accounts().GetByExternalID(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", reloaded.Email)
	})

	t.Run("external id is immutable once set", func(t *testing.T) {
		repo := setupRepos(t)

		first, _, err := repo.Accounts().UpsertFromProfile(context.Background(), githubProfile())
		require.NoError(t, err)

		again, _, err := repo.Accounts().UpsertFromProfile(context.Background(), githubProfile())
		require.NoError(t, err)
		assert.Equal(t, first.ExternalID, again.ExternalID)
	})

	t.Run("rejects a profile without external id", func(t *testing.T) {
		repo := setupRepos(t)

		_, _, err := repo.Accounts().UpsertFromProfile(context.Background(), &provider.Profile{})
		require.Error(t, err)
	})
}

func TestAccounts_GetByExternalID(t *testing.T) {
	repo := setupRepos(t)

	_, _, err := repo.Accounts().UpsertFromProfile(context.Background(), githubProfile())
	require.NoError(t, err)

	t.Run("finds an existing account", func(t *testing.T) {
		account, err := repo.Accounts().GetByExternalID(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, "octocat", account.Username)
	})

	t.Run("misses are record-not-found", func(t *testing.T) {
		_, err := repo.Accounts().GetByExternalID(context.Background(), "999")
		require.Error(t, err)
	})
}

func TestAccount_AddMetadata(t *testing.T) {
	account := &auth.Account{}
	account.AddMetadata("plan", "free")
	account.AddMetadata("plan", "pro")

	assert.Equal(t, "pro", account.Metadata["plan"])
}
