package auth_test

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-github-auth"
	"github.com/stretchr/testify/assert"
)

func TestIsTokenExpiredError(t *testing.T) {
	assert.True(t, auth.IsTokenExpiredError(auth.ErrTokenExpired))
	assert.True(t, auth.IsTokenExpiredError(errors.New("token is expired by 3m")))
	assert.True(t, auth.IsTokenExpiredError(
		goerrors.Wrap(auth.ErrTokenExpired, goerrors.CategoryAuth, "refresh failed").
			WithTextCode(auth.TextCodeTokenExpired),
	))

	assert.False(t, auth.IsTokenExpiredError(nil))
	assert.False(t, auth.IsTokenExpiredError(auth.ErrInvalidToken))
	assert.False(t, auth.IsTokenExpiredError(errors.New("boom")))
}

func TestIsInvalidTokenError(t *testing.T) {
	assert.True(t, auth.IsInvalidTokenError(auth.ErrInvalidToken))
	assert.True(t, auth.IsInvalidTokenError(auth.ErrTokenExpired))
	assert.True(t, auth.IsInvalidTokenError(auth.ErrTokenMalformed))
	assert.True(t, auth.IsInvalidTokenError(errors.New("token is malformed: bad segments")))

	assert.False(t, auth.IsInvalidTokenError(nil))
	assert.False(t, auth.IsInvalidTokenError(errors.New("boom")))
	assert.False(t, auth.IsInvalidTokenError(auth.ErrAccountNotFound))
}

func TestIsMalformedError(t *testing.T) {
	assert.True(t, auth.IsMalformedError(errors.New("token is malformed")))
	assert.True(t, auth.IsMalformedError(fmt.Errorf("request: %w", errors.New("missing or malformed JWT"))))

	assert.False(t, auth.IsMalformedError(nil))
	assert.False(t, auth.IsMalformedError(errors.New("boom")))
}

func TestSentinelTextCodes(t *testing.T) {
	assert.Equal(t, auth.TextCodeInvalidToken, auth.ErrInvalidToken.TextCode)
	assert.Equal(t, auth.TextCodeTokenExpired, auth.ErrTokenExpired.TextCode)
	assert.Equal(t, auth.TextCodeTokenMalformed, auth.ErrTokenMalformed.TextCode)
	assert.Equal(t, auth.TextCodeUpstreamAuth, auth.ErrUpstreamAuth.TextCode)
	assert.Equal(t, auth.TextCodeAccountNotFound, auth.ErrAccountNotFound.TextCode)
}
