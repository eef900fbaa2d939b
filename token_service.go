package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenServiceImpl implements the TokenService interface. Access tokens are
// stateless and short lived; refresh tokens are backed by a stored record
// and rotated on every use.
type TokenServiceImpl struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	accessTTL  time.Duration
	refreshTTL time.Duration
	repo       RepositoryManager
	logger     Logger
}

// TokenServiceOption configures the token service.
type TokenServiceOption func(*TokenServiceImpl)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if ttl > 0 {
			ts.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if ttl > 0 {
			ts.refreshTTL = ttl
		}
	}
}

// NewTokenService creates a new TokenService instance. The signing key is an
// explicit dependency: there is no hidden process-wide secret.
func NewTokenService(repo RepositoryManager, signingKey []byte, issuer string, audience jwt.ClaimStrings, logger Logger, opts ...TokenServiceOption) TokenService {
	if logger == nil {
		logger = defLogger{}
	}

	ts := &TokenServiceImpl{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  AccessTokenTTL,
		refreshTTL: RefreshTokenTTL,
		repo:       repo,
		logger:     logger,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

// IssuePair mints an access/refresh pair bound to accountID and persists the
// refresh token record.
func (ts *TokenServiceImpl) IssuePair(ctx context.Context, accountID uuid.UUID) (*TokenPair, error) {
	return ts.issuePair(ctx, nil, accountID)
}

// Refresh rotates a refresh token: the presented token is consumed and a
// brand new pair is issued for the same account. Revoking the old record and
// inserting the new one happen in a single transaction so a crash cannot
// strand the session between the two writes.
func (ts *TokenServiceImpl) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := ts.verify(refreshToken)
	if err != nil {
		ts.logger.Debug("TokenService refresh rejected token: %v", err)
		return nil, errors.Wrap(err, ErrInvalidToken.Category, ErrInvalidToken.Message).
			WithTextCode(ErrInvalidToken.TextCode).
			WithCode(errors.CodeUnauthorized)
	}

	tokenID := claims.TokenID()
	if tokenID == "" {
		return nil, ErrInvalidToken
	}

	accountID, err := uuid.Parse(claims.AccountID())
	if err != nil {
		return nil, ErrInvalidToken
	}

	var pair *TokenPair
	err = ts.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := ts.repo.RefreshTokens().GetByTokenIDTx(ctx, tx, tokenID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidToken
			}
			return wrapStorageError(err, "failed to look up refresh token")
		}

		if record.Revoked {
			return ErrInvalidToken
		}

		// Redundant with the signature check above, but covers clock skew
		// and any drift between the JWT expiry and the stored record.
		if !record.ExpiresAt.After(time.Now()) {
			return ErrTokenExpired
		}

		affected, err := ts.repo.RefreshTokens().RevokeTx(ctx, tx, tokenID)
		if err != nil {
			return wrapStorageError(err, "failed to revoke refresh token")
		}

		// Zero rows means a concurrent refresh consumed the token between
		// our read and the update. The loser must not mint a second pair.
		if affected == 0 {
			return ErrInvalidToken
		}

		pair, err = ts.issuePair(ctx, tx, accountID)
		return err
	})

	if err != nil {
		return nil, err
	}

	return pair, nil
}

// Revoke consumes a refresh token on logout. Best effort and idempotent: a
// bad signature, unknown token id, or already revoked record all count as
// success, because logout must never fail visibly.
func (ts *TokenServiceImpl) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := ts.verify(refreshToken)
	if err != nil {
		ts.logger.Debug("TokenService revoke ignoring invalid token: %v", err)
		return nil
	}

	tokenID := claims.TokenID()
	if tokenID == "" {
		return nil
	}

	if err := ts.repo.RefreshTokens().Revoke(ctx, tokenID); err != nil {
		ts.logger.Error("TokenService revoke storage error: %v", err)
	}

	return nil
}

// Validate parses and validates a token string, returning structured claims.
// It is a pure signature and expiry check, no storage lookup: access token
// revocation only takes effect once the token expires, at most 15 minutes.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	return ts.verify(tokenString)
}

func (ts *TokenServiceImpl) verify(tokenString string) (*JWTClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(errors.CodeUnauthorized)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, ErrUnableToDecodeSession
}

// issuePair signs both tokens and persists the refresh record. A uuid token
// id has negligible collision probability; the unique index on token_id is
// the backstop.
func (ts *TokenServiceImpl) issuePair(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*TokenPair, error) {
	now := time.Now()
	tokenID := uuid.New().String()

	accessToken, err := ts.signClaims(ts.newClaims(accountID, "", now, ts.accessTTL))
	if err != nil {
		return nil, err
	}

	refreshToken, err := ts.signClaims(ts.newClaims(accountID, tokenID, now, ts.refreshTTL))
	if err != nil {
		return nil, err
	}

	record := &RefreshToken{
		TokenID:   tokenID,
		AccountID: accountID,
		ExpiresAt: now.Add(ts.refreshTTL),
		Metadata: map[string]any{
			"created_at": now.Format(time.RFC3339),
		},
	}

	if tx != nil {
		_, err = ts.repo.RefreshTokens().CreateTx(ctx, tx, record)
	} else {
		_, err = ts.repo.RefreshTokens().Create(ctx, record)
	}

	if err != nil {
		return nil, wrapStorageError(err, "failed to persist refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (ts *TokenServiceImpl) newClaims(accountID uuid.UUID, tokenID string, now time.Time, ttl time.Duration) *JWTClaims {
	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	return &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    ts.issuer,
			Subject:   accountID.String(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (ts *TokenServiceImpl) signClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}
