package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshTokens persists refresh token records. Records are written once,
// flipped to revoked on rotation or logout, and never deleted.
type RefreshTokens interface {
	repository.Repository[*RefreshToken]

	GetByTokenID(ctx context.Context, tokenID string, criteria ...repository.SelectCriteria) (*RefreshToken, error)
	GetByTokenIDTx(ctx context.Context, tx bun.IDB, tokenID string, criteria ...repository.SelectCriteria) (*RefreshToken, error)

	Create(ctx context.Context, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error)

	Revoke(ctx context.Context, tokenID string) error
	RevokeTx(ctx context.Context, tx bun.IDB, tokenID string) (int64, error)
}

type refreshTokens struct {
	repository.Repository[*RefreshToken]
	db *bun.DB
}

var (
	_ RefreshTokens                        = (*refreshTokens)(nil)
	_ repository.Repository[*RefreshToken] = (*refreshTokens)(nil)
)

func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	repo := repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
		NewRecord: func() *RefreshToken { return &RefreshToken{} },
		GetID: func(t *RefreshToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *RefreshToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token_id"
		},
	})

	return &refreshTokens{
		Repository: repo,
		db:         db,
	}
}

func (r *refreshTokens) GetByTokenID(ctx context.Context, tokenID string, criteria ...repository.SelectCriteria) (*RefreshToken, error) {
	return r.GetByTokenIDTx(ctx, r.db, tokenID, criteria...)
}

func (r *refreshTokens) GetByTokenIDTx(ctx context.Context, tx bun.IDB, tokenID string, criteria ...repository.SelectCriteria) (*RefreshToken, error) {
	record := &RefreshToken{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.token_id = ?", tokenID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"token_id": tokenID,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *refreshTokens) Create(ctx context.Context, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *refreshTokens) CreateTx(ctx context.Context, tx bun.IDB, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error) {
	prepareRefreshTokenDefaults(record)
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *refreshTokens) Revoke(ctx context.Context, tokenID string) error {
	_, err := r.RevokeTx(ctx, r.db, tokenID)
	return err
}

// RevokeTx flips the record to revoked and reports how many rows changed.
// The revoked = false guard makes the flip single-winner: of two callers
// racing on the same token id, exactly one gets a row count of 1. Revoking
// an unknown or already revoked token id is a no-op, which keeps logout
// idempotent.
func (r *refreshTokens) RevokeTx(ctx context.Context, tx bun.IDB, tokenID string) (int64, error) {
	now := time.Now()
	res, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked = ?", true).
		Set("revoked_at = ?", now).
		Set("updated_at = ?", now).
		Where("?TableAlias.token_id = ?", tokenID).
		Where("?TableAlias.revoked = ?", false).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func prepareRefreshTokenDefaults(record *RefreshToken) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
}
