package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-github-auth/provider"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the user directory: it maps external identities to internal
// account records.
type Accounts interface {
	repository.Repository[*Account]

	GetByExternalID(ctx context.Context, externalID string, criteria ...repository.SelectCriteria) (*Account, error)
	GetByExternalIDTx(ctx context.Context, tx bun.IDB, externalID string, criteria ...repository.SelectCriteria) (*Account, error)

	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	UpsertFromProfile(ctx context.Context, profile *provider.Profile) (*Account, bool, error)
	UpsertFromProfileTx(ctx context.Context, tx bun.IDB, profile *provider.Profile) (*Account, bool, error)
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "external_id"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) GetByExternalID(ctx context.Context, externalID string, criteria ...repository.SelectCriteria) (*Account, error) {
	return a.GetByExternalIDTx(ctx, a.db, externalID, criteria...)
}

func (a *accounts) GetByExternalIDTx(ctx context.Context, tx bun.IDB, externalID string, criteria ...repository.SelectCriteria) (*Account, error) {
	record := &Account{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.external_id = ?", externalID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"external_id": externalID,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accounts) UpsertFromProfile(ctx context.Context, profile *provider.Profile) (*Account, bool, error) {
	return a.UpsertFromProfileTx(ctx, a.db, profile)
}

// UpsertFromProfileTx creates an account on first login and overwrites the
// mutable profile fields on every subsequent one, last login wins. The save
// is skipped when nothing changed.
func (a *accounts) UpsertFromProfileTx(ctx context.Context, tx bun.IDB, profile *provider.Profile) (*Account, bool, error) {
	if profile == nil || profile.ExternalID == "" {
		return nil, false, ErrAccountNotFound
	}

	record, err := a.GetByExternalIDTx(ctx, tx, profile.ExternalID)
	if err == nil {
		if !applyProfile(record, profile) {
			return record, false, nil
		}

		updated, err := a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String()))
		if err != nil {
			return nil, false, wrapStorageError(err, "failed to update account")
		}
		return updated, false, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, false, wrapStorageError(err, "failed to look up account")
	}

	record = &Account{
		ExternalID: profile.ExternalID,
		Provider:   profile.Provider,
	}
	applyProfile(record, profile)

	created, err := a.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, false, wrapStorageError(err, "failed to create account")
	}

	return created, true, nil
}

// applyProfile copies the mutable fields and reports whether any changed.
// ExternalID is immutable after first creation and is never touched here.
func applyProfile(record *Account, profile *provider.Profile) bool {
	changed := false

	if record.Email != profile.Email {
		record.Email = profile.Email
		changed = true
	}
	if record.Username != profile.Username {
		record.Username = profile.Username
		changed = true
	}
	if record.DisplayName != profile.DisplayName {
		record.DisplayName = profile.DisplayName
		changed = true
	}
	if record.AvatarURL != profile.AvatarURL {
		record.AvatarURL = profile.AvatarURL
		changed = true
	}
	if record.ProfileURL != profile.ProfileURL {
		record.ProfileURL = profile.ProfileURL
		changed = true
	}

	return changed
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.Provider == "" {
		record.Provider = "github"
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
}
