package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the internal record for a principal that logged in through an
// external identity provider. ExternalID is immutable after first creation;
// the profile fields are overwritten on every login, last login wins.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ExternalID    string         `bun:"external_id,notnull,unique" json:"external_id,omitempty"`
	Provider      string         `bun:"provider,notnull" json:"provider,omitempty"`
	Email         string         `bun:"email" json:"email,omitempty"`
	Username      string         `bun:"username" json:"username,omitempty"`
	DisplayName   string         `bun:"display_name" json:"display_name,omitempty"`
	AvatarURL     string         `bun:"avatar_url" json:"avatar_url,omitempty"`
	ProfileURL    string         `bun:"profile_url" json:"profile_url,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AddMetadata will append information to a metadata attribute
func (a *Account) AddMetadata(key string, val any) *Account {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[key] = val
	return a
}

// RefreshToken is the server side proof that a refresh token was issued and
// not yet consumed. The signed token itself is never stored, only its
// identifier. Rows are flipped to revoked on rotation or logout and are
// never physically deleted, so the table doubles as an audit trail.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rtk"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	TokenID       string         `bun:"token_id,notnull,unique" json:"token_id,omitempty"`
	AccountID     uuid.UUID      `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account       *Account       `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	ExpiresAt     time.Time      `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	Revoked       bool           `bun:"revoked" json:"revoked,omitempty"`
	RevokedAt     *time.Time     `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Valid reports whether the record still backs a usable refresh token.
func (t *RefreshToken) Valid(now time.Time) bool {
	if t == nil || t.Revoked {
		return false
	}
	return t.ExpiresAt.After(now)
}
