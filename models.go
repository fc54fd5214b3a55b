package runboard

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenTTL is how long a verification token stays redeemable after issuance.
const TokenTTL = time.Hour

// Leaderboard is a slug-addressable game board. The slug is unique among
// non-deleted leaderboards only; two deleted rows may share it.
type Leaderboard struct {
	bun.BaseModel `bun:"table:leaderboards,alias:ldb"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Slug          string     `bun:"slug,notnull" json:"slug,omitempty"`
	Info          string     `bun:"info" json:"info,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Category belongs to a leaderboard; its slug is unique within that
// leaderboard among non-deleted categories.
type Category struct {
	bun.BaseModel `bun:"table:categories,alias:cat"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	LeaderboardID uuid.UUID    `bun:"leaderboard_id,notnull,type:uuid" json:"leaderboard_id,omitempty"`
	Leaderboard   *Leaderboard `bun:"rel:belongs-to,join:leaderboard_id=id" json:"leaderboard,omitempty"`
	Name          string       `bun:"name,notnull" json:"name,omitempty"`
	Slug          string       `bun:"slug,notnull" json:"slug,omitempty"`
	Info          string       `bun:"info" json:"info,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
	DeletedAt     *time.Time   `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// User is an account. Role transitions happen only through the verification
// token commands or administrative action, never as a side effect of reads.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Role          UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// AccountConfirmation is a single-use token that moves its owner from
// Registered to Confirmed. Immutable except for the used_at flip.
type AccountConfirmation struct {
	bun.BaseModel `bun:"table:account_confirmations,alias:acf"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
}

// IsUsed reports whether the token was already consumed.
func (t *AccountConfirmation) IsUsed() bool { return t.UsedAt != nil }

// IsExpired reports whether the token is past its expiry at the given instant.
func (t *AccountConfirmation) IsExpired(now time.Time) bool { return now.After(t.ExpiresAt) }

// AccountRecovery is a single-use token authorizing a password reset.
// Structurally identical to AccountConfirmation but never interchangeable
// with it; the two live in separate tables.
type AccountRecovery struct {
	bun.BaseModel `bun:"table:account_recoveries,alias:arc"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
}

// IsUsed reports whether the token was already consumed.
func (t *AccountRecovery) IsUsed() bool { return t.UsedAt != nil }

// IsExpired reports whether the token is past its expiry at the given instant.
func (t *AccountRecovery) IsExpired(now time.Time) bool { return now.After(t.ExpiresAt) }

// NewAccountConfirmation stamps a fresh confirmation token for the user.
func NewAccountConfirmation(userID uuid.UUID, now time.Time) *AccountConfirmation {
	return &AccountConfirmation{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: &now,
		ExpiresAt: now.Add(TokenTTL),
	}
}

// NewAccountRecovery stamps a fresh recovery token for the user.
func NewAccountRecovery(userID uuid.UUID, now time.Time) *AccountRecovery {
	return &AccountRecovery{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: &now,
		ExpiresAt: now.Add(TokenTTL),
	}
}
