package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the explicit lifecycle state of an account.
type UserStatus string

const (
	// UserStatusPending is a freshly registered account awaiting activation.
	UserStatusPending UserStatus = "pending"
	// UserStatusActive is a fully enabled account.
	UserStatusActive UserStatus = "active"
	// UserStatusDisabled is an account an operator switched off.
	UserStatusDisabled UserStatus = "disabled"
)

// TokenPurpose discriminates what a pending token on a user row may redeem.
// An activation token can never finalize a password reset and vice versa.
type TokenPurpose string

const (
	// TokenPurposeActivation gates the pending -> active transition.
	TokenPurposeActivation TokenPurpose = "activation"
	// TokenPurposePasswordReset gates a password reset on an active account.
	TokenPurposePasswordReset TokenPurpose = "password_reset"
	// TokenPurposeEmailChange gates a staged email change. The token lives on
	// the PendingEmailChange row, never on the user row.
	TokenPurposeEmailChange TokenPurpose = "email_change"
)

// User is the account model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName      string         `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string         `bun:"last_name,notnull" json:"last_name,omitempty"`
	Username       string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string         `bun:"phone_number" json:"phone_number,omitempty"`
	Language       string         `bun:"language" json:"language,omitempty"`
	ProfilePicture string         `bun:"profile_picture" json:"profile_picture,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"-"`
	Status         UserStatus     `bun:"status,notnull" json:"status,omitempty"`
	TokenValue     *string        `bun:"pending_token,nullzero" json:"-"`
	TokenPurpose   TokenPurpose   `bun:"pending_token_purpose,nullzero" json:"-"`
	TokenIssuedAt  *time.Time     `bun:"pending_token_issued_at,nullzero" json:"-"`
	LoginAttempts  int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	DisabledAt     *time.Time     `bun:"disabled_at,nullzero" json:"disabled_at,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the status for rows created before the explicit
// lifecycle column existed. Such rows were always enabled accounts.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsPending reports whether the account still awaits activation.
func (u *User) IsPending() bool {
	u.EnsureStatus()
	return u.Status == UserStatusPending
}

// IsActive reports whether the account is enabled.
func (u *User) IsActive() bool {
	u.EnsureStatus()
	return u.Status == UserStatusActive
}

// IsDisabled reports whether an operator switched the account off.
func (u *User) IsDisabled() bool {
	u.EnsureStatus()
	return u.Status == UserStatusDisabled
}

// SetPendingToken stamps a pending token triple on the user record.
func (u *User) SetPendingToken(t PendingToken) *User {
	value := t.Value
	issuedAt := t.IssuedAt
	u.TokenValue = &value
	u.TokenPurpose = t.Purpose
	u.TokenIssuedAt = &issuedAt
	return u
}

// ClearPendingToken removes any pending token from the record.
func (u *User) ClearPendingToken() *User {
	u.TokenValue = nil
	u.TokenPurpose = ""
	u.TokenIssuedAt = nil
	return u
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// SelfView returns a copy safe to serialize for the account owner. Hash and
// token fields are already excluded from JSON but are blanked here too so the
// copy is inert regardless of how callers encode it.
func (u User) SelfView() User {
	v := u
	v.PasswordHash = ""
	v.TokenValue = nil
	v.TokenPurpose = ""
	v.TokenIssuedAt = nil
	v.Metadata = nil
	return v
}

// PublicView returns a copy safe to serialize for viewers other than the
// account owner: no email, no phone, no credential or token material.
func (u User) PublicView() User {
	v := u.SelfView()
	v.Email = ""
	v.Phone = ""
	return v
}

// PendingEmailChange stages an unconfirmed email change. There is at most one
// outstanding change per user; new requests overwrite the previous row.
type PendingEmailChange struct {
	bun.BaseModel `bun:"table:pending_email_changes,alias:pec"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"-"`
	TokenIssuedAt time.Time  `bun:"token_issued_at,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}
