package users

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivateUserSQL flips a pending account to active if, and only if, the
// presented token matches an activation token issued inside the freshness
// window. The WHERE clause is the whole check: zero rows back means the token
// was wrong, stale, or the account is no longer pending.
var ActivateUserSQL = `UPDATE "users" AS "usr"
SET
	"status" = 'active',
	"pending_token" = NULL,
	"pending_token_purpose" = NULL,
	"pending_token_issued_at" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."status" = 'pending'
AND "usr"."pending_token" = ?
AND "usr"."pending_token_purpose" = 'activation'
AND "usr"."pending_token_issued_at" >= ?
RETURNING *;`

// ResetUserPasswordSQL installs a new password hash gated on a fresh reset
// token. Only active accounts qualify.
var ResetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"pending_token" = NULL,
	"pending_token_purpose" = NULL,
	"pending_token_issued_at" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."status" = 'active'
AND "usr"."pending_token" = ?
AND "usr"."pending_token_purpose" = 'password_reset'
AND "usr"."pending_token_issued_at" >= ?
RETURNING *;`

// IssuePendingTokenSQL stamps a fresh token triple on a user row, replacing
// whatever token was there before.
var IssuePendingTokenSQL = `UPDATE "users" AS "usr"
SET
	"pending_token" = ?,
	"pending_token_purpose" = ?,
	"pending_token_issued_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
RETURNING *;`

// UpdateUserPasswordSQL swaps the password hash on an active account.
var UpdateUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."status" = 'active'
AND "usr"."id" = ?
RETURNING *;`

// UpdateUserEmailSQL installs a confirmed email on an active account.
var UpdateUserEmailSQL = `UPDATE "users" AS "usr"
SET
	"email" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."status" = 'active'
AND "usr"."id" = ?
RETURNING *;`

// ProfileChanges carries the editable profile fields. Nil pointers leave the
// stored value untouched.
type ProfileChanges struct {
	FirstName      *string
	LastName       *string
	Username       *string
	Phone          *string
	Language       *string
	ProfilePicture *string
}

func (p ProfileChanges) isEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Username == nil &&
		p.Phone == nil && p.Language == nil && p.ProfilePicture == nil
}

type Users interface {
	repository.Repository[*User]

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	Disable(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)
	Reinstate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)

	GetByPendingToken(ctx context.Context, token string, purpose TokenPurpose) (*User, error)
	GetByPendingTokenTx(ctx context.Context, tx bun.IDB, token string, purpose TokenPurpose) (*User, error)
	IssuePendingToken(ctx context.Context, id uuid.UUID, token PendingToken) (*User, error)
	IssuePendingTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token PendingToken) (*User, error)
	ActivateByToken(ctx context.Context, token string, now time.Time) (*User, error)
	ActivateByTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*User, error)
	ResetPasswordByToken(ctx context.Context, token, passwordHash string, now time.Time) (*User, error)
	ResetPasswordByTokenTx(ctx context.Context, tx bun.IDB, token, passwordHash string, now time.Time) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) (*User, error)
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) (*User, error)
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*User, error)
	UpdateEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, changes ProfileChanges) (*User, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, changes ProfileChanges) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db                  *bun.DB
	stateMachine        UserStateMachine
	stateMachineOptions []StateMachineOption
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func WithUsersStateMachineOptions(options ...StateMachineOption) UsersOption {
	return func(u *users) {
		if len(options) == 0 {
			return
		}
		u.stateMachineOptions = append(u.stateMachineOptions, options...)
		u.stateMachine = nil
	}
}

func WithUsersStateMachine(sm UserStateMachine) UsersOption {
	return func(u *users) {
		u.stateMachine = sm
	}
}

// Register creates a pending account carrying a fresh activation token. The
// caller mails the token; the row stays pending until ActivateByToken redeems
// it.
func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user == nil {
		return nil, repository.NewRecordNotFound()
	}

	user.Status = UserStatusPending
	if user.TokenValue == nil || user.TokenPurpose != TokenPurposeActivation {
		user.SetPendingToken(NewPendingToken(TokenPurposeActivation))
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	options := resolveUserIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) GetByPendingToken(ctx context.Context, token string, purpose TokenPurpose) (*User, error) {
	return a.GetByPendingTokenTx(ctx, a.db, token, purpose)
}

// GetByPendingTokenTx resolves the holder of a pending token without checking
// freshness. Redemption still goes through the conditional updates, this is
// for pre-checks that need the stored row.
func (a *users) GetByPendingTokenTx(ctx context.Context, tx bun.IDB, token string, purpose TokenPurpose) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.pending_token = ?", token).
		Where("?TableAlias.pending_token_purpose = ?", purpose).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	return record, nil
}

func (a *users) IssuePendingToken(ctx context.Context, id uuid.UUID, token PendingToken) (*User, error) {
	return a.IssuePendingTokenTx(ctx, a.db, id, token)
}

func (a *users) IssuePendingTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token PendingToken) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, IssuePendingTokenSQL,
		token.Value, string(token.Purpose), token.IssuedAt, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return res[0], nil
}

func (a *users) ActivateByToken(ctx context.Context, token string, now time.Time) (*User, error) {
	return a.ActivateByTokenTx(ctx, a.db, token, now)
}

func (a *users) ActivateByTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, ActivateUserSQL, token, tokenFreshnessCutoff(now))
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, ErrTokenInvalid
	}

	return res[0], nil
}

func (a *users) ResetPasswordByToken(ctx context.Context, token, passwordHash string, now time.Time) (*User, error) {
	return a.ResetPasswordByTokenTx(ctx, a.db, token, passwordHash, now)
}

func (a *users) ResetPasswordByTokenTx(ctx context.Context, tx bun.IDB, token, passwordHash string, now time.Time) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, ResetUserPasswordSQL,
		passwordHash, token, tokenFreshnessCutoff(now))
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, ErrTokenInvalid
	}

	return res[0], nil
}

func (a *users) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) (*User, error) {
	return a.UpdatePasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, UpdateUserPasswordSQL, passwordHash, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, a.explainMissedConditionalUpdate(ctx, tx, id)
	}

	return res[0], nil
}

func (a *users) UpdateEmail(ctx context.Context, id uuid.UUID, email string) (*User, error) {
	return a.UpdateEmailTx(ctx, a.db, id, email)
}

func (a *users) UpdateEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, UpdateUserEmailSQL, email, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, a.explainMissedConditionalUpdate(ctx, tx, id)
	}

	return res[0], nil
}

func (a *users) UpdateProfile(ctx context.Context, id uuid.UUID, changes ProfileChanges) (*User, error) {
	return a.UpdateProfileTx(ctx, a.db, id, changes)
}

func (a *users) UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, changes ProfileChanges) (*User, error) {
	if changes.isEmpty() {
		return a.GetByIdentifierTx(ctx, tx, id.String())
	}

	record := &User{}
	q := tx.NewUpdate().Model(record)

	setColumn := func(column string, value *string) {
		if value != nil {
			q.Set(fmt.Sprintf("%q = ?", column), *value)
		}
	}
	setColumn("first_name", changes.FirstName)
	setColumn("last_name", changes.LastName)
	setColumn("username", changes.Username)
	setColumn("phone_number", changes.Phone)
	setColumn("language", changes.Language)
	setColumn("profile_picture", changes.ProfilePicture)

	err := q.
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.status = ?", UserStatusActive).
		Where("?TableAlias.deleted_at IS NULL").
		Returning("*").
		Scan(ctx, record)

	if err != nil {
		if err == sql.ErrNoRows || repository.IsRecordNotFound(err) {
			return nil, a.explainMissedConditionalUpdate(ctx, tx, id)
		}
		return nil, err
	}

	return record, nil
}

// explainMissedConditionalUpdate turns a zero-row conditional update against
// an id into the error the caller can act on: the row is missing, or its
// status blocked the write.
func (a *users) explainMissedConditionalUpdate(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	user, err := a.GetByIdentifierTx(ctx, tx, id.String())
	if err != nil {
		return err
	}

	if statusErr := statusAuthError(user.Status); statusErr != nil {
		return statusErr
	}

	return repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"id": id.String(),
		})
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(user.ID.String()),
	}

	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	record := &User{
		ID:     id,
		Status: status,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *users) Disable(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusDisabled, opts...)
}

func (a *users) Reinstate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStatusActive, opts...)
}

// StatusUpdateOption allows callers to mutate the user record before persisting status changes.
type StatusUpdateOption func(*User)

// WithDisabledAt sets the DisabledAt timestamp during a status transition.
func WithDisabledAt(at *time.Time) StatusUpdateOption {
	return func(u *User) {
		u.DisabledAt = at
	}
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}

func (a *users) lifecycleMachine() UserStateMachine {
	if a.stateMachine == nil {
		a.stateMachine = NewUserStateMachine(a, a.stateMachineOptions...)
	}
	return a.stateMachine
}
