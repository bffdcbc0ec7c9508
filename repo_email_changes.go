package users

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EmailChanges stages unconfirmed email changes. A user has at most one open
// request; staging a new one replaces the previous token and address.
type EmailChanges interface {
	repository.Repository[*PendingEmailChange]

	Stage(ctx context.Context, change *PendingEmailChange) (*PendingEmailChange, error)
	StageTx(ctx context.Context, tx bun.IDB, change *PendingEmailChange) (*PendingEmailChange, error)
	GetFreshByToken(ctx context.Context, token string, now time.Time) (*PendingEmailChange, error)
	GetFreshByTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*PendingEmailChange, error)
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
}

type emailChanges struct {
	repository.Repository[*PendingEmailChange]
	db *bun.DB
}

var _ EmailChanges = (*emailChanges)(nil)

func NewEmailChangesRepository(db *bun.DB) EmailChanges {
	handlers := repository.ModelHandlers[*PendingEmailChange]{
		NewRecord: func() *PendingEmailChange {
			return &PendingEmailChange{}
		},
		GetID: func(record *PendingEmailChange) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PendingEmailChange, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token"
		},
	}

	return &emailChanges{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

func (r *emailChanges) Stage(ctx context.Context, change *PendingEmailChange) (*PendingEmailChange, error) {
	return r.StageTx(ctx, r.db, change)
}

func (r *emailChanges) StageTx(ctx context.Context, tx bun.IDB, change *PendingEmailChange) (*PendingEmailChange, error) {
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}

	_, err := tx.NewInsert().
		Model(change).
		On("CONFLICT (user_id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("token = EXCLUDED.token").
		Set("token_issued_at = EXCLUDED.token_issued_at").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)

	if err != nil {
		return nil, err
	}

	return change, nil
}

func (r *emailChanges) GetFreshByToken(ctx context.Context, token string, now time.Time) (*PendingEmailChange, error) {
	return r.GetFreshByTokenTx(ctx, r.db, token, now)
}

// GetFreshByTokenTx resolves a staged change by token, treating stale tokens
// the same as unknown ones.
func (r *emailChanges) GetFreshByTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*PendingEmailChange, error) {
	record := &PendingEmailChange{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Where("?TableAlias.token_issued_at >= ?", tokenFreshnessCutoff(now)).
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

func (r *emailChanges) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*PendingEmailChange)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}
