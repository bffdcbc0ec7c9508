package users_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestEmailChangesRepository(t *testing.T) {
	mngr, cleanup := setupUsersStore(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("Stage keeps one open request per user", func(t *testing.T) {
		user := seedUser(t, mngr.Users(), users.UserStatusActive)

		first := users.NewPendingTokenAt(users.TokenPurposeEmailChange, time.Now().UTC())
		_, err := mngr.EmailChanges().Stage(ctx, &users.PendingEmailChange{
			UserID:        user.ID,
			Email:         "first@example.com",
			Token:         first.Value,
			TokenIssuedAt: first.IssuedAt,
		})
		require.NoError(t, err)

		second := users.NewPendingTokenAt(users.TokenPurposeEmailChange, time.Now().UTC())
		_, err = mngr.EmailChanges().Stage(ctx, &users.PendingEmailChange{
			UserID:        user.ID,
			Email:         "second@example.com",
			Token:         second.Value,
			TokenIssuedAt: second.IssuedAt,
		})
		require.NoError(t, err)

		// the new request replaced the old one
		_, err = mngr.EmailChanges().GetFreshByToken(ctx, first.Value, time.Now().UTC())
		assert.Equal(t, users.ErrTokenInvalid, err)

		staged, err := mngr.EmailChanges().GetFreshByToken(ctx, second.Value, time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, user.ID, staged.UserID)
		assert.Equal(t, "second@example.com", staged.Email)
	})

	t.Run("Stale tokens read the same as unknown ones", func(t *testing.T) {
		user := seedUser(t, mngr.Users(), users.UserStatusActive)

		stale := users.NewPendingTokenAt(users.TokenPurposeEmailChange, time.Now().UTC().Add(-11*time.Minute))
		_, err := mngr.EmailChanges().Stage(ctx, &users.PendingEmailChange{
			UserID:        user.ID,
			Email:         "stale@example.com",
			Token:         stale.Value,
			TokenIssuedAt: stale.IssuedAt,
		})
		require.NoError(t, err)

		_, err = mngr.EmailChanges().GetFreshByToken(ctx, stale.Value, time.Now().UTC())
		assert.Equal(t, users.ErrTokenInvalid, err)

		_, err = mngr.EmailChanges().GetFreshByToken(ctx, uuid.NewString(), time.Now().UTC())
		assert.Equal(t, users.ErrTokenInvalid, err)
	})

	t.Run("DeleteByUser clears the staged request", func(t *testing.T) {
		user := seedUser(t, mngr.Users(), users.UserStatusActive)

		token := users.NewPendingTokenAt(users.TokenPurposeEmailChange, time.Now().UTC())
		_, err := mngr.EmailChanges().Stage(ctx, &users.PendingEmailChange{
			UserID:        user.ID,
			Email:         "staged@example.com",
			Token:         token.Value,
			TokenIssuedAt: token.IssuedAt,
		})
		require.NoError(t, err)

		err = mngr.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return mngr.EmailChanges().DeleteByUserTx(ctx, tx, user.ID)
		})
		require.NoError(t, err)

		_, err = mngr.EmailChanges().GetFreshByToken(ctx, token.Value, time.Now().UTC())
		assert.Equal(t, users.ErrTokenInvalid, err)
	})
}
