package users_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestChangePasswordHandler(t *testing.T) {
	oldHash, err := users.HashPassword("old password")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Swaps the password after verifying the old one", func(t *testing.T) {
		repo := newMockRepo()
		sink := &recordingSink{}
		handler := users.NewChangePasswordHandler(repo).WithActivitySink(sink)

		user := &users.User{
			ID:           uuid.New(),
			Status:       users.UserStatusActive,
			PasswordHash: oldHash,
		}

		repo.users.On("GetByIdentifierTx", mock.Anything, mock.Anything, user.ID.String()).
			Return(user, nil).Once()
		repo.users.On("UpdatePasswordTx", mock.Anything, mock.Anything, user.ID, mock.MatchedBy(func(hash string) bool {
			return users.ComparePasswordAndHash("new password", hash) == nil
		})).Return(user, nil).Once()

		err := handler.Execute(context.Background(), users.ChangePasswordMessage{
			UserID:      user.ID.String(),
			OldPassword: "old password",
			NewPassword: "new password",
		})

		require.NoError(t, err)
		require.Len(t, sink.events, 1)
		assert.Equal(t, users.ActivityEventPasswordChanged, sink.events[0].EventType)

		repo.users.AssertExpectations(t)
	})

	t.Run("Identical old and new passwords are rejected upfront", func(t *testing.T) {
		repo := newMockRepo()
		handler := users.NewChangePasswordHandler(repo)

		err := handler.Execute(context.Background(), users.ChangePasswordMessage{
			UserID:      uuid.NewString(),
			OldPassword: "same password",
			NewPassword: "same password",
		})

		assert.Equal(t, users.ErrPasswordUnchanged, err)
		repo.users.AssertNotCalled(t, "GetByIdentifierTx")
	})

	t.Run("Wrong old password is rejected", func(t *testing.T) {
		repo := newMockRepo()
		handler := users.NewChangePasswordHandler(repo)

		user := &users.User{
			ID:           uuid.New(),
			Status:       users.UserStatusActive,
			PasswordHash: oldHash,
		}

		repo.users.On("GetByIdentifierTx", mock.Anything, mock.Anything, user.ID.String()).
			Return(user, nil).Once()

		err := handler.Execute(context.Background(), users.ChangePasswordMessage{
			UserID:      user.ID.String(),
			OldPassword: "not the old password",
			NewPassword: "new password",
		})

		assert.Equal(t, users.ErrMismatchedHashAndPassword, err)
		repo.users.AssertNotCalled(t, "UpdatePasswordTx")
	})

	t.Run("Disabled accounts cannot change their password", func(t *testing.T) {
		repo := newMockRepo()
		handler := users.NewChangePasswordHandler(repo)

		user := &users.User{
			ID:           uuid.New(),
			Status:       users.UserStatusDisabled,
			PasswordHash: oldHash,
		}

		repo.users.On("GetByIdentifierTx", mock.Anything, mock.Anything, user.ID.String()).
			Return(user, nil).Once()

		err := handler.Execute(context.Background(), users.ChangePasswordMessage{
			UserID:      user.ID.String(),
			OldPassword: "old password",
			NewPassword: "new password",
		})

		assert.Equal(t, users.ErrAccountDisabled, err)
	})

	t.Run("Unknown account", func(t *testing.T) {
		repo := newMockRepo()
		handler := users.NewChangePasswordHandler(repo)

		id := uuid.NewString()
		repo.users.On("GetByIdentifierTx", mock.Anything, mock.Anything, id).
			Return(nil, repository.NewRecordNotFound()).Once()

		err := handler.Execute(context.Background(), users.ChangePasswordMessage{
			UserID:      id,
			OldPassword: "old password",
			NewPassword: "new password",
		})

		assert.Equal(t, users.ErrIdentityNotFound, err)
	})
}
