package users_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestActivateAccountHandler(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Redeems a valid token", func(t *testing.T) {
		repo := newMockRepo()
		sink := &recordingSink{}
		handler := users.NewActivateAccountHandler(repo).
			WithActivitySink(sink).
			WithClock(func() time.Time { return now })

		activated := &users.User{
			ID:       uuid.New(),
			Username: "ada",
			Status:   users.UserStatusActive,
		}

		repo.users.On("ActivateByTokenTx", mock.Anything, mock.Anything, "the-token", now).
			Return(activated, nil).Once()

		var seen *users.User
		err := handler.Execute(context.Background(), users.ActivateAccountMessage{
			Token:  "the-token",
			OnUser: func(u *users.User) { seen = u },
		})

		require.NoError(t, err)
		assert.Same(t, activated, seen)

		require.Len(t, sink.events, 1)
		assert.Equal(t, users.ActivityEventAccountActivated, sink.events[0].EventType)
		assert.Equal(t, users.UserStatusPending, sink.events[0].FromStatus)
		assert.Equal(t, users.UserStatusActive, sink.events[0].ToStatus)
		assert.Equal(t, activated.ID.String(), sink.events[0].UserID)

		repo.users.AssertExpectations(t)
	})

	t.Run("Unknown or stale tokens fail as invalid", func(t *testing.T) {
		repo := newMockRepo()
		handler := users.NewActivateAccountHandler(repo)

		repo.users.On("ActivateByTokenTx", mock.Anything, mock.Anything, "bad-token", mock.Anything).
			Return(nil, users.ErrTokenInvalid).Once()

		err := handler.Execute(context.Background(), users.ActivateAccountMessage{Token: "bad-token"})

		assert.Equal(t, users.ErrTokenInvalid, err)
		repo.users.AssertExpectations(t)
	})

	t.Run("Empty token never reaches the database", func(t *testing.T) {
		repo := newMockRepo()
		handler := users.NewActivateAccountHandler(repo)

		err := handler.Execute(context.Background(), users.ActivateAccountMessage{})

		assert.Equal(t, users.ErrTokenInvalid, err)
		repo.users.AssertNotCalled(t, "ActivateByTokenTx")
	})

	t.Run("Cancelled context aborts", func(t *testing.T) {
		repo := newMockRepo()
		handler := users.NewActivateAccountHandler(repo)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := handler.Execute(ctx, users.ActivateAccountMessage{Token: "the-token"})

		assert.Error(t, err)
		repo.users.AssertNotCalled(t, "ActivateByTokenTx")
	})
}
