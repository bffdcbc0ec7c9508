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

func TestUserProviderVerifyIdentity(t *testing.T) {
	ctx := context.Background()
	mockTracker := new(MockUserTracker)

	provider := users.NewUserProvider(mockTracker)

	passwordHash, err := users.HashPassword("password123")
	require.NoError(t, err)

	t.Run("Successful verification", func(t *testing.T) {
		userID := uuid.New()
		user := &users.User{
			ID:           userID,
			Username:     "testuser",
			Email:        "test@example.com",
			PasswordHash: passwordHash,
			Status:       users.UserStatusActive,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()
		mockTracker.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "password123")

		assert.NoError(t, err)
		assert.NotNil(t, identity)
		assert.Equal(t, userID.String(), identity.ID())
		assert.Equal(t, "testuser", identity.Username())
		assert.Equal(t, "test@example.com", identity.Email())

		mockTracker.AssertExpectations(t)
	})

	t.Run("Invalid password tracks the attempt", func(t *testing.T) {
		user := &users.User{
			ID:           uuid.New(),
			Username:     "testuser",
			Email:        "test@example.com",
			PasswordHash: passwordHash,
			Status:       users.UserStatusActive,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()
		mockTracker.On("TrackAttemptedLogin", ctx, user).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "wrong_password")

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Equal(t, users.ErrMismatchedHashAndPassword, err)

		mockTracker.AssertExpectations(t)
	})

	t.Run("Unknown identifier reads like a wrong password", func(t *testing.T) {
		mockTracker.On("GetByIdentifier", ctx, "nonexistent@example.com").
			Return(nil, users.ErrIdentityNotFound).Once()

		identity, err := provider.VerifyIdentity(ctx, "nonexistent@example.com", "password123")

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Equal(t, users.ErrMismatchedHashAndPassword, err)

		mockTracker.AssertExpectations(t)
	})

	t.Run("Pending account cannot log in", func(t *testing.T) {
		user := &users.User{
			ID:           uuid.New(),
			Username:     "testuser",
			Email:        "test@example.com",
			PasswordHash: passwordHash,
			Status:       users.UserStatusPending,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "password123")

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Equal(t, users.ErrAccountPending, err)

		mockTracker.AssertExpectations(t)
	})

	t.Run("Disabled account cannot log in", func(t *testing.T) {
		user := &users.User{
			ID:           uuid.New(),
			Username:     "testuser",
			Email:        "test@example.com",
			PasswordHash: passwordHash,
			Status:       users.UserStatusDisabled,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "password123")

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Equal(t, users.ErrAccountDisabled, err)

		mockTracker.AssertExpectations(t)
	})

	t.Run("Too many login attempts", func(t *testing.T) {
		now := time.Now()
		user := &users.User{
			ID:             uuid.New(),
			Username:       "testuser",
			Email:          "test@example.com",
			PasswordHash:   passwordHash,
			Status:         users.UserStatusActive,
			LoginAttempts:  users.MaxLoginAttempts + 1,
			LoginAttemptAt: &now,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "password123")

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Equal(t, users.ErrTooManyLoginAttempts, err)

		mockTracker.AssertExpectations(t)
	})

	t.Run("Login attempts cooldown expired", func(t *testing.T) {
		userID := uuid.New()
		oldAttempt := time.Now().Add(-48 * time.Hour)
		user := &users.User{
			ID:             userID,
			Username:       "testuser",
			Email:          "test@example.com",
			PasswordHash:   passwordHash,
			Status:         users.UserStatusActive,
			LoginAttempts:  users.MaxLoginAttempts + 1,
			LoginAttemptAt: &oldAttempt,
		}

		mockTracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()
		mockTracker.On("TrackSuccessfulLogin", ctx, mock.MatchedBy(func(u *users.User) bool {
			return u.ID == userID && u.LoginAttempts == 0 // attempts reset
		})).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "password123")

		assert.NoError(t, err)
		assert.NotNil(t, identity)
		assert.Equal(t, userID.String(), identity.ID())

		mockTracker.AssertExpectations(t)
	})
}

func TestUserProviderFindIdentityByIdentifier(t *testing.T) {
	ctx := context.Background()
	mockTracker := new(MockUserTracker)

	provider := users.NewUserProvider(mockTracker)

	t.Run("User found", func(t *testing.T) {
		userID := uuid.New()
		user := &users.User{
			ID:       userID,
			Username: "testuser",
			Email:    "test@example.com",
			Status:   users.UserStatusActive,
		}

		mockTracker.On("GetByIdentifier", ctx, "testuser").Return(user, nil).Once()

		identity, err := provider.FindIdentityByIdentifier(ctx, "testuser")

		assert.NoError(t, err)
		assert.NotNil(t, identity)
		assert.Equal(t, userID.String(), identity.ID())
		assert.Equal(t, "testuser", identity.Username())

		mockTracker.AssertExpectations(t)
	})

	t.Run("User not found", func(t *testing.T) {
		mockTracker.On("GetByIdentifier", ctx, "missing").
			Return(nil, users.ErrIdentityNotFound).Once()

		identity, err := provider.FindIdentityByIdentifier(ctx, "missing")

		assert.Error(t, err)
		assert.Nil(t, identity)

		mockTracker.AssertExpectations(t)
	})

	t.Run("Disabled account is blocked", func(t *testing.T) {
		user := &users.User{
			ID:       uuid.New(),
			Username: "testuser",
			Email:    "test@example.com",
			Status:   users.UserStatusDisabled,
		}

		mockTracker.On("GetByIdentifier", ctx, "testuser").Return(user, nil).Once()

		identity, err := provider.FindIdentityByIdentifier(ctx, "testuser")

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Equal(t, users.ErrAccountDisabled, err)

		mockTracker.AssertExpectations(t)
	})

	t.Run("Custom validator rejects the user", func(t *testing.T) {
		customProvider := users.NewUserProvider(mockTracker)
		customProvider.Validator = func(u *users.User) error {
			return users.ErrUnauthorized
		}

		user := &users.User{
			ID:       uuid.New(),
			Username: "testuser",
			Status:   users.UserStatusActive,
		}

		mockTracker.On("GetByIdentifier", ctx, "testuser").Return(user, nil).Once()

		identity, err := customProvider.FindIdentityByIdentifier(ctx, "testuser")

		assert.Error(t, err)
		assert.Nil(t, identity)
		assert.Equal(t, users.ErrUnauthorized, err)

		mockTracker.AssertExpectations(t)
	})
}
