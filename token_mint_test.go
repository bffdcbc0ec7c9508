package users_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintScopedToken(t *testing.T) {
	service := users.NewTokenService(
		[]byte("test-signing-key"),
		24,
		"go-users-test",
		[]string{"go-users-test"},
		nil,
	)

	identity := activeIdentity()

	t.Run("Mints a token carrying scopes and a jti", func(t *testing.T) {
		issuedAt := time.Now().Truncate(time.Second)

		token, expiresAt, err := users.MintScopedToken(service, identity, users.ScopedTokenOptions{
			TTL:      15 * time.Minute,
			IssuedAt: issuedAt,
			Scopes:   []string{"profile:read"},
		})

		require.NoError(t, err)
		assert.Equal(t, issuedAt.Add(15*time.Minute), expiresAt)

		claims, err := service.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, identity.ID(), claims.UserID())
		assert.Equal(t, identity.Username(), claims.Username())
		assert.Equal(t, expiresAt.Unix(), claims.Expires().Unix())

		jwtClaims, ok := claims.(*users.JWTClaims)
		require.True(t, ok)
		assert.Equal(t, []string{"profile:read"}, jwtClaims.Scopes)
		assert.NotEmpty(t, jwtClaims.ID)
		assert.Equal(t, "go-users-test", jwtClaims.Issuer)
	})

	t.Run("Falls back to service defaults for TTL", func(t *testing.T) {
		issuedAt := time.Now().Truncate(time.Second)

		_, expiresAt, err := users.MintScopedToken(service, identity, users.ScopedTokenOptions{
			IssuedAt: issuedAt,
		})

		require.NoError(t, err)
		assert.Equal(t, issuedAt.Add(24*time.Hour), expiresAt)
	})

	t.Run("Rejects missing collaborators", func(t *testing.T) {
		_, _, err := users.MintScopedToken(nil, identity, users.ScopedTokenOptions{})
		assert.Error(t, err)

		_, _, err = users.MintScopedToken(service, nil, users.ScopedTokenOptions{})
		assert.Error(t, err)
	})

	t.Run("Rejects a negative TTL", func(t *testing.T) {
		_, _, err := users.MintScopedToken(service, identity, users.ScopedTokenOptions{TTL: -time.Minute})
		assert.Error(t, err)
	})
}
