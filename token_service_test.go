package users_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(expirationHours int) users.TokenService {
	return users.NewTokenService(
		[]byte("test-signing-key"),
		expirationHours,
		"go-users-test",
		jwt.ClaimStrings{"go-users-test"},
		nil,
	)
}

func TestTokenServiceGenerateAndValidate(t *testing.T) {
	service := newTestTokenService(24)
	identity := activeIdentity()

	token, err := service.Generate(identity)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, identity.id, claims.Subject())
	assert.Equal(t, identity.id, claims.UserID())
	assert.Equal(t, "testuser", claims.Username())
	assert.WithinDuration(t, claims.IssuedAt().Add(24*time.Hour), claims.Expires(), time.Second)
}

func TestTokenServiceSignClaims(t *testing.T) {
	service := newTestTokenService(24)

	t.Run("Nil claims are rejected", func(t *testing.T) {
		_, err := service.SignClaims(nil)
		assert.Error(t, err)
	})

	t.Run("Signed claims validate", func(t *testing.T) {
		now := time.Now()
		claims := &users.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "go-users-test",
				Subject:   "user-1",
				Audience:  jwt.ClaimStrings{"go-users-test"},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
			UID:   "user-1",
			Uname: "someone",
		}

		token, err := service.SignClaims(claims)
		require.NoError(t, err)

		parsed, err := service.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", parsed.UserID())
		assert.Equal(t, "someone", parsed.Username())
	})
}

func TestTokenServiceValidate(t *testing.T) {
	service := newTestTokenService(24)

	t.Run("Garbage input is malformed", func(t *testing.T) {
		_, err := service.Validate("garbage")
		assert.True(t, users.IsMalformedError(err))
	})

	t.Run("Wrong signing key is malformed", func(t *testing.T) {
		other := users.NewTokenService([]byte("other-key"), 24, "go-users-test", jwt.ClaimStrings{"go-users-test"}, nil)
		token, err := other.Generate(activeIdentity())
		require.NoError(t, err)

		_, err = service.Validate(token)
		assert.True(t, users.IsMalformedError(err))
	})

	t.Run("Wrong issuer is rejected", func(t *testing.T) {
		other := users.NewTokenService([]byte("test-signing-key"), 24, "someone-else", jwt.ClaimStrings{"go-users-test"}, nil)
		token, err := other.Generate(activeIdentity())
		require.NoError(t, err)

		_, err = service.Validate(token)
		assert.Error(t, err)
	})

	t.Run("Expired token", func(t *testing.T) {
		expired := newTestTokenService(-1)
		token, err := expired.Generate(activeIdentity())
		require.NoError(t, err)

		_, err = expired.Validate(token)
		assert.Equal(t, users.ErrTokenExpired, err)
	})

	t.Run("Unexpected signing algorithm is rejected", func(t *testing.T) {
		// alg: none tokens must never validate
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Issuer:  "go-users-test",
			Subject: "user-1",
		})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = service.Validate(raw)
		assert.Error(t, err)
	})
}
