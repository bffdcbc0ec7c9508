package users_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-users"
	"github.com/stretchr/testify/assert"
)

func TestIsWithinThresholdPeriod(t *testing.T) {
	t.Run("Recent timestamp is inside", func(t *testing.T) {
		inside, err := users.IsWithinThresholdPeriod(time.Now().Add(-5*time.Minute), "10m")
		assert.NoError(t, err)
		assert.True(t, inside)
	})

	t.Run("Old timestamp is outside", func(t *testing.T) {
		inside, err := users.IsWithinThresholdPeriod(time.Now().Add(-15*time.Minute), "10m")
		assert.NoError(t, err)
		assert.False(t, inside)
	})

	t.Run("Invalid pattern errors", func(t *testing.T) {
		_, err := users.IsWithinThresholdPeriod(time.Now(), "not-a-duration")
		assert.Error(t, err)
	})
}

func TestIsOutsideThresholdPeriod(t *testing.T) {
	t.Run("Old timestamp is outside", func(t *testing.T) {
		outside, err := users.IsOutsideThresholdPeriod(time.Now().Add(-48*time.Hour), "24h")
		assert.NoError(t, err)
		assert.True(t, outside)
	})

	t.Run("Recent timestamp is not outside", func(t *testing.T) {
		outside, err := users.IsOutsideThresholdPeriod(time.Now().Add(-1*time.Hour), "24h")
		assert.NoError(t, err)
		assert.False(t, outside)
	})

	t.Run("Invalid pattern errors", func(t *testing.T) {
		_, err := users.IsOutsideThresholdPeriod(time.Now(), "bogus")
		assert.Error(t, err)
	})
}
