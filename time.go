package users

import "time"

// TokenFreshnessWindow is the validity period applied to every pending token
// (activation, password reset, email change), as a time.ParseDuration string.
var TokenFreshnessWindow = "10m"

// IsWithinThresholdPeriod checks if the given time is within the threshold
func IsWithinThresholdPeriod(t time.Time, pattern string) (bool, error) {
	duration, err := time.ParseDuration(pattern)
	if err != nil {
		return false, err
	}

	threshold := time.Now().Add(-duration)
	if t.After(threshold) {
		return true, nil
	}

	return false, nil
}

// IsOutsideThresholdPeriod is the negation of IsWithinThresholdPeriod
func IsOutsideThresholdPeriod(t time.Time, pattern string) (bool, error) {
	valid, err := IsWithinThresholdPeriod(t, pattern)
	if err != nil {
		return false, err
	}

	return !valid, nil
}

// tokenFreshnessCutoff returns the oldest issued-at timestamp a pending token
// may carry and still be redeemable, relative to now.
func tokenFreshnessCutoff(now time.Time) time.Time {
	duration, err := time.ParseDuration(TokenFreshnessWindow)
	if err != nil {
		duration = 10 * time.Minute
	}
	return now.Add(-duration)
}
