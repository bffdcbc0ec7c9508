package users

import (
	"time"

	"github.com/google/uuid"
)

// PendingToken is a single-use, time-limited value mailed to an account
// holder to prove control of their inbox. Redemption happens through the
// repositories' conditional updates, never by comparing fields in Go.
type PendingToken struct {
	Value    string
	Purpose  TokenPurpose
	IssuedAt time.Time
}

// NewPendingToken mints a fresh token for the given purpose.
func NewPendingToken(purpose TokenPurpose) PendingToken {
	return NewPendingTokenAt(purpose, time.Now())
}

// NewPendingTokenAt mints a token stamped with an explicit issue time.
func NewPendingTokenAt(purpose TokenPurpose, now time.Time) PendingToken {
	return PendingToken{
		Value:    uuid.NewString(),
		Purpose:  purpose,
		IssuedAt: now,
	}
}

// IsFresh reports whether the token is still inside its freshness window at
// the given instant.
func (t PendingToken) IsFresh(now time.Time) bool {
	return t.IssuedAt.After(tokenFreshnessCutoff(now))
}
