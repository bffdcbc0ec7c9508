package users

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to the structured errors below. API clients branch on
// these rather than on message strings.
const (
	TextCodeInvalidCreds      = "INVALID_CREDENTIALS"
	TextCodeAccountDisabled   = "ACCOUNT_DISABLED"
	TextCodeAccountPending    = "ACCOUNT_PENDING"
	TextCodeAlreadyActive     = "ALREADY_ACTIVE"
	TextCodeTokenInvalid      = "TOKEN_INVALID"
	TextCodeTokenExpired      = "AUTH_TOKEN_EXPIRED"
	TextCodeTokenMalformed    = "AUTH_TOKEN_MALFORMED"
	TextCodeEmailInUse        = "EMAIL_IN_USE"
	TextCodeUnknownEmail      = "UNKNOWN_EMAIL"
	TextCodePasswordUnchanged = "PASSWORD_UNCHANGED"
	TextCodeUnauthorized      = "UNAUTHORIZED"
	TextCodeEmptyPassword     = "EMPTY_PASSWORD"
	TextCodeTooManyAttempts   = "TOO_MANY_LOGIN_ATTEMPTS"
)

// ErrMismatchedHashAndPassword is returned when a password does not verify
// against the stored hash. It reads the same as an unknown identifier so the
// API does not disclose which half of the credential pair was wrong.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidCredentials is the public alias for credential failures.
var ErrInvalidCredentials = ErrMismatchedHashAndPassword

// ErrAccountDisabled blocks every credential operation on a disabled account.
var ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrAccountPending blocks logins until the activation token is redeemed.
var ErrAccountPending = goerrors.New("account has not been activated", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountPending).
	WithCode(goerrors.CodeForbidden)

// ErrAlreadyActive is returned when an activation flow targets an account
// that no longer needs one.
var ErrAlreadyActive = goerrors.New("account is already active", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyActive).
	WithCode(goerrors.CodeConflict)

// ErrTokenInvalid covers both an unknown pending token and an expired one.
// The two cases are deliberately indistinguishable to callers.
var ErrTokenInvalid = goerrors.New("token is invalid or has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeForbidden)

// ErrEmailInUse is returned when a requested email belongs to another account.
var ErrEmailInUse = goerrors.New("email is already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailInUse).
	WithCode(goerrors.CodeConflict)

// ErrUnknownEmail is returned when a reset or reactivation flow references an
// email no account owns.
var ErrUnknownEmail = goerrors.New("no account matches the given email", goerrors.CategoryBadInput).
	WithTextCode(TextCodeUnknownEmail).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordUnchanged is returned when a new password hashes identically to
// the one already stored.
var ErrPasswordUnchanged = goerrors.New("new password must differ from the old password", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordUnchanged).
	WithCode(goerrors.CodeBadRequest)

// ErrUnauthorized is returned when a caller operates on an account they do
// not own.
var ErrUnauthorized = goerrors.New("caller may not operate on this account", goerrors.CategoryAuthz).
	WithTextCode(TextCodeUnauthorized).
	WithCode(goerrors.CodeForbidden)

// ErrTooManyLoginAttempts is returned once the attempt counter passes
// MaxLoginAttempts inside the cooldown window.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts, try again later", goerrors.CategoryAuth).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(goerrors.CodeForbidden)

// ErrNoEmptyString rejects empty passwords before they reach the hasher.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned for session JWTs past their expiry.
var ErrTokenExpired = goerrors.New("session token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for session JWTs that fail to parse or verify.
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrImmutableClaimMutation is returned when a claims decorator rewrites a
// registered claim the token service owns.
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryAuth).
	WithCode(goerrors.CodeInternal)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrUnableToFindSession is the error when our request has no session token
var ErrUnableToFindSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToDecodeSession unable to decode JWT from the session carrier
var ErrUnableToDecodeSession = goerrors.New("unable to decode session", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = goerrors.New("unable to map claims", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToParseData parse error
var ErrUnableToParseData = goerrors.New("unable to parse data", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// statusAuthError maps a lifecycle status to the error that should block a
// credential operation, or nil when the status allows it.
func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusPending:
		return ErrAccountPending
	case UserStatusDisabled:
		return ErrAccountDisabled
	default:
		return nil
	}
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
