// Package users is an account-management backend: registration with email
// activation, credential login with JWT session issuance, password reset and
// change, staged email changes, and profile management.
//
// Account lifecycle:
//   - Users carry an explicit UserStatus (pending, active, disabled) that is
//     persisted via Bun. Accounts are created pending with a fresh activation
//     token and become active only when that token is presented inside its
//     freshness window.
//   - Every token-gated transition (activation, password reset, email-change
//     confirmation) is a single conditional UPDATE guarded by token value,
//     token purpose, and token age. The statement either affects exactly one
//     row or the operation fails with ErrTokenInvalid; there is no separate
//     read-then-write step to race against.
//   - UserStateMachine centralizes the transition graph, hooks, and
//     persistence for operator-driven moves (disable, reinstate). Invoke
//     Transition with ActorRef metadata whenever an operator moves an account.
//
// Pending tokens:
//   - The pending token on a user row is tagged with a TokenPurpose so an
//     activation token can never finalize a password reset and vice versa.
//     Pending email changes keep their token on their own row, one per user.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther, the state
//     machine, and the command handlers to describe lifecycle, login, and
//     credential events. Sinks run best-effort (errors are logged) so you can
//     forward to a database or queue without blocking authentication.
package users
