package users

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token" doc:"Reset token from the reset email"`
	Password string `json:"password" example:"some_secret_word" doc:"New password"`
}

func (e FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

// FinalizePasswordResetHandler redeems a reset token and installs the new
// password. The conditional update enforces token match, purpose, freshness,
// and account status in one statement.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	provider LoggerProvider
	now      func() time.Time
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager) *FinalizePasswordResetHandler {
	provider, logger := ResolveLogger("users.password_reset", nil, nil)
	return &FinalizePasswordResetHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   logger,
		provider: provider,
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	h.provider, h.logger = ResolveLogger("users.password_reset", h.provider, logger)
	return h
}

// WithLoggerProvider overrides the logger provider used by the handler.
func (h *FinalizePasswordResetHandler) WithLoggerProvider(provider LoggerProvider) *FinalizePasswordResetHandler {
	h.provider, h.logger = ResolveLogger("users.password_reset", provider, h.logger)
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *FinalizePasswordResetHandler) WithClock(clock func() time.Time) *FinalizePasswordResetHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if event.Token == "" {
		return ErrTokenInvalid
	}

	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		holder, err := h.repo.Users().GetByPendingTokenTx(ctx, tx, event.Token, TokenPurposePasswordReset)
		if err != nil {
			return err
		}

		if err := statusAuthError(holder.Status); err != nil {
			return err
		}

		// Reusing the current password makes the reset a no-op, reject it.
		if ComparePasswordAndHash(event.Password, holder.PasswordHash) == nil {
			return ErrPasswordUnchanged
		}

		passwordHash, err := HashPassword(event.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
		}

		user, err = h.repo.Users().ResetPasswordByTokenTx(ctx, tx, event.Token, passwordHash, h.now())
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	h.recordActivity(ctx, user)

	return nil
}

func (h *FinalizePasswordResetHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.getLogger().Warn("activity sink error during password reset: %v", err)
	}
}

func (h *FinalizePasswordResetHandler) getLogger() Logger {
	if h.logger != nil {
		return h.logger
	}
	return defLogger{}
}
