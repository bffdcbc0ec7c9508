package users

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ConfirmEmailChangeMessage struct {
	Token  string `json:"token" doc:"Confirmation token from the change email"`
	OnUser func(user *User)
}

func (e ConfirmEmailChangeMessage) Type() string { return "user.email_change.confirm" }

// ConfirmEmailChangeHandler redeems an email change token. Resolving the
// staged change, rewriting the user's email, and discarding the staged row
// happen inside one transaction so a crash can never apply half the change.
type ConfirmEmailChangeHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewConfirmEmailChangeHandler(repo RepositoryManager) *ConfirmEmailChangeHandler {
	return &ConfirmEmailChangeHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit events.
func (h *ConfirmEmailChangeHandler) WithActivitySink(sink ActivitySink) *ConfirmEmailChangeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmEmailChangeHandler) WithLogger(logger Logger) *ConfirmEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *ConfirmEmailChangeHandler) WithClock(clock func() time.Time) *ConfirmEmailChangeHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *ConfirmEmailChangeHandler) Execute(ctx context.Context, event ConfirmEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailChangeHandler) execute(ctx context.Context, event ConfirmEmailChangeMessage) error {
	if event.Token == "" {
		return ErrTokenInvalid
	}

	user := &User{}
	var previousEmail string

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		change, err := h.repo.EmailChanges().GetFreshByTokenTx(ctx, tx, event.Token, h.now())
		if err != nil {
			return err
		}

		current, err := h.repo.Users().GetByIdentifierTx(ctx, tx, change.UserID.String())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for email change")
		}
		previousEmail = current.Email

		user, err = h.repo.Users().UpdateEmailTx(ctx, tx, change.UserID, change.Email)
		if err != nil {
			return err
		}

		if err := h.repo.EmailChanges().DeleteByUserTx(ctx, tx, change.UserID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discard staged email change")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm email change")
	}

	h.recordActivity(ctx, user, previousEmail)

	if event.OnUser != nil {
		event.OnUser(user)
	}

	return nil
}

func (h *ConfirmEmailChangeHandler) recordActivity(ctx context.Context, user *User, previousEmail string) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventEmailChanged,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID: user.ID.String(),
		Metadata: map[string]any{
			"previous_email": previousEmail,
			"email":          user.Email,
		},
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during email change: %v", err)
	}
}
