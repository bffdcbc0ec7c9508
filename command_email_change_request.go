package users

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RequestEmailChangeMessage struct {
	UserID string `json:"user_id" doc:"Account requesting the change"`
	Email  string `json:"email" doc:"Requested new address"`
}

func (e RequestEmailChangeMessage) Type() string { return "user.email_change.request" }

func (e RequestEmailChangeMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.UserID, validation.Required, is.UUID),
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

// RequestEmailChangeHandler stages an email change and mails a confirmation
// token to the requested address. The account keeps its current email until
// the token is redeemed. A repeat request replaces the previous staged one.
type RequestEmailChangeHandler struct {
	repo     RepositoryManager
	mailer   Mailer
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewRequestEmailChangeHandler(repo RepositoryManager, mailer Mailer) *RequestEmailChangeHandler {
	return &RequestEmailChangeHandler{
		repo:     repo,
		mailer:   mailer,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit events.
func (h *RequestEmailChangeHandler) WithActivitySink(sink ActivitySink) *RequestEmailChangeHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RequestEmailChangeHandler) WithLogger(logger Logger) *RequestEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *RequestEmailChangeHandler) WithClock(clock func() time.Time) *RequestEmailChangeHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *RequestEmailChangeHandler) Execute(ctx context.Context, event RequestEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestEmailChangeHandler) execute(ctx context.Context, event RequestEmailChangeMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email change payload")
	}

	user := &User{}
	token := NewPendingTokenAt(TokenPurposeEmailChange, h.now())
	unchanged := false

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByIdentifierTx(ctx, tx, event.UserID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for email change")
		}

		if err := statusAuthError(user.Status); err != nil {
			return err
		}

		// Requesting the address already on file is a no-op success.
		if user.Email == event.Email {
			unchanged = true
			return nil
		}

		// Another account already owning the address surfaces now instead of
		// at confirmation time.
		if existing, err := h.repo.Users().GetByIdentifierTx(ctx, tx, event.Email); err == nil && existing.ID != user.ID {
			return ErrEmailInUse
		} else if err != nil && !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
		}

		change := &PendingEmailChange{
			UserID:        user.ID,
			Email:         event.Email,
			Token:         token.Value,
			TokenIssuedAt: token.IssuedAt,
		}

		if _, err := h.repo.EmailChanges().StageTx(ctx, tx, change); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to stage email change")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to request email change")
	}

	if unchanged {
		return nil
	}

	if err := h.mailer.SendEmailChange(ctx, user, event.Email, token); err != nil {
		return err
	}

	h.recordActivity(ctx, user, event.Email)

	return nil
}

func (h *RequestEmailChangeHandler) recordActivity(ctx context.Context, user *User, email string) {
	event := ActivityEvent{
		EventType: ActivityEventEmailChangeRequested,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID: user.ID.String(),
		Metadata: map[string]any{
			"requested_email": email,
		},
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during email change request: %v", err)
	}
}
