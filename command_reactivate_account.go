package users

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ReactivateAccountMessage struct {
	Email string `json:"email" doc:"Email of the account awaiting activation"`
}

func (e ReactivateAccountMessage) Type() string { return "user.reactivate" }

// ReactivateAccountHandler issues a fresh activation token for an account
// still stuck in pending and mails it again. Active accounts get a conflict,
// unknown emails are reported as such.
type ReactivateAccountHandler struct {
	repo     RepositoryManager
	mailer   Mailer
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewReactivateAccountHandler(repo RepositoryManager, mailer Mailer) *ReactivateAccountHandler {
	return &ReactivateAccountHandler{
		repo:     repo,
		mailer:   mailer,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit events.
func (h *ReactivateAccountHandler) WithActivitySink(sink ActivitySink) *ReactivateAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ReactivateAccountHandler) WithLogger(logger Logger) *ReactivateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *ReactivateAccountHandler) WithClock(clock func() time.Time) *ReactivateAccountHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *ReactivateAccountHandler) Execute(ctx context.Context, event ReactivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ReactivateAccountHandler) execute(ctx context.Context, event ReactivateAccountMessage) error {
	user := &User{}
	token := NewPendingTokenAt(TokenPurposeActivation, h.now())

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByIdentifierTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrUnknownEmail
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for activation resend")
		}

		if !user.IsPending() {
			return ErrAlreadyActive
		}

		user, err = h.repo.Users().IssuePendingTokenTx(ctx, tx, user.ID, token)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue activation token")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resend activation")
	}

	if err := h.mailer.SendActivation(ctx, user, token); err != nil {
		return err
	}

	h.recordActivity(ctx, user)

	return nil
}

func (h *ReactivateAccountHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType: ActivityEventActivationResent,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during activation resend: %v", err)
	}
}
