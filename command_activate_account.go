package users

import (
	"context"
	"time"

	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ActivateAccountMessage struct {
	Token  string `json:"token" doc:"Activation token from the welcome email"`
	OnUser func(user *User)
}

func (e ActivateAccountMessage) Type() string { return "user.activate" }

var _ command.Message = ActivateAccountMessage{}

// ActivateAccountHandler redeems an activation token. The database update
// carries every precondition; a token that matches nothing fails as invalid
// regardless of why.
type ActivateAccountHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewActivateAccountHandler(repo RepositoryManager) *ActivateAccountHandler {
	return &ActivateAccountHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit activation events.
func (h *ActivateAccountHandler) WithActivitySink(sink ActivitySink) *ActivateAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateAccountHandler) WithLogger(logger Logger) *ActivateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *ActivateAccountHandler) WithClock(clock func() time.Time) *ActivateAccountHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *ActivateAccountHandler) Execute(ctx context.Context, event ActivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateAccountHandler) execute(ctx context.Context, event ActivateAccountMessage) error {
	if event.Token == "" {
		return ErrTokenInvalid
	}

	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().ActivateByTokenTx(ctx, tx, event.Token, h.now())
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate account")
	}

	h.recordActivity(ctx, user)

	if event.OnUser != nil {
		event.OnUser(user)
	}

	return nil
}

func (h *ActivateAccountHandler) recordActivity(ctx context.Context, user *User) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventAccountActivated,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		FromStatus: UserStatusPending,
		ToStatus:   UserStatusActive,
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during activation: %v", err)
	}
}
