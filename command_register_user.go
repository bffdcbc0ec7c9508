package users

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Language  string `json:"language"`
	Password  string `json:"password"`
	UseHashid bool
	OnUser    func(user *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

var _ command.Message = RegisterUserMessage{}

func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 0)),
		validation.Field(&e.Phone, validation.By(validPhoneNumber)),
	)
}

// validPhoneNumber accepts empty values and E.164-ish numbers that the phone
// metadata library can parse.
func validPhoneNumber(value any) error {
	phone, _ := value.(string)
	if phone == "" {
		return nil
	}

	parsed, err := phonenumbers.Parse(phone, "US")
	if err != nil {
		return err
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return goerrors.New("phone number is not valid", goerrors.CategoryValidation)
	}

	return nil
}

// RegisterUserHandler creates a pending account and mails its activation
// token.
type RegisterUserHandler struct {
	repo   RepositoryManager
	mailer Mailer
	logger Logger
}

func NewRegisterUserHandler(repo RepositoryManager, mailer Mailer) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:   repo,
		mailer: mailer,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.Phone = event.Phone
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Language = event.Language
		user.Username = getUsername(event.Username, event.Email)
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			richErr := goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
			if field := duplicateUserField(err); field != "" {
				richErr = richErr.WithMetadata(map[string]any{
					"fields": map[string]string{field: field + " is already in use"},
				})
				if field == "email" {
					richErr = richErr.WithTextCode(TextCodeEmailInUse)
				}
			}
			return richErr
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if user.TokenValue != nil && user.TokenIssuedAt != nil {
		token := PendingToken{
			Value:    *user.TokenValue,
			Purpose:  user.TokenPurpose,
			IssuedAt: *user.TokenIssuedAt,
		}
		if err := h.mailer.SendActivation(ctx, user, token); err != nil {
			// The account exists either way, a fresh token can be requested.
			h.logger.Error("failed to send activation mail", "email", user.Email, "error", err)
			return err
		}
	}

	if event.OnUser != nil {
		event.OnUser(user)
	}

	return nil
}

// duplicateUserField names the column behind a uniqueness violation, or ""
// when the error is something else. Drivers word the violation differently
// (sqlite: "UNIQUE constraint failed: users.email", postgres: "duplicate key
// value violates unique constraint") but both name the column.
func duplicateUserField(err error) string {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique") && !strings.Contains(msg, "duplicate") {
		return ""
	}

	switch {
	case strings.Contains(msg, "email"):
		return "email"
	case strings.Contains(msg, "username"):
		return "username"
	}

	return ""
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
