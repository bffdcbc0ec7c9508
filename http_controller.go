package users

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

type Middleware interface {
	Impersonate(c router.Context, identifier string) error
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

func GetRouterSession(c router.Context, key string) (*SessionObject, error) {
	cookie := c.Locals(key)
	if cookie == nil {
		return nil, ErrUnableToFindSession
	}

	user, ok := cookie.(*jwt.Token)
	if user == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	claims, ok := user.Claims.(jwt.MapClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToMapClaims
	}

	return sessionFromClaims(claims)
}

// RegisterUserRoutes mounts the JSON account API on the given router.
func RegisterUserRoutes[T any](app router.Router[T], opts ...UsersControllerOption) {

	controller := NewUsersController(opts...)
	protected := controller.Auther.ProtectedRoute(
		controller.Config,
		controller.Auther.MakeClientRouteAuthErrorHandler(false),
	)

	app.Post("/login", controller.LoginPost).SetName("sign-in.post")

	app.Post("/user", controller.UserCreate).SetName("user.create")
	app.Get("/user/:username", protected(controller.UserShow)).SetName("user.show")
	app.Put("/user/:username", protected(controller.UserUpdate)).SetName("user.update")
	app.Put("/user/:username/email", protected(controller.UserEmailChange)).SetName("user.email")
	app.Put("/user/:username/password", protected(controller.UserPasswordChange)).SetName("user.password")

	app.Get("/activate/:token", controller.Activate).SetName("user.activate")
	app.Post("/reactivate", controller.Reactivate).SetName("user.reactivate")
	app.Get("/changeemail/:token", controller.ConfirmEmailChange).SetName("user.email.confirm")
	app.Post("/resetpassword", controller.PasswordResetRequest).SetName("pwd-reset.request")
	app.Post("/newpassword", controller.PasswordResetExecute).SetName("pwd-reset.execute")
}

type UsersController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Auth         Authenticator
	Auther       HTTPAuthenticator
	Config       Config
	Mailer       Mailer
	ErrorHandler router.ErrorHandler
}

type UsersControllerOption func(*UsersController) *UsersController

func NewUsersController(opts ...UsersControllerOption) *UsersController {
	c := &UsersController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in users controller...")
	}

	if c.Auth == nil {
		panic("Missing Authenticator in users controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in users controller...")
	}

	if c.Mailer == nil {
		c.Mailer = LogMailer{Logger: c.Logger}
	}

	return c
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"username" json:"username"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession will return the password
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *UsersController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse login payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload").
			WithCode(goerrors.CodeBadRequest))
	}

	token, err := a.Auth.Login(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, a.tokenResponse(token))
}

// tokenResponse shapes a signed token into the login payload, exposing the
// embedded expiry so clients can schedule renewal.
func (a *UsersController) tokenResponse(token string) map[string]any {
	var exp int64
	if session, err := a.Auth.SessionFromToken(token); err == nil {
		if t := session.GetExpiration(); t != nil {
			exp = t.Unix()
		}
	}

	return map[string]any{
		"status": "success",
		"token": map[string]any{
			"code": token,
			"exp":  exp,
		},
	}
}

// UserCreatePayload is the registration payload
type UserCreatePayload struct {
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Username  string `form:"username" json:"username"`
	Email     string `form:"email" json:"email"`
	Phone     string `form:"phone_number" json:"phone_number"`
	Language  string `form:"language" json:"language"`
	Password  string `form:"password" json:"password"`
}

// Validate will validate the payload
func (r UserCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
	)
}

func (a *UsersController) UserCreate(ctx router.Context) error {
	payload := new(UserCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload: ", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse registration payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload: ", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload").
			WithCode(goerrors.CodeBadRequest))
	}

	var created *User
	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Phone:     payload.Phone,
		Language:  payload.Language,
		Password:  payload.Password,
		OnUser:    func(u *User) { created = u },
	}

	registerUser := NewRegisterUserHandler(a.Repo, a.Mailer).WithLogger(a.Logger)
	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	view := User{}
	if created != nil {
		view = created.SelfView()
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"status": "success",
		"user":   view,
	})
}

func (a *UsersController) UserShow(ctx router.Context) error {
	username := ctx.Param("username", "")

	session, err := GetRouterSession(ctx, a.contextKey())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), username)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	view := user.PublicView()
	if session.GetUsername() == user.Username || session.GetUserID() == user.ID.String() {
		view = user.SelfView()
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "success",
		"user":   view,
	})
}

// UserUpdatePayload carries editable profile fields. Absent fields stay
// untouched.
type UserUpdatePayload struct {
	FirstName *string `form:"first_name" json:"first_name"`
	LastName  *string `form:"last_name" json:"last_name"`
	Username  *string `form:"username" json:"username"`
	Language  *string `form:"language" json:"language"`
	Photo     *string `form:"photo" json:"photo"`
	Phone     *string `form:"phone_number" json:"phone_number"`
}

func (a *UsersController) UserUpdate(ctx router.Context) error {
	username := ctx.Param("username", "")

	user, err := a.requireSelf(ctx, username)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(UserUpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse profile payload").
			WithCode(goerrors.CodeBadRequest))
	}

	var updated *User
	req := UpdateProfileMessage{
		UserID: user.ID.String(),
		Changes: ProfileChanges{
			FirstName:      payload.FirstName,
			LastName:       payload.LastName,
			Username:       payload.Username,
			Language:       payload.Language,
			ProfilePicture: payload.Photo,
			Phone:          payload.Phone,
		},
		OnUser: func(u *User) { updated = u },
	}

	handler := NewUpdateProfileHandler(a.Repo).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if updated == nil {
		updated = user
	}

	// A username change invalidates the embedded claim, reissue the session
	// token so the client keeps a consistent credential.
	token, err := a.Auth.Impersonate(ctx.Context(), updated.ID.String())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	resp := a.tokenResponse(token)
	resp["user"] = updated.SelfView()

	return ctx.JSON(router.StatusOK, resp)
}

// EmailChangePayload requests a staged email change
type EmailChangePayload struct {
	Email string `form:"email" json:"email"`
}

func (r EmailChangePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *UsersController) UserEmailChange(ctx router.Context) error {
	username := ctx.Param("username", "")

	user, err := a.requireSelf(ctx, username)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(EmailChangePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse email payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email payload").
			WithCode(goerrors.CodeBadRequest))
	}

	req := RequestEmailChangeMessage{
		UserID: user.ID.String(),
		Email:  payload.Email,
	}

	handler := NewRequestEmailChangeHandler(a.Repo, a.Mailer).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"status": "success"})
}

// PasswordChangePayload swaps passwords for a logged in user
type PasswordChangePayload struct {
	Password    string `form:"password" json:"password"`
	NewPassword string `form:"new_password" json:"new_password"`
}

func (r PasswordChangePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 100)),
	)
}

func (a *UsersController) UserPasswordChange(ctx router.Context) error {
	username := ctx.Param("username", "")

	user, err := a.requireSelf(ctx, username)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(PasswordChangePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse password payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password payload").
			WithCode(goerrors.CodeBadRequest))
	}

	req := ChangePasswordMessage{
		UserID:      user.ID.String(),
		OldPassword: payload.Password,
		NewPassword: payload.NewPassword,
	}

	handler := NewChangePasswordHandler(a.Repo).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"status": "success"})
}

func (a *UsersController) Activate(ctx router.Context) error {
	token := ctx.Param("token", "")

	var activated *User
	req := ActivateAccountMessage{
		Token:  token,
		OnUser: func(u *User) { activated = u },
	}

	handler := NewActivateAccountHandler(a.Repo).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	view := User{}
	if activated != nil {
		view = activated.SelfView()
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": "success",
		"user":   view,
	})
}

// ReactivatePayload asks for a fresh activation token
type ReactivatePayload struct {
	Email string `form:"email" json:"email"`
}

func (r ReactivatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *UsersController) Reactivate(ctx router.Context) error {
	payload := new(ReactivatePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid payload").
			WithCode(goerrors.CodeBadRequest))
	}

	handler := NewReactivateAccountHandler(a.Repo, a.Mailer).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), ReactivateAccountMessage{Email: payload.Email}); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"status": "success"})
}

func (a *UsersController) ConfirmEmailChange(ctx router.Context) error {
	token := ctx.Param("token", "")

	handler := NewConfirmEmailChangeHandler(a.Repo).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), ConfirmEmailChangeMessage{Token: token}); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"status": "success"})
}

// PasswordResetRequestPayload starts the reset flow
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *UsersController) PasswordResetRequest(ctx router.Context) error {
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password reset parse payload: ", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: ", "error", err)
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid payload").
			WithCode(goerrors.CodeBadRequest))
	}

	handler := NewInitializePasswordResetHandler(a.Repo, a.Mailer).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), InitializePasswordResetMessage{Email: payload.Email}); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"status": "success"})
}

// PasswordResetExecutePayload redeems the reset token
type PasswordResetExecutePayload struct {
	Token       string `form:"token" json:"token"`
	NewPassword string `form:"new_password" json:"new_password"`
}

// Validate will validate the payload
func (r PasswordResetExecutePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 100)),
	)
}

func (a *UsersController) PasswordResetExecute(ctx router.Context) error {
	payload := new(PasswordResetExecutePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse payload").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid payload").
			WithCode(goerrors.CodeBadRequest))
	}

	req := FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.NewPassword,
	}

	handler := NewFinalizePasswordResetHandler(a.Repo).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{"status": "success"})
}

// requireSelf resolves the target account and verifies the session belongs to
// it. Profile mutations are owner-only.
func (a *UsersController) requireSelf(ctx router.Context, username string) (*User, error) {
	session, err := GetRouterSession(ctx, a.contextKey())
	if err != nil {
		return nil, err
	}

	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), username)
	if err != nil {
		return nil, err
	}

	if session.GetUsername() != user.Username && session.GetUserID() != user.ID.String() {
		return nil, ErrUnauthorized
	}

	return user, nil
}

func (a *UsersController) contextKey() string {
	if a.Config != nil {
		return a.Config.GetContextKey()
	}
	return "user"
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map for JSON responses.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	if err != nil {
		out["error"] = err.Error()
	}
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	return c.JSON(richErr.Code, errorResponse(richErr))
}
