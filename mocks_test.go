package users_test

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockUserTracker implements users.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string) (*users.User, error) {
	args := m.Called(ctx, identifier)
	if user, ok := args.Get(0).(*users.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *users.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *users.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockIdentityProvider implements users.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (users.Identity, error) {
	args := m.Called(ctx, identifier, password)
	if identity, ok := args.Get(0).(users.Identity); ok {
		return identity, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (users.Identity, error) {
	args := m.Called(ctx, identifier)
	if identity, ok := args.Get(0).(users.Identity); ok {
		return identity, args.Error(1)
	}
	return nil, args.Error(1)
}

// testIdentity is a concrete users.Identity carrying a lifecycle status.
type testIdentity struct {
	id       string
	username string
	email    string
	status   users.UserStatus
}

func (t testIdentity) ID() string               { return t.id }
func (t testIdentity) Username() string         { return t.username }
func (t testIdentity) Email() string            { return t.email }
func (t testIdentity) Status() users.UserStatus { return t.status }

var _ users.Identity = testIdentity{}

// MockAuthenticator implements users.Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, identifier, password string) (string, error) {
	args := m.Called(ctx, identifier, password)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticator) Impersonate(ctx context.Context, identifier string) (string, error) {
	args := m.Called(ctx, identifier)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticator) SessionFromToken(token string) (users.Session, error) {
	args := m.Called(token)
	if session, ok := args.Get(0).(users.Session); ok {
		return session, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthenticator) IdentityFromSession(ctx context.Context, session users.Session) (users.Identity, error) {
	args := m.Called(ctx, session)
	if identity, ok := args.Get(0).(users.Identity); ok {
		return identity, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockUsers mocks the subset of the users repository the handlers touch.
// Unmocked methods panic through the embedded nil interface.
type MockUsers struct {
	users.Users
	mock.Mock
}

func usersArg(args mock.Arguments, index int) *users.User {
	if user, ok := args.Get(index).(*users.User); ok {
		return user
	}
	return nil
}

func (m *MockUsers) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*users.User, error) {
	args := m.Called(ctx, tx, identifier)
	return usersArg(args, 0), args.Error(1)
}

func (m *MockUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*users.User, error) {
	args := m.Called(ctx, identifier)
	return usersArg(args, 0), args.Error(1)
}

func (m *MockUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *users.User) (*users.User, error) {
	args := m.Called(ctx, tx, user)
	return usersArg(args, 0), args.Error(1)
}

func (m *MockUsers) ActivateByTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*users.User, error) {
	args := m.Called(ctx, tx, token, now)
	return usersArg(args, 0), args.Error(1)
}

func (m *MockUsers) ResetPasswordByTokenTx(ctx context.Context, tx bun.IDB, token, passwordHash string, now time.Time) (*users.User, error) {
	args := m.Called(ctx, tx, token, passwordHash, now)
	return usersArg(args, 0), args.Error(1)
}

func (m *MockUsers) IssuePendingTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token users.PendingToken) (*users.User, error) {
	args := m.Called(ctx, tx, id, token)
	return usersArg(args, 0), args.Error(1)
}

func (m *MockUsers) GetByPendingTokenTx(ctx context.Context, tx bun.IDB, token string, purpose users.TokenPurpose) (*users.User, error) {
	args := m.Called(ctx, tx, token, purpose)
	return usersArg(args, 0), args.Error(1)
}

func (m *MockUsers) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) (*users.User, error) {
	args := m.Called(ctx, tx, id, passwordHash)
	return usersArg(args, 0), args.Error(1)
}

func (m *MockUsers) UpdateEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string) (*users.User, error) {
	args := m.Called(ctx, tx, id, email)
	return usersArg(args, 0), args.Error(1)
}

func (m *MockUsers) UpdateProfileTx(ctx context.Context, tx bun.IDB, id uuid.UUID, changes users.ProfileChanges) (*users.User, error) {
	args := m.Called(ctx, tx, id, changes)
	return usersArg(args, 0), args.Error(1)
}

func (m *MockUsers) UpdateStatus(ctx context.Context, id uuid.UUID, status users.UserStatus, opts ...users.StatusUpdateOption) (*users.User, error) {
	args := m.Called(ctx, id, status)
	user := usersArg(args, 0)
	if user != nil {
		for _, opt := range opts {
			if opt != nil {
				opt(user)
			}
		}
	}
	return user, args.Error(1)
}

// MockEmailChanges mocks the staged email change repository.
type MockEmailChanges struct {
	users.EmailChanges
	mock.Mock
}

func (m *MockEmailChanges) StageTx(ctx context.Context, tx bun.IDB, change *users.PendingEmailChange) (*users.PendingEmailChange, error) {
	args := m.Called(ctx, tx, change)
	if staged, ok := args.Get(0).(*users.PendingEmailChange); ok {
		return staged, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEmailChanges) GetFreshByTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*users.PendingEmailChange, error) {
	args := m.Called(ctx, tx, token, now)
	if change, ok := args.Get(0).(*users.PendingEmailChange); ok {
		return change, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEmailChanges) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	args := m.Called(ctx, tx, userID)
	return args.Error(0)
}

// mockRepo wires the mocked repositories behind users.RepositoryManager.
// RunInTx hands the callback a zero transaction since no query ever runs.
type mockRepo struct {
	users        *MockUsers
	emailChanges *MockEmailChanges
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		users:        new(MockUsers),
		emailChanges: new(MockEmailChanges),
	}
}

func (m *mockRepo) Validate() error {
	return nil
}

func (m *mockRepo) MustValidate() {}

func (m *mockRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *mockRepo) Users() users.Users {
	return m.users
}

func (m *mockRepo) EmailChanges() users.EmailChanges {
	return m.emailChanges
}

var _ users.RepositoryManager = (*mockRepo)(nil)

// MockMailer implements users.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendActivation(ctx context.Context, user *users.User, token users.PendingToken) error {
	args := m.Called(ctx, user, token)
	return args.Error(0)
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, user *users.User, token users.PendingToken) error {
	args := m.Called(ctx, user, token)
	return args.Error(0)
}

func (m *MockMailer) SendEmailChange(ctx context.Context, user *users.User, newEmail string, token users.PendingToken) error {
	args := m.Called(ctx, user, newEmail, token)
	return args.Error(0)
}

// recordingSink captures activity events for assertions.
type recordingSink struct {
	events []users.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event users.ActivityEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) eventTypes() []users.ActivityEventType {
	types := make([]users.ActivityEventType, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.EventType)
	}
	return types
}

// testConfig is a users.Config with sane test defaults.
type testConfig struct {
	SigningKey      string
	TokenExpiration int
	Issuer          string
	Audience        []string
	ContextKey      string
}

func (c testConfig) GetSigningKey() string {
	if c.SigningKey != "" {
		return c.SigningKey
	}
	return "test-signing-key"
}

func (c testConfig) GetSigningMethod() string { return "HS256" }

func (c testConfig) GetContextKey() string {
	if c.ContextKey != "" {
		return c.ContextKey
	}
	return "user"
}

func (c testConfig) GetTokenExpiration() int {
	if c.TokenExpiration != 0 {
		return c.TokenExpiration
	}
	return 24
}

func (c testConfig) GetExtendedTokenDuration() int { return 72 }

func (c testConfig) GetTokenLookup() string { return "header:Authorization" }

func (c testConfig) GetAuthScheme() string { return "Bearer" }

func (c testConfig) GetIssuer() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return "go-users-test"
}

func (c testConfig) GetAudience() []string {
	if len(c.Audience) > 0 {
		return c.Audience
	}
	return []string{"go-users-test"}
}

func (c testConfig) GetRejectedRouteKey() string { return "redirect" }

func (c testConfig) GetRejectedRouteDefault() string { return "/" }

var _ users.Config = testConfig{}

// MockContext mocks router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}
