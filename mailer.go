package users

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SendEmailFunc delivers a rendered message. Implementations plug in SMTP,
// an API-based provider, or a test capture.
type SendEmailFunc func(ctx context.Context, to, subject, body string) error

// Mailer renders and delivers the lifecycle emails that carry pending tokens.
type Mailer interface {
	SendActivation(ctx context.Context, user *User, token PendingToken) error
	SendPasswordReset(ctx context.Context, user *User, token PendingToken) error
	SendEmailChange(ctx context.Context, user *User, newEmail string, token PendingToken) error
}

// MailParams is passed as data when executing a mail template.
type MailParams struct {
	Email      string
	Username   string
	FirstName  string
	SiteName   string
	SenderName string
	Token      string
	Link       string
	Window     time.Duration
}

// DefaultActivationTemplate is the default body for activation mail.
const DefaultActivationTemplate = `Hi {{.Username}},

Welcome to {{.SiteName}}. Use this link to activate your account:

{{.Link}}

The link is valid for {{printf "%.f" .Window.Minutes}} minutes. If it expires
you can request a new one from the login page.

Regards,

{{.SenderName}}
`

// DefaultPasswordResetTemplate is the default body for password reset mail.
const DefaultPasswordResetTemplate = `Hi {{.Username}},

We received a request to reset the password on your {{.SiteName}} account.
Use this link to choose a new password:

{{.Link}}

The link is valid for {{printf "%.f" .Window.Minutes}} minutes. If you did not
request a reset, you can ignore this email.

Regards,

{{.SenderName}}
`

// DefaultEmailChangeTemplate is the default body for email change confirmation.
// It is sent to the requested address, not the current one.
const DefaultEmailChangeTemplate = `Hi {{.Username}},

Someone asked to move a {{.SiteName}} account to this address. Use this link
to confirm the change:

{{.Link}}

The link is valid for {{printf "%.f" .Window.Minutes}} minutes. If this was
not you, ignore this email and the account keeps its current address.

Regards,

{{.SenderName}}
`

// TokenMailer is the default Mailer. It renders text/template bodies and
// hands them to an injected send function.
type TokenMailer struct {
	send       SendEmailFunc
	siteName   string
	senderName string
	baseURL    string
	window     time.Duration
	logger     Logger

	activation    *template.Template
	passwordReset *template.Template
	emailChange   *template.Template
}

type MailerOption func(*TokenMailer)

// WithMailerSiteName sets the site name rendered into mail bodies.
func WithMailerSiteName(name string) MailerOption {
	return func(m *TokenMailer) {
		if name != "" {
			m.siteName = name
		}
	}
}

// WithMailerSenderName sets the signature rendered into mail bodies.
func WithMailerSenderName(name string) MailerOption {
	return func(m *TokenMailer) {
		if name != "" {
			m.senderName = name
		}
	}
}

// WithMailerBaseURL sets the base used to build token links, e.g.
// https://example.com. Paths are appended to it verbatim.
func WithMailerBaseURL(base string) MailerOption {
	return func(m *TokenMailer) {
		if base != "" {
			m.baseURL = base
		}
	}
}

// WithMailerLogger overrides the logger.
func WithMailerLogger(logger Logger) MailerOption {
	return func(m *TokenMailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMailerTemplates replaces the default bodies. Empty strings keep the
// default for that message.
func WithMailerTemplates(activation, passwordReset, emailChange string) MailerOption {
	return func(m *TokenMailer) {
		if activation != "" {
			m.activation = template.Must(template.New("activation").Parse(activation))
		}
		if passwordReset != "" {
			m.passwordReset = template.Must(template.New("password_reset").Parse(passwordReset))
		}
		if emailChange != "" {
			m.emailChange = template.Must(template.New("email_change").Parse(emailChange))
		}
	}
}

// NewTokenMailer creates a Mailer backed by the given send function.
// This function panics if send is nil.
func NewTokenMailer(send SendEmailFunc, opts ...MailerOption) *TokenMailer {
	if send == nil {
		panic("send must be provided")
	}

	m := &TokenMailer{
		send:          send,
		siteName:      "our site",
		senderName:    "The team",
		window:        mustParseWindow(TokenFreshnessWindow),
		logger:        defLogger{},
		activation:    template.Must(template.New("activation").Parse(DefaultActivationTemplate)),
		passwordReset: template.Must(template.New("password_reset").Parse(DefaultPasswordResetTemplate)),
		emailChange:   template.Must(template.New("email_change").Parse(DefaultEmailChangeTemplate)),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

var _ Mailer = (*TokenMailer)(nil)

func (m *TokenMailer) SendActivation(ctx context.Context, user *User, token PendingToken) error {
	params := m.params(user, token)
	params.Link = m.link("/activate/", token.Value)
	return m.deliver(ctx, m.activation, user.Email, fmt.Sprintf("Activate your %s account", m.siteName), params)
}

func (m *TokenMailer) SendPasswordReset(ctx context.Context, user *User, token PendingToken) error {
	params := m.params(user, token)
	params.Link = m.link("/newpassword/", token.Value)
	return m.deliver(ctx, m.passwordReset, user.Email, fmt.Sprintf("Reset your %s password", m.siteName), params)
}

func (m *TokenMailer) SendEmailChange(ctx context.Context, user *User, newEmail string, token PendingToken) error {
	params := m.params(user, token)
	params.Email = newEmail
	params.Link = m.link("/changeemail/", token.Value)
	return m.deliver(ctx, m.emailChange, newEmail, fmt.Sprintf("Confirm your new %s address", m.siteName), params)
}

func (m *TokenMailer) params(user *User, token PendingToken) MailParams {
	return MailParams{
		Email:      user.Email,
		Username:   user.Username,
		FirstName:  user.FirstName,
		SiteName:   m.siteName,
		SenderName: m.senderName,
		Token:      token.Value,
		Window:     m.window,
	}
}

func (m *TokenMailer) link(path, token string) string {
	return m.baseURL + path + token
}

func (m *TokenMailer) deliver(ctx context.Context, tpl *template.Template, to, subject string, params MailParams) error {
	var body bytes.Buffer
	if err := tpl.Execute(&body, params); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render mail template")
	}

	if err := m.send(ctx, to, subject, body.String()); err != nil {
		m.logger.Error("mail delivery failed", "to", to, "error", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver mail")
	}

	return nil
}

func mustParseWindow(window string) time.Duration {
	d, err := time.ParseDuration(window)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// LogMailer is a development Mailer that writes messages to the logger
// instead of delivering them.
type LogMailer struct {
	Logger Logger
}

func (l LogMailer) logger() Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return defLogger{}
}

func (l LogMailer) SendActivation(_ context.Context, user *User, token PendingToken) error {
	l.logger().Info("activation mail", "to", user.Email, "token", token.Value)
	return nil
}

func (l LogMailer) SendPasswordReset(_ context.Context, user *User, token PendingToken) error {
	l.logger().Info("password reset mail", "to", user.Email, "token", token.Value)
	return nil
}

func (l LogMailer) SendEmailChange(_ context.Context, user *User, newEmail string, token PendingToken) error {
	l.logger().Info("email change mail", "to", newEmail, "token", token.Value)
	return nil
}

var _ Mailer = LogMailer{}
