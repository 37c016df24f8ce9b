package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/config"
)

// Mailer delivers verification codes.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

// LogMailer writes codes to the log. Used in development and tests.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(l *zap.Logger) *LogMailer {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogMailer{logger: l}
}

// SendVerificationCode logs the code.
func (m *LogMailer) SendVerificationCode(ctx context.Context, to, code string) error {
	m.logger.Info("verification code", zap.String("to", to), zap.String("code", code))
	return nil
}

const defaultSMTPTimeout = 10 * time.Second

// SMTPMailer sends codes through an SMTP relay, upgrading to TLS when offered.
type SMTPMailer struct {
	host    string
	from    string
	timeout time.Duration
	opts    []mail.Option
	send    func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPMailer creates a mailer from the smtp config section.
func NewSMTPMailer(c config.SMTPConfig) (*SMTPMailer, error) {
	if c.Host == "" || c.From == "" {
		return nil, fmt.Errorf("smtp host and from are required")
	}
	m := &SMTPMailer{host: c.Host, from: c.From, timeout: c.Timeout}
	if m.timeout <= 0 {
		m.timeout = defaultSMTPTimeout
	}
	m.opts = []mail.Option{
		mail.WithTimeout(m.timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if c.Port > 0 {
		m.opts = append(m.opts, mail.WithPort(c.Port))
	}
	if c.Username != "" {
		m.opts = append(m.opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.Username),
			mail.WithPassword(c.Password))
	}
	m.send = m.dialAndSend
	return m, nil
}

// SendVerificationCode sends the code as a plain-text message. The whole exchange with
// the relay is bounded by the configured timeout.
func (m *SMTPMailer) SendVerificationCode(ctx context.Context, to, code string) error {
	msg, err := m.verificationMessage(to, code)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}
	return nil
}

func (m *SMTPMailer) verificationMessage(to, code string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject("Código de verificação MindLink")
	msg.SetBodyString(mail.TypeTextPlain, "Seu código de verificação é: "+code+"\n")
	return msg, nil
}

func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(m.host, m.opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// NewMailer builds the mailer selected by the auth config.
func NewMailer(c *config.AuthConfig, logger *zap.Logger) (Mailer, error) {
	switch c.Mailer {
	case "smtp":
		return NewSMTPMailer(c.SMTP)
	case "", "log":
		return NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown mailer %q", c.Mailer)
	}
}
