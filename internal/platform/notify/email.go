package notify

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"gopkg.in/gomail.v2"
)

type Mailer struct {
	sender gomail.Sender
	dialer *gomail.Dialer
	from   string
	appURL string
	ttl    time.Duration
}

// NewMailer sends through the SMTP server at host:port. appURL is the web
// client origin used to build magic links; ttl is the code validity shown
// in the message.
func NewMailer(host string, port int, user, pass, from, appURL string, ttl time.Duration) *Mailer {
	return &Mailer{dialer: gomail.NewDialer(host, port, user, pass), from: from, appURL: appURL, ttl: ttl}
}

func (m *Mailer) send(ctx context.Context, msg *gomail.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.sender != nil {
		return gomail.Send(m.sender, msg)
	}
	return m.dialer.DialAndSend(msg)
}

// MagicLink is the web client URL that verifies token.
func (m *Mailer) MagicLink(token string) string {
	return m.appURL + "/verify?token=" + url.QueryEscape(token)
}

// SendVerification mails the one-time code together with a magic link
// carrying token.
func (m *Mailer) SendVerification(ctx context.Context, to, code, token string) error {
	link := m.MagicLink(token)
	minutes := int(m.ttl / time.Minute)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your verification code: "+code)
	msg.SetBody("text/plain", fmt.Sprintf(
		"Your verification code is %s\n\nIt expires in %d minutes.\n\nOr open this link to sign in:\n%s\n", code, minutes, link))
	msg.AddAlternative("text/html", fmt.Sprintf(`
		<h2>Verify your email</h2>
		<p>Your verification code is <strong style="font-size:24px;letter-spacing:4px">%s</strong></p>
		<p>It expires in %d minutes.</p>
		<p>Or <a href="%s">click here to sign in</a>.</p>
		<p>If you did not request this, you can ignore this email.</p>
	`, code, minutes, link))

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// withSender replaces SMTP delivery with fn.
func (m *Mailer) withSender(fn func(from string, to []string, msg io.WriterTo) error) *Mailer {
	m.sender = gomail.SendFunc(fn)
	return m
}
