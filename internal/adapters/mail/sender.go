// Package mail delivers rendered notifications over SMTP.
package mail

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/wneessen/go-mail"
)

type Sender struct {
	client *mail.Client
	from   string
}

// NewSender builds an SMTP client. Authentication is used only when a
// username is configured.
func NewSender(host string, port int, username, password, from string) (*Sender, error) {
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}
	c, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "smtp client")
	}
	return &Sender{client: c, from: from}, nil
}

func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return errors.Wrapf(err, "from address %q", s.from)
	}
	if err := msg.To(to); err != nil {
		return errors.Wrapf(err, "recipient %q", to)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return s.client.DialAndSendWithContext(ctx, msg)
}
