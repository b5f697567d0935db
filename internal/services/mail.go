package services

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/Lllllllleong/printintake/internal/config"
)

// MailNotifier sends operator notices over SMTP with mandatory TLS.
type MailNotifier struct {
	cfg config.SMTPConfig
}

func NewMailNotifier(cfg config.SMTPConfig) *MailNotifier {
	return &MailNotifier{cfg: cfg}
}

func (n *MailNotifier) Notify(ctx context.Context, subject, body string) error {
	if n.cfg.Host == "" {
		return fmt.Errorf("%w: SMTP_HOST is not set", ErrNotificationFailure)
	}

	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return fmt.Errorf("%w: invalid sender %q: %v", ErrNotificationFailure, n.cfg.From, err)
	}
	if err := msg.To(n.cfg.To); err != nil {
		return fmt.Errorf("%w: invalid recipient %q: %v", ErrNotificationFailure, n.cfg.To, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}
	client, err := mail.NewClient(n.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("%w: failed to create SMTP client: %v", ErrNotificationFailure, err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailure, err)
	}
	return nil
}
