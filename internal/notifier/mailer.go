package notifier

import (
	"context"
	"fmt"
	"log"

	"github.com/wneessen/go-mail"

	"starminder/config"
	"starminder/internal/models"
)

// Mailer renders and delivers reminder digests over SMTP. It implements the
// pipeline's notifier contract.
type Mailer struct {
	cfg      config.EmailConfig
	renderer *Renderer
}

func NewMailer(cfg config.EmailConfig) *Mailer {
	return &Mailer{
		cfg:      cfg,
		renderer: NewRenderer(cfg.ForkURL),
	}
}

// Send renders the reminder for the user and delivers it. When email is
// disabled in configuration, the digest is logged and dropped.
func (m *Mailer) Send(ctx context.Context, recipient string, user *models.User, reminder *models.Reminder) error {
	rendered, err := m.renderer.Render(user, reminder)
	if err != nil {
		return err
	}

	if !m.cfg.Enabled {
		log.Printf("Email disabled, dropping %q for %s", rendered.Subject, recipient)
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address %q: %w", m.cfg.From, err)
	}
	if err := msg.To(recipient); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", recipient, err)
	}
	msg.Subject(rendered.Subject)
	msg.SetBodyString(mail.TypeTextPlain, rendered.Text)
	msg.AddAlternativeString(mail.TypeTextHTML, rendered.HTML)

	client, err := mail.NewClient(m.cfg.SMTPHost,
		mail.WithPort(m.cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", recipient, err)
	}

	log.Printf("📧 Sent %q to %s", rendered.Subject, recipient)
	return nil
}
