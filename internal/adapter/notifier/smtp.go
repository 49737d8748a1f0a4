package notifier

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/semmidev/snapkeep/internal/config"
	"github.com/semmidev/snapkeep/internal/domain"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email delivers events to the addresses listed on the schedule.
type Email struct {
	addr string
	from string
	auth smtp.Auth
	send sendFunc
	now  func() time.Time
}

func NewEmail(cfg *config.SMTPConfig) *Email {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &Email{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
		auth: auth,
		send: smtp.SendMail,
		now:  time.Now,
	}
}

func (e *Email) Notify(ctx context.Context, event domain.Event) error {
	if len(event.Emails) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := e.send(e.addr, e.auth, e.from, event.Emails, e.message(event)); err != nil {
		return fmt.Errorf("failed to send email notification: %w", err)
	}
	return nil
}

func (e *Email) message(event domain.Event) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(event.Emails, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject(event))
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body(event), "\n", "\r\n"))
	return []byte(b.String())
}
