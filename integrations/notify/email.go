package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	domainNotification "github.com/AzielCF/az-postsync/domains/notification"
	"github.com/sirupsen/logrus"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailNotifier sends the summary as a plain text email.
type EmailNotifier struct {
	cfg SMTPConfig
	now func() time.Time
}

var _ domainNotification.INotifier = (*EmailNotifier)(nil)

var sendMailFn = smtp.SendMail

func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailNotifier{cfg: cfg, now: time.Now}
}

func (n *EmailNotifier) Notify(ctx context.Context, summary domainNotification.Summary) error {
	if len(n.cfg.To) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	// smtp.SendMail has no context; run it aside so ctx still bounds the wait.
	done := make(chan error, 1)
	go func() {
		done <- sendMailFn(addr, auth, n.cfg.From, n.cfg.To, n.message(summary))
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send summary email: %w", err)
		}
		logrus.Debugf("[NOTIFY] Summary for run %s emailed to %d recipient(s)", summary.RunID, len(n.cfg.To))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) message(summary domainNotification.Summary) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", Subject(summary))
	fmt.Fprintf(&b, "Date: %s\r\n", n.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(FormatSummary(summary), "\n", "\r\n"))
	return []byte(b.String())
}
