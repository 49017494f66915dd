package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/bughra383/simulakra/internal/config"
)

// SMTPSender delivers warning emails through an authenticated
// submission server with STARTTLS.
type SMTPSender struct {
	cfg       config.SMTPConfig
	from      string
	fromName  string
	localName string
}

// NewSMTPSender creates an SMTP-backed sender.
func NewSMTPSender(cfg config.SMTPConfig, notifyCfg config.NotifyConfig) *SMTPSender {
	return &SMTPSender{
		cfg:      cfg,
		from:     notifyCfg.SenderEmail,
		fromName: notifyCfg.SenderName,
	}
}

// Send opens a fresh connection per message. Warning runs are small and
// spaced out, so connection reuse is not worth the bookkeeping.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := smtp.DialStartTLS(s.cfg.Addr(), &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", s.cfg.Addr(), err)
	}
	defer c.Close()

	if s.cfg.Username != "" {
		auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}

	body := s.buildMessage(msg)
	if err := c.SendMail(s.from, []string{msg.To}, strings.NewReader(body)); err != nil {
		return fmt.Errorf("sending to %s: %w", msg.To, err)
	}
	return c.Quit()
}

func (s *SMTPSender) buildMessage(msg Message) string {
	var b strings.Builder

	from := s.from
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.fromName), s.from)
	}

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", msg.ToName), msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%d.%d@%s>\r\n", time.Now().UnixNano(), rand.Int63(), s.cfg.Host)
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTML == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(crlf(msg.Text))
		return b.String()
	}

	boundary := fmt.Sprintf("b%d", time.Now().UnixNano())
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(crlf(msg.Text))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(crlf(msg.HTML))
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.String()
}

func crlf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
