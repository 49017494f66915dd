// Package notify delivers warning emails to users caught by a campaign.
package notify

import (
	"context"
	"time"

	"github.com/bughra383/simulakra/internal/config"
	"github.com/bughra383/simulakra/internal/extract"
	"github.com/bughra383/simulakra/internal/pkg/logger"
)

// Message is a fully rendered warning email ready for delivery.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a single rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const defaultSubject = "Security Awareness Notice"

// Notifier renders and sends warning emails one user at a time.
type Notifier struct {
	sender   Sender
	renderer *Renderer
	log      *logger.Logger

	subject    string
	senderName string
	delay      time.Duration

	sleep func(ctx context.Context, d time.Duration)
}

// New creates a notifier using the given delivery transport.
func New(sender Sender, renderer *Renderer, log *logger.Logger, cfg config.NotifyConfig) *Notifier {
	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}
	return &Notifier{
		sender:     sender,
		renderer:   renderer,
		log:        log,
		subject:    subject,
		senderName: cfg.SenderName,
		delay:      cfg.SendDelay(),
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// NotifyAll sends a warning email to each affected user. A failure for
// one recipient is logged and does not stop delivery to the rest.
func (n *Notifier) NotifyAll(ctx context.Context, users []extract.AffectedUser) (sent, failed int) {
	for i, u := range users {
		if ctx.Err() != nil {
			n.log.Warn("notification run interrupted", "sent", sent, "remaining", len(users)-i)
			return sent, failed
		}

		text, html, err := n.renderer.Render(u)
		if err != nil {
			n.log.Error("rendering warning email", "email", u.Email, "error", err.Error())
			failed++
			continue
		}

		msg := Message{
			To:      u.Email,
			ToName:  u.FirstName + " " + u.LastName,
			Subject: n.subject,
			Text:    text,
			HTML:    html,
		}
		if err := n.sender.Send(ctx, msg); err != nil {
			n.log.Error("sending warning email", "email", u.Email, "error", err.Error())
			failed++
			continue
		}

		n.log.Info("warning email sent", "email", u.Email, "event_type", u.EventType)
		sent++

		if n.delay > 0 && i < len(users)-1 {
			n.sleep(ctx, n.delay)
		}
	}
	return sent, failed
}
