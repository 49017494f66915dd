package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bughra383/simulakra/internal/config"
	"github.com/bughra383/simulakra/internal/pkg/httpretry"
)

// MailgunSender delivers warning emails through the Mailgun messages API.
type MailgunSender struct {
	apiKey     string
	baseURL    string
	domain     string
	from       string
	httpClient httpretry.HTTPDoer
}

// NewMailgunSender creates a Mailgun-backed sender.
func NewMailgunSender(cfg config.MailgunConfig, notifyCfg config.NotifyConfig) *MailgunSender {
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	from := notifyCfg.SenderEmail
	if notifyCfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", notifyCfg.SenderName, notifyCfg.SenderEmail)
	}

	return &MailgunSender{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		domain:  cfg.Domain,
		from:    from,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 3),
	}
}

// SetHTTPClient replaces the underlying HTTP client. Used in tests.
func (s *MailgunSender) SetHTTPClient(client httpretry.HTTPDoer) {
	s.httpClient = client
}

// Send posts one message to the Mailgun messages endpoint.
func (s *MailgunSender) Send(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("from", s.from)
	form.Set("to", fmt.Sprintf("%s <%s>", msg.ToName, msg.To))
	form.Set("subject", msg.Subject)
	form.Set("text", msg.Text)
	if msg.HTML != "" {
		form.Set("html", msg.HTML)
	}

	endpoint := fmt.Sprintf("%s/v3/%s/messages", s.baseURL, s.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth("api", s.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mailgun API error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}
