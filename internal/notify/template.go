package notify

import (
	"fmt"
	"os"

	"github.com/osteele/liquid"

	"github.com/bughra383/simulakra/internal/extract"
)

const defaultTextTemplate = `Hi {{ first_name }},

You recently interacted with a simulated phishing email that was part of
our security awareness program. Our records show the following action on
your account:

  {{ event_type }} at {{ event_time }}

No harm was done. This was a training exercise, but a real attacker
would now have a foothold. Please take a moment to review the warning
signs of phishing emails, and report anything suspicious to the
security team instead of clicking.

Thank you,
Security Awareness Team
`

const defaultHTMLTemplate = `<html>
<body>
<p>Hi {{ first_name }},</p>
<p>You recently interacted with a <strong>simulated phishing email</strong>
that was part of our security awareness program. Our records show the
following action on your account:</p>
<blockquote>{{ event_type }} at {{ event_time }}</blockquote>
<p>No harm was done. This was a training exercise, but a real attacker
would now have a foothold. Please review the warning signs of phishing
emails, and report anything suspicious to the security team instead of
clicking.</p>
<p>Thank you,<br>Security Awareness Team</p>
</body>
</html>
`

// Renderer expands Liquid placeholders in the warning-email templates.
type Renderer struct {
	engine *liquid.Engine
	text   string
	html   string
}

// NewRenderer creates a renderer from literal template strings. Empty
// strings fall back to the built-in templates.
func NewRenderer(text, html string) *Renderer {
	if text == "" {
		text = defaultTextTemplate
	}
	if html == "" {
		html = defaultHTMLTemplate
	}
	return &Renderer{
		engine: liquid.NewEngine(),
		text:   text,
		html:   html,
	}
}

// LoadRenderer reads templates from the given file paths. Either path
// may be empty, which selects the built-in template.
func LoadRenderer(textPath, htmlPath string) (*Renderer, error) {
	var text, html string
	if textPath != "" {
		data, err := os.ReadFile(textPath)
		if err != nil {
			return nil, fmt.Errorf("reading text template: %w", err)
		}
		text = string(data)
	}
	if htmlPath != "" {
		data, err := os.ReadFile(htmlPath)
		if err != nil {
			return nil, fmt.Errorf("reading html template: %w", err)
		}
		html = string(data)
	}
	return NewRenderer(text, html), nil
}

// Render produces the text and HTML bodies for one affected user.
func (r *Renderer) Render(u extract.AffectedUser) (text, html string, err error) {
	bindings := map[string]interface{}{
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"email":      u.Email,
		"event_type": u.EventType,
		"event_time": u.EventTime,
	}

	text, err = r.engine.ParseAndRenderString(r.text, bindings)
	if err != nil {
		return "", "", fmt.Errorf("rendering text template: %w", err)
	}
	html, err = r.engine.ParseAndRenderString(r.html, bindings)
	if err != nil {
		return "", "", fmt.Errorf("rendering html template: %w", err)
	}
	return text, html, nil
}
