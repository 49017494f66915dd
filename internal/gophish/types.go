package gophish

import (
	"encoding/json"
	"strings"
)

// Campaign statuses the service is known to report. The status field is
// free text; CompletedStatuses is the set treated as an explicit stop.
const (
	StatusInProgress = "In progress"
	StatusCompleted  = "Completed"
	StatusFinished   = "Finished"
)

// CompletedStatuses lists the status labels that mean a campaign is done.
var CompletedStatuses = []string{StatusCompleted, StatusFinished}

// IsCompletedStatus reports whether the given status label is terminal.
func IsCompletedStatus(status string) bool {
	for _, s := range CompletedStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// Campaign is a read-only snapshot of one phishing exercise as reported
// by the campaign service. Stats counters are cumulative; a decrease
// between snapshots indicates a service anomaly, not activity.
type Campaign struct {
	ID         int64            `json:"id"`
	Name       string           `json:"name"`
	Status     string           `json:"status"`
	CreatedAt  string           `json:"created_date,omitempty"`
	LaunchDate string           `json:"launch_date,omitempty"`
	URL        string           `json:"url,omitempty"`
	Stats      Stats            `json:"stats"`
	Results    []CampaignResult `json:"results,omitempty"`
	Groups     []Group          `json:"groups,omitempty"`
	Template   *Template        `json:"template,omitempty"`
	Page       *Page            `json:"page,omitempty"`
	SMTP       *SMTPProfile     `json:"smtp,omitempty"`
}

// Stats holds a campaign's aggregate counters.
type Stats struct {
	Total         int64 `json:"total"`
	Sent          int64 `json:"sent"`
	Opened        int64 `json:"opened"`
	Clicked       int64 `json:"clicked"`
	SubmittedData int64 `json:"submitted_data"`
	EmailReported int64 `json:"email_reported,omitempty"`
	Error         int64 `json:"error,omitempty"`
}

// HasActivity reports whether anyone clicked or submitted data.
func (s Stats) HasActivity() bool {
	return s.Clicked > 0 || s.SubmittedData > 0
}

// FullyDelivered reports whether every invited target was sent a message.
func (s Stats) FullyDelivered() bool {
	return s.Sent > 0 && s.Sent == s.Total
}

// CampaignResult is the per-target record inside a campaign snapshot.
// The shape varies across deployments; absent fields decode to zero
// values and must be treated as such.
type CampaignResult struct {
	ID            string `json:"id,omitempty"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Position      string `json:"position,omitempty"`
	Status        string `json:"status"`
	Reported      bool   `json:"reported,omitempty"`
	SendDate      string `json:"send_date,omitempty"`
	Clicked       *int64 `json:"clicked,omitempty"`
	SubmittedData *int64 `json:"submitted_data,omitempty"`
}

// Summary is the aggregate view returned by the campaign summary endpoint.
type Summary struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name,omitempty"`
	Status   string          `json:"status,omitempty"`
	Stats    Stats           `json:"stats"`
	Timeline []TimelineEvent `json:"timeline"`
}

// TimelineEvent is a point-in-time record from a campaign's timeline.
// Ordering is service-defined; do not rely on it for correctness.
type TimelineEvent struct {
	Email   string  `json:"email"`
	Time    string  `json:"time"`
	Message string  `json:"message"`
	Details Details `json:"details"`
}

// Details is the unstructured payload attached to a timeline event.
// Depending on the deployment it arrives as a JSON object, as a
// JSON-encoded string, or is missing entirely; all three decode to a
// plain map (possibly empty). Malformed payloads degrade to empty rather
// than failing the event.
type Details map[string]interface{}

// UnmarshalJSON accepts an object, a string containing JSON, or null.
func (d *Details) UnmarshalJSON(data []byte) error {
	*d = Details{}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" || trimmed == `""` {
		return nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err == nil {
		*d = obj
		return nil
	}

	// Some deployments double-encode details as a string of JSON.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &obj); err == nil {
			*d = obj
		}
	}
	return nil
}

// stringField returns a string value from the payload, looking first at
// the top level and then inside a nested "payload" object.
func (d Details) stringField(key string) string {
	if d == nil {
		return ""
	}
	if v, ok := d[key].(string); ok {
		return v
	}
	if nested, ok := d["payload"].(map[string]interface{}); ok {
		switch v := nested[key].(type) {
		case string:
			return v
		case []interface{}:
			// Form payloads carry values as string slices.
			if len(v) > 0 {
				if s, ok := v[0].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}

// Email returns the email address carried in the details payload, if any.
func (d Details) Email() string { return d.stringField("email") }

// FirstName returns the first name carried in the details payload, if any.
func (d Details) FirstName() string { return d.stringField("first_name") }

// LastName returns the last name carried in the details payload, if any.
func (d Details) LastName() string { return d.stringField("last_name") }

// Group is a named set of targets.
type Group struct {
	ID      int64    `json:"id,omitempty"`
	Name    string   `json:"name"`
	Targets []Target `json:"targets"`
}

// Target is one contact inside a group.
type Target struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Position  string `json:"position,omitempty"`
}

// Template is an email template record.
type Template struct {
	ID      int64  `json:"id,omitempty"`
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// Page is a landing page record.
type Page struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
	URL  string `json:"redirect_url,omitempty"`
}

// SMTPProfile is a sending profile record.
type SMTPProfile struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Host        string `json:"host,omitempty"`
	FromAddress string `json:"from_address,omitempty"`
}

// CampaignRequest is the payload for creating a campaign.
type CampaignRequest struct {
	Name       string       `json:"name"`
	Groups     []Group      `json:"groups"`
	Page       *Page        `json:"page"`
	Template   *Template    `json:"template"`
	SMTP       *SMTPProfile `json:"smtp"`
	URL        string       `json:"url"`
	LaunchDate string       `json:"launch_date"`
}

// apiError is the service's error envelope.
type apiError struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}
