// Package notification delivers alert notifications over email, webhook,
// and slack channels, with per-channel rate limiting and bounded retries.
// Every delivery attempt is recorded as an append-only AlertNotification row.
package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/k3a/html2text"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
)

// Payload is the channel-independent view of an alert handed to transports.
// Each transport renders it into its own wire shape.
type Payload struct {
	AlertID     uint      `json:"alert_id"`
	AlertName   string    `json:"alert_name,omitempty"`
	TeamID      string    `json:"team_id"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	MetricValue float64   `json:"metric_value"`
	TriggeredAt time.Time `json:"triggered_at"`
	ActionURL   string    `json:"action_url,omitempty"`
}

func buildPayload(alert *entities.Alert, baseURL string) *Payload {
	p := &Payload{
		AlertID:     alert.ID,
		AlertName:   alert.Rule.Name,
		TeamID:      alert.TeamID,
		Severity:    alert.Severity,
		Message:     alert.Message,
		MetricValue: alert.MetricValue,
		TriggeredAt: alert.TriggeredAt,
	}
	if baseURL != "" {
		p.ActionURL = fmt.Sprintf("%s/api/v1/alerts/%d", strings.TrimRight(baseURL, "/"), alert.ID)
	}
	return p
}

// Subject renders the one-line summary used as an email subject and as the
// title of push-style messages. The alert id stands in when the owning rule
// is not loaded (or no longer exists).
func (p *Payload) Subject() string {
	if p.AlertName != "" {
		return fmt.Sprintf("[%s] %s", strings.ToUpper(p.Severity), p.AlertName)
	}
	return fmt.Sprintf("[%s] alert #%d", strings.ToUpper(p.Severity), p.AlertID)
}

// HTMLBody renders the payload as a small HTML document for email delivery.
func (p *Payload) HTMLBody() string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h2>%s</h2>", p.Subject())
	fmt.Fprintf(&b, "<p>%s</p>", p.Message)
	b.WriteString("<ul>")
	fmt.Fprintf(&b, "<li>Severity: %s</li>", p.Severity)
	fmt.Fprintf(&b, "<li>Observed value: %g</li>", p.MetricValue)
	fmt.Fprintf(&b, "<li>Triggered at: %s</li>", p.TriggeredAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "<li>Team: %s</li>", p.TeamID)
	b.WriteString("</ul>")
	if p.ActionURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s">View alert</a></p>`, p.ActionURL)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// TextBody renders the payload as plain text, derived from the HTML body so
// the two stay in step.
func (p *Payload) TextBody() string {
	return html2text.HTML2Text(p.HTMLBody())
}

func configString(m entities.JSONMap, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func configStringSlice(m entities.JSONMap, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func configStringMap(m entities.JSONMap, key string) map[string]string {
	raw, ok := m[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
