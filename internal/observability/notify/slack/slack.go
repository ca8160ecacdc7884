// Package slack posts push failure alerts to a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/target/pushgate/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// LogsURLPrefix, when set, links the endpoint id to its push log listing.
	LogsURLPrefix string
}

// Client delivers push failure notifications to a Slack webhook.
type Client struct {
	poster   *notify.Poster
	channel  string
	username string
	logsBase *url.URL
	now      func() time.Time
}

type message struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "pushgate"
	}

	return &Client{
		poster:   notify.NewPoster("slack webhook", webhookURL, cfg.Timeout, cfg.RetryLimit, cfg.Client),
		channel:  strings.TrimSpace(cfg.Channel),
		username: username,
		logsBase: parseLogsBase(cfg.LogsURLPrefix),
		now:      time.Now,
	}, nil
}

// SendPushFailure posts a formatted message to Slack.
func (c *Client) SendPushFailure(ctx context.Context, payload notify.PushFailurePayload) error {
	return c.poster.PostJSON(ctx, c.formatMessage(payload))
}

func (c *Client) formatMessage(payload notify.PushFailurePayload) message {
	var b strings.Builder

	b.WriteString("*Push delivery failed*")
	if payload.ChannelType != "" {
		fmt.Fprintf(&b, " (%s)", escaper.Replace(payload.ChannelType))
	}
	b.WriteByte('\n')

	writeLine(&b, "Severity", payload.SeverityOr())
	if endpoint := c.formatEndpoint(payload.EndpointID, payload.EndpointName); endpoint != "" {
		writeLine(&b, "Endpoint", endpoint)
	}
	for _, f := range payload.Fields() {
		switch f.Label {
		case "Endpoint", "Endpoint ID", "Channel":
			// rendered above
		case "Request":
			writeLine(&b, f.Label, "`"+escaper.Replace(f.Value)+"`")
		default:
			writeLine(&b, f.Label, escaper.Replace(f.Value))
		}
	}

	if len(payload.Metadata) > 0 {
		b.WriteString("• Metadata:\n")
		for _, k := range slices.Sorted(maps.Keys(payload.Metadata)) {
			fmt.Fprintf(&b, "    • %s: %s\n", escaper.Replace(k), escaper.Replace(payload.Metadata[k]))
		}
	}
	b.WriteString("• Timestamp: ")
	b.WriteString(payload.Timestamp(c.now).Format(time.RFC3339))

	return message{Text: b.String(), Username: c.username, Channel: c.channel}
}

// formatEndpoint renders "<link|name> (id)" with whatever parts are available.
func (c *Client) formatEndpoint(endpointID, endpointName string) string {
	rawID := strings.TrimSpace(endpointID)
	id := escaper.Replace(rawID)
	name := escaper.Replace(strings.TrimSpace(endpointName))

	label := name
	if label == "" {
		label = id
	}
	if label == "" {
		return ""
	}

	if link := c.logsLink(rawID); link != "" {
		label = "<" + link + "|" + label + ">"
	}
	if name != "" && id != "" {
		return label + " (" + id + ")"
	}
	return label
}

func (c *Client) logsLink(endpointID string) string {
	if c.logsBase == nil || endpointID == "" {
		return ""
	}
	return c.logsBase.JoinPath(endpointID).String()
}

func parseLogsBase(prefix string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(prefix))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return u
}

func writeLine(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "• %s: %s\n", label, value)
}
