// Package channels delivers rendered messages to chat and webhook providers.
package channels

import (
	"context"
	"strings"
	"time"

	"github.com/target/pushgate/internal/domain/model"
)

// Provider is one messaging provider.
type Provider interface {
	Type() model.ChannelType
	// Label is a human-readable provider name.
	Label() string
	// Templates are rule skeletons offered when creating an endpoint for this provider.
	Templates() []Template
	// Send delivers msg. It validates credentials first and returns *CredentialError
	// without any network call when one is missing; provider failures are *DispatchError.
	Send(ctx context.Context, msg map[string]any, creds Credentials, timeout time.Duration) error
}

// Credentials are the channel fields a provider may need.
type Credentials struct {
	Webhook  string
	Secret   string
	CorpID   string
	AgentID  string
	BotToken string
	ChatID   string
}

// CredentialsFrom extracts the credential fields of ch.
func CredentialsFrom(ch *model.Channel) Credentials {
	if ch == nil {
		return Credentials{}
	}
	return Credentials{
		Webhook:  strings.TrimSpace(ch.Webhook),
		Secret:   strings.TrimSpace(ch.Secret),
		CorpID:   strings.TrimSpace(ch.CorpID),
		AgentID:  strings.TrimSpace(ch.AgentID),
		BotToken: strings.TrimSpace(ch.BotToken),
		ChatID:   strings.TrimSpace(ch.ChatID),
	}
}

// Template is a rule skeleton for a provider.
type Template struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// CatalogEntry describes one provider for display.
type CatalogEntry struct {
	Type      model.ChannelType `json:"type"`
	Label     string            `json:"label"`
	Templates []Template        `json:"templates"`
}

// Catalog lists every provider with its label and templates, in display order.
func (s *Sender) Catalog() []CatalogEntry {
	types := model.ChannelTypes()
	out := make([]CatalogEntry, 0, len(types))
	for _, t := range types {
		p, err := s.ForType(t)
		if err != nil {
			continue
		}
		out = append(out, CatalogEntry{Type: t, Label: p.Label(), Templates: p.Templates()})
	}
	return out
}

// require returns a *CredentialError for the first empty field.
func require(t model.ChannelType, fields ...[2]string) error {
	for _, f := range fields {
		if f[1] == "" {
			return &CredentialError{Provider: t, Field: f[0]}
		}
	}
	return nil
}
