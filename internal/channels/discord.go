package channels

import (
	"context"
	"time"

	"github.com/target/pushgate/internal/domain/model"
)

// Discord posts to a Discord channel webhook. Discord answers 204 with no body on success.
type Discord struct{ s *Sender }

func (Discord) Type() model.ChannelType { return model.ChannelDiscord }

func (Discord) Label() string { return "Discord Webhook" }

func (Discord) Templates() []Template {
	return []Template{
		{Name: "Text", Content: `{"content":"{{body.message}}"}`},
		{Name: "Embed", Content: `{"embeds":[{"title":"{{body.title}}","description":"{{body.content}}"}]}`},
	}
}

func (d Discord) Send(ctx context.Context, msg map[string]any, creds Credentials, timeout time.Duration) error {
	if err := require(model.ChannelDiscord, [2]string{"webhook", creds.Webhook}); err != nil {
		return err
	}
	_, err := d.s.postJSON(ctx, model.ChannelDiscord, creds.Webhook, msg, timeout)
	return err
}
