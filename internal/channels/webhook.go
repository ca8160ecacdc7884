package channels

import (
	"context"
	"time"

	"github.com/target/pushgate/internal/domain/model"
)

// Webhook posts the rendered message as JSON to an arbitrary URL. Any 2xx is success.
type Webhook struct{ s *Sender }

func (Webhook) Type() model.ChannelType { return model.ChannelWebhook }

func (Webhook) Label() string { return "Custom Webhook" }

func (Webhook) Templates() []Template {
	return []Template{
		{Name: "Passthrough", Content: `{"data":{{body}}}`},
		{Name: "Event", Content: `{"event":"{{body.event}}","message":"{{body.message}}"}`},
	}
}

func (w Webhook) Send(ctx context.Context, msg map[string]any, creds Credentials, timeout time.Duration) error {
	if err := require(model.ChannelWebhook, [2]string{"webhook", creds.Webhook}); err != nil {
		return err
	}
	_, err := w.s.postJSON(ctx, model.ChannelWebhook, creds.Webhook, msg, timeout)
	return err
}
