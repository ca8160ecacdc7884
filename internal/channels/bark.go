package channels

import (
	"context"
	"strconv"
	"time"

	"github.com/target/pushgate/internal/domain/model"
)

// Bark posts to a Bark server URL that includes the device key, e.g. https://api.day.app/<key>.
type Bark struct{ s *Sender }

func (Bark) Type() model.ChannelType { return model.ChannelBark }

func (Bark) Label() string { return "Bark" }

func (Bark) Templates() []Template {
	return []Template{
		{Name: "Basic", Content: `{"title":"{{body.title}}","body":"{{body.message}}"}`},
		{Name: "With link", Content: `{"title":"{{body.title}}","body":"{{body.message}}","url":"{{body.url}}","group":"pushgate"}`},
	}
}

func (b Bark) Send(ctx context.Context, msg map[string]any, creds Credentials, timeout time.Duration) error {
	if err := require(model.ChannelBark, [2]string{"webhook", creds.Webhook}); err != nil {
		return err
	}
	body, err := b.s.postJSON(ctx, model.ChannelBark, creds.Webhook, msg, timeout)
	if err != nil {
		return err
	}
	if st := parseStatus(body); st.Code != nil && *st.Code != 200 {
		return &DispatchError{Provider: model.ChannelBark, StatusCode: 200, Code: strconv.Itoa(*st.Code), Body: st.Message}
	}
	return nil
}
