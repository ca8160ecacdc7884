package channels

import (
	"context"
	"strconv"
	"time"

	"github.com/target/pushgate/internal/domain/model"
)

// WeCom posts to a WeCom group robot webhook. Robot webhooks are keyed by URL and
// take no signature.
type WeCom struct{ s *Sender }

func (WeCom) Type() model.ChannelType { return model.ChannelWeCom }

func (WeCom) Label() string { return "WeCom Robot" }

func (WeCom) Templates() []Template {
	return []Template{
		{Name: "Text", Content: `{"msgtype":"text","text":{"content":"{{body.message}}"}}`},
		{Name: "Markdown", Content: `{"msgtype":"markdown","markdown":{"content":"{{body.content}}"}}`},
	}
}

func (w WeCom) Send(ctx context.Context, msg map[string]any, creds Credentials, timeout time.Duration) error {
	if err := require(model.ChannelWeCom, [2]string{"webhook", creds.Webhook}); err != nil {
		return err
	}
	body, err := w.s.postJSON(ctx, model.ChannelWeCom, creds.Webhook, msg, timeout)
	if err != nil {
		return err
	}
	return errcodeFailure(model.ChannelWeCom, body)
}

func errcodeFailure(provider model.ChannelType, body []byte) error {
	st := parseStatus(body)
	if st.ErrCode != nil && *st.ErrCode != 0 {
		return &DispatchError{Provider: provider, StatusCode: 200, Code: strconv.Itoa(*st.ErrCode), Body: st.ErrMsg}
	}
	return nil
}
