package channels

import (
	"context"
	"strconv"
	"time"

	"github.com/target/pushgate/internal/domain/model"
)

// Feishu posts to a Feishu/Lark custom bot webhook, adding timestamp and sign
// fields to the body when a secret is set.
type Feishu struct{ s *Sender }

func (Feishu) Type() model.ChannelType { return model.ChannelFeishu }

func (Feishu) Label() string { return "Feishu Robot" }

func (Feishu) Templates() []Template {
	return []Template{
		{Name: "Text", Content: `{"msg_type":"text","content":{"text":"{{body.message}}"}}`},
		{Name: "Rich text", Content: `{"msg_type":"post","content":{"post":{"zh_cn":{"title":"{{body.title}}","content":[[{"tag":"text","text":"{{body.content}}"}]]}}}}`},
	}
}

func (f Feishu) Send(ctx context.Context, msg map[string]any, creds Credentials, timeout time.Duration) error {
	if err := require(model.ChannelFeishu, [2]string{"webhook", creds.Webhook}); err != nil {
		return err
	}

	payload := msg
	if creds.Secret != "" {
		ts := f.s.now().Unix()
		payload = copyMessage(msg, 2)
		payload["timestamp"] = strconv.FormatInt(ts, 10)
		payload["sign"] = feishuSign(creds.Secret, ts)
	}

	body, err := f.s.postJSON(ctx, model.ChannelFeishu, creds.Webhook, payload, timeout)
	if err != nil {
		return err
	}

	st := parseStatus(body)
	switch {
	case st.Code != nil && *st.Code != 0:
		return &DispatchError{Provider: model.ChannelFeishu, StatusCode: 200, Code: strconv.Itoa(*st.Code), Body: st.Msg}
	case st.StatusCode != nil && *st.StatusCode != 0:
		return &DispatchError{Provider: model.ChannelFeishu, StatusCode: 200, Code: strconv.Itoa(*st.StatusCode), Body: st.StatusMsg}
	}
	return nil
}
