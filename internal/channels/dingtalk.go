package channels

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/target/pushgate/internal/domain/model"
)

// DingTalk posts to a DingTalk group robot webhook, signing the URL when a secret is set.
type DingTalk struct{ s *Sender }

func (DingTalk) Type() model.ChannelType { return model.ChannelDingTalk }

func (DingTalk) Label() string { return "DingTalk Robot" }

func (DingTalk) Templates() []Template {
	return []Template{
		{Name: "Text", Content: `{"msgtype":"text","text":{"content":"{{body.message}}"}}`},
		{Name: "Markdown", Content: `{"msgtype":"markdown","markdown":{"title":"{{body.title}}","text":"{{body.content}}"}}`},
		{Name: "Link", Content: `{"msgtype":"link","link":{"title":"{{body.title}}","text":"{{body.content}}","messageUrl":"{{body.url}}"}}`},
	}
}

func (d DingTalk) Send(ctx context.Context, msg map[string]any, creds Credentials, timeout time.Duration) error {
	if err := require(model.ChannelDingTalk, [2]string{"webhook", creds.Webhook}); err != nil {
		return err
	}

	target := creds.Webhook
	if creds.Secret != "" {
		signed, err := d.signedURL(creds.Webhook, creds.Secret)
		if err != nil {
			return &DispatchError{Provider: model.ChannelDingTalk, Err: err}
		}
		target = signed
	}

	body, err := d.s.postJSON(ctx, model.ChannelDingTalk, target, msg, timeout)
	if err != nil {
		return err
	}
	return errcodeFailure(model.ChannelDingTalk, body)
}

func (d DingTalk) signedURL(webhook, secret string) (string, error) {
	u, err := url.Parse(webhook)
	if err != nil {
		return "", err
	}
	ts := d.s.now().UnixMilli()
	q := u.Query()
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", dingTalkSign(secret, ts))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
