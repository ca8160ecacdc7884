package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/target/pushgate/internal/domain/model"
)

// Telegram calls the Bot API sendMessage method with the channel's chat id injected.
type Telegram struct{ s *Sender }

func (Telegram) Type() model.ChannelType { return model.ChannelTelegram }

func (Telegram) Label() string { return "Telegram Bot" }

func (Telegram) Templates() []Template {
	return []Template{
		{Name: "Text", Content: `{"text":"{{body.message}}"}`},
		{Name: "Markdown", Content: `{"text":"*{{body.title}}*\n{{body.content}}","parse_mode":"MarkdownV2"}`},
		{Name: "HTML", Content: `{"text":"<b>{{body.title}}</b>\n{{body.content}}","parse_mode":"HTML"}`},
	}
}

func (t Telegram) Send(ctx context.Context, msg map[string]any, creds Credentials, timeout time.Duration) error {
	if err := require(model.ChannelTelegram,
		[2]string{"botToken", creds.BotToken},
		[2]string{"chatId", creds.ChatID},
	); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := t.s.wait(ctx, t.s.telegramAPIURL); err != nil {
		return &DispatchError{Provider: model.ChannelTelegram, Err: err}
	}

	bot, err := tele.NewBot(tele.Settings{
		URL:     t.s.telegramAPIURL,
		Token:   creds.BotToken,
		Client:  t.s.boundedClient(ctx, timeout),
		Offline: true,
	})
	if err != nil {
		return &DispatchError{Provider: model.ChannelTelegram, Err: err}
	}

	payload := copyMessage(msg, 1)
	payload["chat_id"] = creds.ChatID

	// Raw reports transport failures and "ok": false responses, but treats an
	// undecodable body as success, so ok is checked again here.
	data, rawErr := bot.Raw("sendMessage", payload)
	if rawErr != nil {
		return telegramError(rawErr)
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(data, &resp); err != nil || !resp.OK {
		return &DispatchError{Provider: model.ChannelTelegram, Code: "false", Body: model.TruncateResponseBody(string(data))}
	}
	return nil
}

func telegramError(err error) error {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return &DispatchError{Provider: model.ChannelTelegram, StatusCode: apiErr.Code, Code: "false", Body: apiErr.Description}
	}
	return &DispatchError{Provider: model.ChannelTelegram, Err: redactURLError(err)}
}

// boundedClient returns a client whose requests are cancelled with ctx.
// The Bot API client in telebot takes no context, so ctx is attached per request.
func (s *Sender) boundedClient(ctx context.Context, timeout time.Duration) *http.Client {
	base := s.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: ctxTransport{ctx: ctx, base: base},
	}
}

type ctxTransport struct {
	ctx  context.Context //nolint:containedctx // request scoped, see boundedClient
	base http.RoundTripper
}

func (c ctxTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return c.base.RoundTrip(r.WithContext(c.ctx))
}
