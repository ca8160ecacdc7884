package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pushgate/internal/domain/model"
	"github.com/target/pushgate/internal/service/template"
)

var fixedNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestSender(opts SenderOptions) *Sender {
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewSender(opts)
}

// recorder is an httptest handler that captures the last request and replies with a canned response.
type recorder struct {
	hits   atomic.Int32
	status int
	reply  string
	last   atomic.Value // *captured
}

type captured struct {
	method string
	path   string
	query  url.Values
	body   map[string]any
}

func (rec *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec.hits.Add(1)
	raw, _ := io.ReadAll(r.Body)
	c := &captured{method: r.Method, path: r.URL.Path, query: r.URL.Query()}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &c.body)
	}
	rec.last.Store(c)
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, rec.reply)
}

func (rec *recorder) captured() *captured {
	c, _ := rec.last.Load().(*captured)
	return c
}

func serve(t *testing.T, rec *recorder) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	return srv
}

func textMsg() map[string]any {
	return map[string]any{"msgtype": "text", "text": map[string]any{"content": "hi"}}
}

func TestForType(t *testing.T) {
	s := newTestSender(SenderOptions{})
	for _, typ := range model.ChannelTypes() {
		p, err := s.ForType(typ)
		require.NoError(t, err, typ)
		assert.Equal(t, typ, p.Type())
		assert.NotEmpty(t, p.Label())
	}

	_, err := s.ForType("pager")
	require.ErrorIs(t, err, ErrUnknownChannelType)
}

func TestCatalogTemplatesAreValidRules(t *testing.T) {
	catalog := newTestSender(SenderOptions{}).Catalog()
	require.Len(t, catalog, len(model.ChannelTypes()))

	for _, entry := range catalog {
		require.NotEmpty(t, entry.Templates, entry.Type)
		for _, tpl := range entry.Templates {
			assert.NoError(t, template.Validate(tpl.Content), "%s/%s", entry.Type, tpl.Name)
			example, err := template.ExampleBody(tpl.Content)
			require.NoError(t, err)
			_, err = template.Render(tpl.Content, template.Context{Body: example})
			assert.NoError(t, err, "%s/%s renders its own example", entry.Type, tpl.Name)
		}
	}
}

func TestSend_MissingCredentialsNeverCallsNetwork(t *testing.T) {
	rec := &recorder{reply: `{}`}
	srv := serve(t, rec)
	s := newTestSender(SenderOptions{TelegramAPIURL: srv.URL, WeComAPIURL: srv.URL})

	for _, typ := range model.ChannelTypes() {
		t.Run(string(typ), func(t *testing.T) {
			p, err := s.ForType(typ)
			require.NoError(t, err)
			err = p.Send(context.Background(), textMsg(), Credentials{}, time.Second)
			var credErr *CredentialError
			require.ErrorAs(t, err, &credErr)
			assert.Equal(t, typ, credErr.Provider)
		})
	}
	assert.Zero(t, rec.hits.Load())
}

func TestDingTalk_SignsURL(t *testing.T) {
	rec := &recorder{reply: `{"errcode":0,"errmsg":"ok"}`}
	srv := serve(t, rec)
	s := newTestSender(SenderOptions{})

	err := DingTalk{s: s}.Send(context.Background(), textMsg(),
		Credentials{Webhook: srv.URL + "/robot/send?access_token=abc", Secret: "SEC123"}, time.Second)
	require.NoError(t, err)

	c := rec.captured()
	assert.Equal(t, "abc", c.query.Get("access_token"))
	assert.Equal(t, "1740816000000", c.query.Get("timestamp"))
	assert.Equal(t, dingTalkSign("SEC123", fixedNow.UnixMilli()), c.query.Get("sign"))
	assert.Equal(t, "text", c.body["msgtype"])
}

func TestDingTalk_ErrcodeIsFailure(t *testing.T) {
	rec := &recorder{reply: `{"errcode":310000,"errmsg":"sign not match"}`}
	srv := serve(t, rec)

	err := DingTalk{s: newTestSender(SenderOptions{})}.Send(context.Background(), textMsg(), Credentials{Webhook: srv.URL}, time.Second)
	var dErr *DispatchError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "310000", dErr.Code)
	assert.Contains(t, err.Error(), "sign not match")
}

func TestWeCom_Errcode(t *testing.T) {
	rec := &recorder{reply: `{"errcode":93000,"errmsg":"invalid webhook url"}`}
	srv := serve(t, rec)

	err := WeCom{s: newTestSender(SenderOptions{})}.Send(context.Background(), textMsg(), Credentials{Webhook: srv.URL}, time.Second)
	var dErr *DispatchError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "93000", dErr.Code)

	rec.reply = `{"errcode":0,"errmsg":"ok"}`
	require.NoError(t, WeCom{s: newTestSender(SenderOptions{})}.Send(context.Background(), textMsg(), Credentials{Webhook: srv.URL}, time.Second))
}

func TestWeComApp_TokenThenSend(t *testing.T) {
	var tokenCalls, sendCalls atomic.Int32
	var lastSend atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cgi-bin/gettoken", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		assert.Equal(t, "corp", r.URL.Query().Get("corpid"))
		assert.Equal(t, "sec", r.URL.Query().Get("corpsecret"))
		_, _ = io.WriteString(w, `{"errcode":0,"access_token":"TOKEN","expires_in":7200}`)
	})
	mux.HandleFunc("POST /cgi-bin/message/send", func(w http.ResponseWriter, r *http.Request) {
		sendCalls.Add(1)
		assert.Equal(t, "TOKEN", r.URL.Query().Get("access_token"))
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		lastSend.Store(body)
		_, _ = io.WriteString(w, `{"errcode":0,"errmsg":"ok"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := newTestSender(SenderOptions{WeComAPIURL: srv.URL})
	creds := Credentials{CorpID: "corp", Secret: "sec", AgentID: "1000002"}
	msg := textMsg()

	require.NoError(t, WeComApp{s: s}.Send(context.Background(), msg, creds, time.Second))
	require.NoError(t, WeComApp{s: s}.Send(context.Background(), msg, creds, time.Second))

	assert.Equal(t, int32(1), tokenCalls.Load(), "token is cached")
	assert.Equal(t, int32(2), sendCalls.Load())

	body := lastSend.Load().(map[string]any)
	assert.InDelta(t, 1000002, body["agentid"], 0)
	assert.Equal(t, "@all", body["touser"])
	assert.NotContains(t, msg, "agentid", "caller message is not mutated")
}

func TestWeComApp_ExpiredTokenIsDropped(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cgi-bin/gettoken", func(w http.ResponseWriter, _ *http.Request) {
		tokenCalls.Add(1)
		_, _ = io.WriteString(w, `{"errcode":0,"access_token":"TOKEN","expires_in":7200}`)
	})
	mux.HandleFunc("POST /cgi-bin/message/send", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"errcode":42001,"errmsg":"access_token expired"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := newTestSender(SenderOptions{WeComAPIURL: srv.URL})
	creds := Credentials{CorpID: "corp", Secret: "sec", AgentID: "1"}

	var dErr *DispatchError
	require.ErrorAs(t, WeComApp{s: s}.Send(context.Background(), textMsg(), creds, time.Second), &dErr)
	require.ErrorAs(t, WeComApp{s: s}.Send(context.Background(), textMsg(), creds, time.Second), &dErr)
	assert.Equal(t, int32(2), tokenCalls.Load())
}

func TestWeComApp_TokenFailure(t *testing.T) {
	rec := &recorder{reply: `{"errcode":40013,"errmsg":"invalid corpid"}`}
	srv := serve(t, rec)

	s := newTestSender(SenderOptions{WeComAPIURL: srv.URL})
	err := WeComApp{s: s}.Send(context.Background(), textMsg(), Credentials{CorpID: "c", Secret: "s", AgentID: "1"}, time.Second)
	var dErr *DispatchError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "40013", dErr.Code)
	assert.Equal(t, int32(1), rec.hits.Load())
}

func TestTelegram_SendMessage(t *testing.T) {
	rec := &recorder{reply: `{"ok":true,"result":{"message_id":1}}`}
	srv := serve(t, rec)
	s := newTestSender(SenderOptions{TelegramAPIURL: srv.URL})

	err := Telegram{s: s}.Send(context.Background(), map[string]any{"text": "hi"},
		Credentials{BotToken: "123:abc", ChatID: "-100"}, time.Second)
	require.NoError(t, err)

	c := rec.captured()
	assert.Equal(t, "/bot123:abc/sendMessage", c.path)
	assert.Equal(t, "-100", c.body["chat_id"])
	assert.Equal(t, "hi", c.body["text"])
}

func TestTelegram_NotOK(t *testing.T) {
	for name, reply := range map[string]string{
		"api error":     `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
		"non-json body": `<html>bad gateway</html>`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{status: http.StatusBadRequest, reply: reply}
			srv := serve(t, rec)
			s := newTestSender(SenderOptions{TelegramAPIURL: srv.URL})

			err := Telegram{s: s}.Send(context.Background(), map[string]any{"text": "hi"},
				Credentials{BotToken: "123:abc", ChatID: "1"}, time.Second)
			var dErr *DispatchError
			require.ErrorAs(t, err, &dErr)
			assert.NotContains(t, err.Error(), "123:abc", "bot token must not leak into errors")
		})
	}
}

func TestFeishu_SignsBody(t *testing.T) {
	rec := &recorder{reply: `{"code":0,"msg":"success"}`}
	srv := serve(t, rec)
	s := newTestSender(SenderOptions{})
	msg := map[string]any{"msg_type": "text", "content": map[string]any{"text": "hi"}}

	require.NoError(t, Feishu{s: s}.Send(context.Background(), msg, Credentials{Webhook: srv.URL, Secret: "sec"}, time.Second))

	c := rec.captured()
	assert.Equal(t, "1740816000", c.body["timestamp"])
	assert.Equal(t, feishuSign("sec", fixedNow.Unix()), c.body["sign"])
	assert.NotContains(t, msg, "sign")
}

func TestFeishu_Failures(t *testing.T) {
	for name, reply := range map[string]string{
		"code":       `{"code":19021,"msg":"sign match fail"}`,
		"StatusCode": `{"StatusCode":9499,"StatusMessage":"Bad Request"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{reply: reply}
			srv := serve(t, rec)
			err := Feishu{s: newTestSender(SenderOptions{})}.Send(context.Background(), textMsg(), Credentials{Webhook: srv.URL}, time.Second)
			var dErr *DispatchError
			require.ErrorAs(t, err, &dErr)
		})
	}
}

func TestDiscord_StatusClassification(t *testing.T) {
	rec := &recorder{status: http.StatusNoContent}
	srv := serve(t, rec)
	d := Discord{s: newTestSender(SenderOptions{})}
	creds := Credentials{Webhook: srv.URL}

	require.NoError(t, d.Send(context.Background(), map[string]any{"content": "hi"}, creds, time.Second))

	rec.status = http.StatusBadRequest
	rec.reply = `{"message":"Cannot send an empty message","code":50006}`
	err := d.Send(context.Background(), map[string]any{}, creds, time.Second)
	var dErr *DispatchError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, http.StatusBadRequest, dErr.StatusCode)
	assert.Contains(t, dErr.Body, "empty message")
}

func TestBark_CodeIsChecked(t *testing.T) {
	rec := &recorder{reply: `{"code":200,"message":"success"}`}
	srv := serve(t, rec)
	b := Bark{s: newTestSender(SenderOptions{})}
	creds := Credentials{Webhook: srv.URL + "/devicekey"}

	require.NoError(t, b.Send(context.Background(), map[string]any{"title": "t", "body": "b"}, creds, time.Second))
	assert.Equal(t, "/devicekey", rec.captured().path)

	rec.reply = `{"code":400,"message":"device token not found"}`
	var dErr *DispatchError
	require.ErrorAs(t, b.Send(context.Background(), map[string]any{"body": "b"}, creds, time.Second), &dErr)
	assert.Equal(t, "400", dErr.Code)
}

func TestWebhook_Non2xxAndTruncation(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError, reply: strings.Repeat("e", 10_000)}
	srv := serve(t, rec)

	err := Webhook{s: newTestSender(SenderOptions{})}.Send(context.Background(), map[string]any{"a": 1}, Credentials{Webhook: srv.URL}, time.Second)
	var dErr *DispatchError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, http.StatusInternalServerError, dErr.StatusCode)
	assert.Len(t, dErr.Body, maxResponseBytes)
}

func TestWebhook_TimeoutIsDispatchError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	secretURL := srv.URL + "/hook?token=s3cr3t"
	start := time.Now()
	err := Webhook{s: newTestSender(SenderOptions{})}.Send(context.Background(), map[string]any{"a": 1}, Credentials{Webhook: secretURL}, 100*time.Millisecond)
	var dErr *DispatchError
	require.ErrorAs(t, err, &dErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.NotContains(t, err.Error(), "s3cr3t")
}

func TestSender_RateLimitPerHost(t *testing.T) {
	rec := &recorder{reply: `{}`}
	srv := serve(t, rec)
	s := newTestSender(SenderOptions{RPS: 0.001, Burst: 1})
	creds := Credentials{Webhook: srv.URL}

	require.NoError(t, Webhook{s: s}.Send(context.Background(), map[string]any{}, creds, time.Second))

	// the next token is ~1000s away, beyond the request deadline
	err := Webhook{s: s}.Send(context.Background(), map[string]any{}, creds, 50*time.Millisecond)
	var dErr *DispatchError
	require.ErrorAs(t, err, &dErr)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, int32(1), rec.hits.Load())
}

func TestSender_SendUsesChannelType(t *testing.T) {
	rec := &recorder{status: http.StatusNoContent}
	srv := serve(t, rec)
	s := newTestSender(SenderOptions{})

	ch := &model.Channel{Type: model.ChannelDiscord, Webhook: " " + srv.URL + " "}
	require.NoError(t, s.Send(context.Background(), ch, map[string]any{"content": "x"}, time.Second))
	assert.Equal(t, int32(1), rec.hits.Load())

	require.ErrorIs(t, s.Send(context.Background(), &model.Channel{Type: "nope"}, nil, time.Second), ErrUnknownChannelType)
	require.ErrorIs(t, s.Send(context.Background(), nil, nil, time.Second), ErrUnknownChannelType)
}

func TestSignatures(t *testing.T) {
	assert.Equal(t, "Juu2bG1LqrYhYhp+czvjjALFc5DExm6KNzQskxBovCw=", dingTalkSign("SEC123", 1740816000000))
	assert.Equal(t, "SngROdOZG7Bh13lIiethE2d5fEQRwmAui/CKCk9X2hc=", feishuSign("sec", 1740816000))
}

func TestErrorClass(t *testing.T) {
	cases := map[string]error{
		"provider_rejected":  &DispatchError{Provider: model.ChannelWeCom, StatusCode: 200, Code: "93000"},
		"provider_5xx":       &DispatchError{Provider: model.ChannelDiscord, StatusCode: 502},
		"provider_4xx":       &DispatchError{Provider: model.ChannelWebhook, StatusCode: 404},
		"":                   &DispatchError{Provider: model.ChannelWebhook, Err: context.DeadlineExceeded},
		"missing_credential": &CredentialError{Provider: model.ChannelBark, Field: "device_key"},
	}
	for want, err := range cases {
		c, ok := err.(interface{ ErrorClass() string })
		require.True(t, ok)
		assert.Equal(t, want, c.ErrorClass())
	}
}
