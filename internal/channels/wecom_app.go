package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/target/pushgate/internal/domain/model"
)

// tokenRefreshMargin is subtracted from expires_in so a token is never used at the edge of its life.
const tokenRefreshMargin = 5 * time.Minute

type accessToken struct {
	value   string
	expires time.Time
}

// WeComApp sends through a WeCom self-built application: it exchanges corpId+secret
// for an access token, then calls message/send with the agent id injected.
type WeComApp struct{ s *Sender }

func (WeComApp) Type() model.ChannelType { return model.ChannelWeComApp }

func (WeComApp) Label() string { return "WeCom App" }

func (WeComApp) Templates() []Template {
	return []Template{
		{Name: "Text", Content: `{"touser":"@all","msgtype":"text","text":{"content":"{{body.message}}"}}`},
		{Name: "Text card", Content: `{"touser":"@all","msgtype":"textcard","textcard":{"title":"{{body.title}}","description":"{{body.content}}","url":"{{body.url}}"}}`},
	}
}

func (w WeComApp) Send(ctx context.Context, msg map[string]any, creds Credentials, timeout time.Duration) error {
	if err := require(model.ChannelWeComApp,
		[2]string{"corpId", creds.CorpID},
		[2]string{"secret", creds.Secret},
		[2]string{"agentId", creds.AgentID},
	); err != nil {
		return err
	}

	// one budget covers both the token exchange and the send
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	token, err := w.token(ctx, creds)
	if err != nil {
		return err
	}

	payload := copyMessage(msg, 2)
	if agentID, convErr := strconv.Atoi(creds.AgentID); convErr == nil {
		payload["agentid"] = agentID
	} else {
		payload["agentid"] = creds.AgentID
	}
	if v, ok := payload["touser"].(string); !ok || v == "" {
		payload["touser"] = "@all"
	}

	target := w.s.wecomAPIURL + "/cgi-bin/message/send?access_token=" + url.QueryEscape(token)
	body, err := w.s.do(ctx, request{provider: model.ChannelWeComApp, method: http.MethodPost, url: target, body: payload})
	if err != nil {
		return err
	}

	st := parseStatus(body)
	if st.ErrCode != nil && isTokenError(*st.ErrCode) {
		w.s.dropToken(tokenKey(creds))
	}
	return errcodeFailure(model.ChannelWeComApp, body)
}

func (w WeComApp) token(ctx context.Context, creds Credentials) (string, error) {
	key := tokenKey(creds)
	if tok, ok := w.s.cachedToken(key); ok {
		return tok, nil
	}

	q := url.Values{}
	q.Set("corpid", creds.CorpID)
	q.Set("corpsecret", creds.Secret)
	body, err := w.s.do(ctx, request{
		provider: model.ChannelWeComApp,
		method:   http.MethodGet,
		url:      w.s.wecomAPIURL + "/cgi-bin/gettoken?" + q.Encode(),
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		ErrCode     int    `json:"errcode"`
		ErrMsg      string `json:"errmsg"`
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return "", &DispatchError{Provider: model.ChannelWeComApp, StatusCode: 200, Err: errors.New("gettoken: invalid response")}
	}
	if resp.ErrCode != 0 || resp.AccessToken == "" {
		return "", &DispatchError{Provider: model.ChannelWeComApp, StatusCode: 200, Code: strconv.Itoa(resp.ErrCode), Body: "gettoken: " + resp.ErrMsg}
	}

	ttl := time.Duration(resp.ExpiresIn)*time.Second - tokenRefreshMargin
	if ttl > 0 {
		w.s.storeToken(key, accessToken{value: resp.AccessToken, expires: w.s.now().Add(ttl)})
	}
	return resp.AccessToken, nil
}

func tokenKey(creds Credentials) string {
	return creds.CorpID + "\x00" + creds.Secret
}

// 40014 invalid token, 42001 expired token.
func isTokenError(code int) bool {
	return code == 40014 || code == 42001
}

func (s *Sender) cachedToken(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[key]
	if !ok || !s.now().Before(tok.expires) {
		return "", false
	}
	return tok.value, true
}

func (s *Sender) storeToken(key string, tok accessToken) {
	s.mu.Lock()
	s.tokens[key] = tok
	s.mu.Unlock()
}

func (s *Sender) dropToken(key string) {
	s.mu.Lock()
	delete(s.tokens, key)
	s.mu.Unlock()
}
