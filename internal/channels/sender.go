package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/target/pushgate/internal/domain/model"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = model.MaxResponseBodyBytes

// Default provider API bases.
const (
	DefaultTelegramAPIURL = "https://api.telegram.org"
	DefaultWeComAPIURL    = "https://qyapi.weixin.qq.com"
)

// Sender is the shared outbound transport for every provider.
// It is safe for concurrent use.
type Sender struct {
	client         *http.Client
	rps            rate.Limit
	burst          int
	telegramAPIURL string
	wecomAPIURL    string
	now            func() time.Time
	logger         *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	tokens   map[string]accessToken
}

// SenderOptions configures a Sender.
type SenderOptions struct {
	// Client is used for every provider request. Per-call timeouts come from the context.
	Client *http.Client
	// RPS limits requests per provider host; zero disables limiting.
	RPS   float64
	Burst int

	TelegramAPIURL string
	WeComAPIURL    string

	// Now is used for request signing timestamps.
	Now    func() time.Time
	Logger *slog.Logger
}

// NewSender creates a Sender.
func NewSender(opts SenderOptions) *Sender {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	return &Sender{
		client:         client,
		rps:            rate.Limit(opts.RPS),
		burst:          burst,
		telegramAPIURL: baseURL(opts.TelegramAPIURL, DefaultTelegramAPIURL),
		wecomAPIURL:    baseURL(opts.WeComAPIURL, DefaultWeComAPIURL),
		now:            nowFn,
		logger:         logger.With("component", "channels"),
		limiters:       make(map[string]*rate.Limiter),
		tokens:         make(map[string]accessToken),
	}
}

func baseURL(raw, def string) string {
	if u := strings.TrimRight(strings.TrimSpace(raw), "/"); u != "" {
		return u
	}
	return def
}

// ForType returns the provider for t. Selection is a switch over the closed enum.
func (s *Sender) ForType(t model.ChannelType) (Provider, error) {
	switch t {
	case model.ChannelDingTalk:
		return DingTalk{s: s}, nil
	case model.ChannelWeCom:
		return WeCom{s: s}, nil
	case model.ChannelWeComApp:
		return WeComApp{s: s}, nil
	case model.ChannelTelegram:
		return Telegram{s: s}, nil
	case model.ChannelFeishu:
		return Feishu{s: s}, nil
	case model.ChannelDiscord:
		return Discord{s: s}, nil
	case model.ChannelBark:
		return Bark{s: s}, nil
	case model.ChannelWebhook:
		return Webhook{s: s}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannelType, t)
	}
}

// Send delivers msg through the provider of ch, bounded by timeout.
func (s *Sender) Send(ctx context.Context, ch *model.Channel, msg map[string]any, timeout time.Duration) error {
	if ch == nil {
		return fmt.Errorf("%w: channel missing", ErrUnknownChannelType)
	}
	p, err := s.ForType(ch.Type)
	if err != nil {
		return err
	}
	return p.Send(ctx, msg, CredentialsFrom(ch), timeout)
}

// wait blocks until the limiter for rawURL's host admits one request.
func (s *Sender) wait(ctx context.Context, rawURL string) error {
	if s.rps <= 0 {
		return nil
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	s.mu.Lock()
	lim, ok := s.limiters[host]
	if !ok {
		lim = rate.NewLimiter(s.rps, s.burst)
		s.limiters[host] = lim
	}
	s.mu.Unlock()

	return lim.Wait(ctx)
}

// request is one outbound provider call.
type request struct {
	provider model.ChannelType
	method   string
	url      string
	body     any // JSON-encoded when non-nil
}

// do performs req and returns the (capped) response body of a 2xx response.
// Any other status, transport failure or timeout becomes a *DispatchError.
func (s *Sender) do(ctx context.Context, req request) ([]byte, error) {
	if err := s.wait(ctx, req.url); err != nil {
		return nil, &DispatchError{Provider: req.provider, Err: fmt.Errorf("rate limit: %w", err)}
	}

	var payload io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return nil, &DispatchError{Provider: req.provider, Err: fmt.Errorf("encode message: %w", err)}
		}
		payload = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, payload)
	if err != nil {
		return nil, &DispatchError{Provider: req.provider, Err: fmt.Errorf("build request: %w", err)}
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &DispatchError{Provider: req.provider, Err: redactURLError(err)}
	}
	defer func() {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.DebugContext(ctx, "close provider response", "provider", req.provider, "error", cerr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &DispatchError{Provider: req.provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DispatchError{Provider: req.provider, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// postJSON is do with a bounded context and a JSON body.
func (s *Sender) postJSON(ctx context.Context, provider model.ChannelType, target string, body any, timeout time.Duration) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	return s.do(ctx, request{provider: provider, method: http.MethodPost, url: target, body: body})
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = time.Duration(model.DefaultTimeoutMs) * time.Millisecond
	}
	return context.WithTimeout(ctx, timeout)
}

// redactURLError drops the request URL from transport errors; webhook URLs and
// bot tokens are credentials and would otherwise end up in push logs.
func redactURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s request failed: %w", strings.ToLower(uerr.Op), uerr.Err)
	}
	return err
}

// providerStatus is the union of the status fields providers put in a 2xx body.
type providerStatus struct {
	ErrCode    *int   `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
	Code       *int   `json:"code"`
	Msg        string `json:"msg"`
	Message    string `json:"message"`
	StatusCode *int   `json:"StatusCode"`
	StatusMsg  string `json:"StatusMessage"`
}

func parseStatus(body []byte) providerStatus {
	var st providerStatus
	if len(bytes.TrimSpace(body)) == 0 {
		return st
	}
	// non-JSON bodies carry no status fields
	_ = json.Unmarshal(body, &st)
	return st
}

// copyMessage returns a shallow copy so providers can add fields without
// touching the message shared across retry attempts.
func copyMessage(msg map[string]any, extra int) map[string]any {
	out := make(map[string]any, len(msg)+extra)
	maps.Copy(out, msg)
	return out
}
