package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/pushgate/internal/channels"
	"github.com/target/pushgate/internal/domain/model"
	apperrors "github.com/target/pushgate/internal/errors"
	"github.com/target/pushgate/internal/service"
)

type fakeExecutor struct {
	mu     sync.Mutex
	params []service.ExecuteParams
	result model.PushResult
}

func (f *fakeExecutor) Execute(_ context.Context, p service.ExecuteParams) model.PushResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, p)
	res := f.result
	res.EndpointID = p.EndpointID
	res.RequestID = p.RequestID
	if res.RequestID == "" {
		res.RequestID = "generated"
	}
	return res
}

type fakeGroups struct {
	resp   service.GroupResponse
	err    error
	bodies []any
}

func (f *fakeGroups) DispatchGroup(_ context.Context, _ string, body any) (service.GroupResponse, error) {
	f.bodies = append(f.bodies, body)
	return f.resp, f.err
}

type fakeCache struct {
	endpoints   map[string]*model.EndpointWithChannel
	getErr      error
	invalidated []string
	channelIDs  []string
	channelN    int
	err         error
}

func (f *fakeCache) Get(_ context.Context, id string) (*model.EndpointWithChannel, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.endpoints[id], nil
}

func (f *fakeCache) Invalidate(_ context.Context, id string) error {
	f.invalidated = append(f.invalidated, id)
	return f.err
}

func (f *fakeCache) InvalidateByChannel(_ context.Context, channelID string) (int, error) {
	f.channelIDs = append(f.channelIDs, channelID)
	return f.channelN, f.err
}

type fakeLogs struct {
	limit int
	logs  []*model.PushLog
	err   error
}

func (f *fakeLogs) ListByEndpoint(_ context.Context, _ string, limit int) ([]*model.PushLog, error) {
	f.limit = limit
	return f.logs, f.err
}

type fakeCatalog []channels.CatalogEntry

func (f fakeCatalog) Catalog() []channels.CatalogEntry { return f }

type routerFixture struct {
	executor *fakeExecutor
	groups   *fakeGroups
	cache    *fakeCache
	logs     *fakeLogs
	handler  http.Handler
}

func newRouterFixture(t *testing.T, mutate ...func(*RouterServices)) *routerFixture {
	t.Helper()
	f := &routerFixture{
		executor: &fakeExecutor{result: model.PushResult{OK: true, HTTPStatus: http.StatusOK}},
		groups:   &fakeGroups{},
		cache:    &fakeCache{endpoints: map[string]*model.EndpointWithChannel{}},
		logs:     &fakeLogs{},
	}
	svc := RouterServices{
		Executor:     f.executor,
		Groups:       f.groups,
		Cache:        f.cache,
		PushLogs:     f.logs,
		Catalog:      fakeCatalog{{Type: model.ChannelBark, Label: "Bark"}},
		MaxBodyBytes: 64,
	}
	for _, m := range mutate {
		m(&svc)
	}
	f.handler = NewRouter(svc)
	return f
}

func (f *routerFixture) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPush_BodyDecoding(t *testing.T) {
	tests := []struct {
		name string
		body string
		want any
	}{
		{name: "json object", body: `{"msg":"hi"}`, want: map[string]any{"msg": "hi"}},
		{name: "json scalar", body: `42`, want: float64(42)},
		{name: "raw text becomes a string", body: "disk almost full", want: "disk almost full"},
		{name: "empty body is null", body: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t)
			rec := f.do(http.MethodPost, "/push/ep-1", tt.body)

			require.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, f.executor.params, 1)
			assert.Equal(t, "ep-1", f.executor.params[0].EndpointID)
			assert.Equal(t, tt.want, f.executor.params[0].Body)
		})
	}
}

func TestPush_ResponseMirrorsResult(t *testing.T) {
	f := newRouterFixture(t)
	f.executor.result = model.PushResult{OK: false, HTTPStatus: http.StatusBadGateway, ResponseBody: "discord: http 500"}

	rec := f.do(http.MethodPost, "/push/ep-1", `{}`, RequestIDHeader, "req-42")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]any{
		"requestId":    "req-42",
		"status":       "failed",
		"responseBody": "discord: http 500",
	}, decode(t, rec))
}

func TestPush_OversizedRequestIDIsIgnored(t *testing.T) {
	f := newRouterFixture(t)
	f.do(http.MethodPost, "/push/ep-1", `{}`, RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))

	require.Len(t, f.executor.params, 1)
	assert.Empty(t, f.executor.params[0].RequestID)
}

func TestPush_BodyTooLarge(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodPost, "/push/ep-1", strings.Repeat("a", 65))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, f.executor.params)
}

func TestPush_MethodNotAllowed(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, "/push/ep-1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPushGroup_RequiresJSON(t *testing.T) {
	for _, body := range []string{"", "not json", `{"a":`} {
		f := newRouterFixture(t)
		rec := f.do(http.MethodPost, "/push-group/g-1", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(t, map[string]any{"error": "Invalid JSON body"}, decode(t, rec))
		assert.Empty(t, f.groups.bodies)
	}
}

func TestPushGroup_Rejections(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantText string
	}{
		{err: service.ErrGroupNotFound, wantCode: http.StatusNotFound, wantText: "Group not found"},
		{err: service.ErrGroupDisabled, wantCode: http.StatusForbidden, wantText: "Group is disabled"},
		{err: service.ErrGroupEmpty, wantCode: http.StatusBadRequest, wantText: "Group has no endpoints"},
		{err: fmt.Errorf("load group g-1: %w", errors.New("db down")), wantCode: http.StatusInternalServerError, wantText: "Failed to process group push"},
	}
	for _, tt := range tests {
		t.Run(tt.wantText, func(t *testing.T) {
			f := newRouterFixture(t)
			f.groups.err = tt.err

			rec := f.do(http.MethodPost, "/push-group/g-1", `{"msg":"hi"}`)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantText, decode(t, rec)["error"])
		})
	}
}

func TestPushGroup_Modes(t *testing.T) {
	t.Run("sync summary", func(t *testing.T) {
		f := newRouterFixture(t)
		f.groups.resp = service.GroupResponse{HTTPStatus: http.StatusOK, Result: &model.GroupResult{
			Status: "done", GroupID: "g-1", Total: 2, SuccessCount: 1, FailedCount: 1,
		}}

		rec := f.do(http.MethodPost, "/push-group/g-1", `{"msg":"hi"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		got := decode(t, rec)
		assert.Equal(t, "done", got["status"])
		assert.InDelta(t, 2, got["total"], 0)
		assert.Equal(t, []any{map[string]any{"msg": "hi"}}, f.groups.bodies)
	})

	t.Run("queued acceptance", func(t *testing.T) {
		f := newRouterFixture(t)
		f.groups.resp = service.GroupResponse{HTTPStatus: http.StatusAccepted, Accepted: &model.GroupAccepted{
			Status: "accepted", GroupID: "g-1", Total: 3,
		}}

		rec := f.do(http.MethodPost, "/push-group/g-1", `{"msg":"hi"}`)

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "accepted", decode(t, rec)["status"])
	})
}

func TestCacheInvalidation(t *testing.T) {
	f := newRouterFixture(t)
	f.cache.channelN = 3

	rec := f.do(http.MethodPost, "/cache/endpoints/ep-1/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ep-1"}, f.cache.invalidated)

	rec = f.do(http.MethodPost, "/cache/channels/ch-1/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ch-1"}, f.cache.channelIDs)
	assert.InDelta(t, 3, decode(t, rec)["invalidated"], 0)
}

func TestCacheInvalidation_Failure(t *testing.T) {
	f := newRouterFixture(t)
	f.cache.err = errors.New("redis: connection refused")

	rec := f.do(http.MethodPost, "/cache/endpoints/ep-1/invalidate", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "cache invalidation failed", decode(t, rec)["message"])
}

func TestListPushLogs(t *testing.T) {
	f := newRouterFixture(t)
	f.logs.logs = []*model.PushLog{{ID: "log-1", RequestID: "req-1", EndpointID: "ep-1", Status: model.PushStatusSuccess}}

	rec := f.do(http.MethodGet, "/endpoints/ep-1/push-logs?limit=10", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, f.logs.limit)
	logs, ok := decode(t, rec)["logs"].([]any)
	require.True(t, ok)
	assert.Len(t, logs, 1)
}

func TestListPushLogs_Errors(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, "/endpoints/ep-1/push-logs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.logs.err = apperrors.Wrap(errors.New("dial tcp"), apperrors.ErrCodeUnavailable, "database unavailable")
	rec = f.do(http.MethodGet, "/endpoints/ep-1/push-logs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, f.logs.limit)
}

func TestListPushLogs_NotRoutedWithoutReader(t *testing.T) {
	f := newRouterFixture(t, func(s *RouterServices) { s.PushLogs = nil })
	rec := f.do(http.MethodGet, "/endpoints/ep-1/push-logs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExampleBody(t *testing.T) {
	f := newRouterFixture(t)
	f.cache.endpoints["ep-1"] = &model.EndpointWithChannel{Endpoint: model.Endpoint{
		ID:   "ep-1",
		Rule: `{"title":"{{body.alert.name}}","text":"{{body.msg}}"}`,
	}}

	rec := f.do(http.MethodGet, "/endpoints/ep-1/example-body", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{
		"alert": map[string]any{"name": "alert.name"},
		"msg":   "msg",
	}, decode(t, rec))

	rec = f.do(http.MethodGet, "/endpoints/missing/example-body", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChannelCatalog(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, "/channels/catalog", "")

	require.Equal(t, http.StatusOK, rec.Code)
	entries, ok := decode(t, rec)["channels"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "Bark", entries[0].(map[string]any)["label"])
}

func TestMetricsRoute(t *testing.T) {
	f := newRouterFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/metrics", "").Code)

	f = newRouterFixture(t, func(s *RouterServices) {
		s.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("pushgate_push_total 1\n"))
		})
	})
	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pushgate_push_total")
}

func TestRecoverReturnsJSON(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["message"])
}
