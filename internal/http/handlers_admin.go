package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/target/pushgate/internal/errors"
	"github.com/target/pushgate/internal/service/template"
)

// AdminHandlers serves cache invalidation hooks and read-only endpoint helpers.
type AdminHandlers struct {
	Cache    EndpointCache
	PushLogs PushLogReader
	Catalog  ChannelCatalog
	Logger   *slog.Logger
}

// InvalidateEndpoint handles POST /cache/endpoints/{endpointId}/invalidate.
func (h *AdminHandlers) InvalidateEndpoint(w http.ResponseWriter, r *http.Request) {
	endpointID := pathID(r, "endpointId")
	if err := h.Cache.Invalidate(r.Context(), endpointID); err != nil {
		h.Logger.ErrorContext(r.Context(), "endpoint cache invalidation failed", "endpoint_id", endpointID, "error", err)
		WriteAppError(w, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "cache invalidation failed"))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"invalidated": 1})
}

// InvalidateChannel handles POST /cache/channels/{channelId}/invalidate.
func (h *AdminHandlers) InvalidateChannel(w http.ResponseWriter, r *http.Request) {
	channelID := pathID(r, "channelId")
	n, err := h.Cache.InvalidateByChannel(r.Context(), channelID)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "channel cache invalidation failed", "channel_id", channelID, "error", err)
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"invalidated": n})
}

// ListPushLogs handles GET /endpoints/{endpointId}/push-logs?limit=N.
func (h *AdminHandlers) ListPushLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteAppError(w, apperrors.ValidationField("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	logs, err := h.PushLogs.ListByEndpoint(r.Context(), pathID(r, "endpointId"), limit)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "list push logs failed", "error", err)
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// ExampleBody handles GET /endpoints/{endpointId}/example-body. It returns a request body
// that satisfies every placeholder of the endpoint's rule.
func (h *AdminHandlers) ExampleBody(w http.ResponseWriter, r *http.Request) {
	endpointID := pathID(r, "endpointId")
	ep, err := h.Cache.Get(r.Context(), endpointID)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "endpoint lookup failed", "endpoint_id", endpointID, "error", err)
		WriteAppError(w, err)
		return
	}
	if ep == nil {
		WriteAppError(w, apperrors.NotFoundf("endpoint %s not found", endpointID))
		return
	}

	body, err := template.ExampleBody(ep.Rule)
	if err != nil {
		var tplErr *template.TemplateError
		if errors.As(err, &tplErr) {
			WriteAppError(w, apperrors.ValidationField("rule", tplErr.Error()))
			return
		}
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, body)
}

// ChannelCatalog handles GET /channels/catalog.
func (h *AdminHandlers) ChannelCatalog(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"channels": h.Catalog.Catalog()})
}
