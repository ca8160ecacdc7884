package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/pushgate/internal/domain/model"
	"github.com/target/pushgate/internal/service"
)

// RequestIDHeader lets callers supply the request id used to correlate a push with its log row.
const RequestIDHeader = "X-Request-Id"

// maxRequestIDLen bounds caller-supplied request ids.
const maxRequestIDLen = 128

// PushHandlers serves the push entry points.
type PushHandlers struct {
	Executor     service.Executor
	Groups       service.GroupDispatcher
	MaxBodyBytes int64
	Logger       *slog.Logger
}

type pushResponse struct {
	RequestID    string           `json:"requestId"`
	Status       model.PushStatus `json:"status"`
	ResponseBody string           `json:"responseBody"`
}

// Push handles POST /push/{endpointId}. The HTTP status mirrors the push outcome.
func (h *PushHandlers) Push(w http.ResponseWriter, r *http.Request) {
	endpointID := pathID(r, "endpointId")
	raw, err := readBody(w, r, h.MaxBodyBytes)
	if err != nil {
		h.writeBodyError(w, err)
		return
	}

	result := h.Executor.Execute(r.Context(), service.ExecuteParams{
		EndpointID: endpointID,
		RequestID:  requestIDFrom(r),
		Body:       decodePushBody(raw),
	})
	WriteJSON(w, result.HTTPStatus, pushResponse{
		RequestID:    result.RequestID,
		Status:       result.Status(),
		ResponseBody: result.ResponseBody,
	})
}

// PushGroup handles POST /push-group/{groupId}. The body must be JSON.
func (h *PushHandlers) PushGroup(w http.ResponseWriter, r *http.Request) {
	groupID := pathID(r, "groupId")
	raw, err := readBody(w, r, h.MaxBodyBytes)
	if err != nil {
		h.writeBodyError(w, err)
		return
	}
	body, err := decodeJSONBody(raw)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}

	resp, err := h.Groups.DispatchGroup(r.Context(), groupID, body)
	if err != nil {
		status := service.GroupErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.Logger.ErrorContext(r.Context(), "group push failed", "group_id", groupID, "error", err)
			WriteJSON(w, status, map[string]string{"error": "Failed to process group push"})
			return
		}
		WriteJSON(w, status, map[string]string{"error": groupErrorText(err)})
		return
	}
	WriteJSON(w, resp.HTTPStatus, resp.Payload())
}

func (h *PushHandlers) writeBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "body_too_large", Err: err})
		return
	}
	WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_body", Err: err})
}

// groupErrorText renders group rejections the way callers expect to read them.
func groupErrorText(err error) string {
	switch {
	case errors.Is(err, service.ErrGroupNotFound):
		return "Group not found"
	case errors.Is(err, service.ErrGroupDisabled):
		return "Group is disabled"
	case errors.Is(err, service.ErrGroupEmpty):
		return "Group has no endpoints"
	default:
		return err.Error()
	}
}

func requestIDFrom(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if len(id) > maxRequestIDLen {
		return ""
	}
	return id
}
