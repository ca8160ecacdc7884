package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// PushStatus is the outcome recorded for a push.
type PushStatus string

const (
	PushStatusSuccess PushStatus = "success"
	PushStatusFailed  PushStatus = "failed"
)

// Response bodies recorded for terminal failures before any dispatch attempt.
const (
	ResponseEndpointNotFound = "endpoint_not_found_or_channel_missing"
	ResponseEndpointDisabled = "endpoint_disabled"
	ResponseTemplateError    = "template_error"
	ResponseTemplateJSON     = "template_json_error"
	ResponseSendFailed       = "send_failed"
)

// MaxResponseBodyBytes caps the response/error text persisted on a push log row.
const MaxResponseBodyBytes = 4 * 1024

// PushLog is an append-only record of one push outcome.
type PushLog struct {
	ID           string     `json:"id"                     db:"id"`
	RequestID    string     `json:"requestId"              db:"request_id"`
	UserID       *string    `json:"userId,omitempty"       db:"user_id"`
	EndpointID   string     `json:"endpointId"             db:"endpoint_id"`
	Status       PushStatus `json:"status"                 db:"status"`
	ResponseBody *string    `json:"responseBody,omitempty" db:"response_body"`
	CreatedAt    time.Time  `json:"createdAt"              db:"created_at"`
}

// TruncateResponseBody shortens s to at most MaxResponseBodyBytes without splitting a UTF-8 rune.
func TruncateResponseBody(s string) string {
	if len(s) <= MaxResponseBodyBytes {
		return s
	}
	cut := MaxResponseBodyBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// PushResult is the outcome of one Execute call.
type PushResult struct {
	RequestID    string `json:"requestId"`
	EndpointID   string `json:"endpointId"`
	OK           bool   `json:"ok"`
	HTTPStatus   int    `json:"httpStatus"`
	ResponseBody string `json:"responseBody"`
}

// Status maps OK onto the log status vocabulary.
func (r PushResult) Status() PushStatus {
	if r.OK {
		return PushStatusSuccess
	}
	return PushStatusFailed
}

// PushMessage is the durable queue payload for one endpoint dispatch.
type PushMessage struct {
	RequestID  string          `json:"requestId"`
	EndpointID string          `json:"endpointId"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// ErrMalformedMessage is returned when a queue payload is missing or mistyping required fields.
var ErrMalformedMessage = errors.New("malformed push message")

// DecodePushMessage parses and validates a raw queue payload.
// requestId and endpointId must be non-empty strings; body may be any JSON value.
func DecodePushMessage(raw []byte) (PushMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return PushMessage{}, ErrMalformedMessage
	}

	var msg PushMessage
	for key, dst := range map[string]*string{"requestId": &msg.RequestID, "endpointId": &msg.EndpointID} {
		v, ok := fields[key]
		if !ok {
			return PushMessage{}, ErrMalformedMessage
		}
		if err := json.Unmarshal(v, dst); err != nil || strings.TrimSpace(*dst) == "" {
			return PushMessage{}, ErrMalformedMessage
		}
	}
	msg.Body = fields["body"]
	return msg, nil
}
