package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/target/pushgate/internal/errors"
)

// ErrInvalidJSONBody is reported when an endpoint that requires JSON receives anything else.
var ErrInvalidJSONBody = errors.New("invalid JSON body")

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// WriteAppError maps err onto its HTTP status and writes a JSON error without leaking internals.
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	WriteJSON(w, apperrors.HTTPStatus(err), map[string]string{
		"error":   string(code),
		"message": apperrors.PublicMessage(err),
	})
}

// readBody reads at most limit bytes of the request body. A larger body yields a 413-mapped error.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	return raw, nil
}

var errBodyTooLarge = errors.New("request body too large")

// decodePushBody interprets a push payload. JSON is decoded as-is; any other non-empty
// text is carried as a JSON string so rules can still reference {{body}}. An empty body is null.
func decodePushBody(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	var body any
	if err := json.Unmarshal(trimmed, &body); err == nil {
		return body
	}
	return string(raw)
}

// decodeJSONBody requires a well-formed JSON document.
func decodeJSONBody(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrInvalidJSONBody
	}
	var body any
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return nil, ErrInvalidJSONBody
	}
	return body, nil
}

// pathID returns the trimmed path value for name.
func pathID(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}
