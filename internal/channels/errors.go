package channels

import (
	"errors"
	"fmt"

	"github.com/target/pushgate/internal/domain/model"
)

// ErrUnknownChannelType is returned by ForType for a type outside the closed enum.
var ErrUnknownChannelType = errors.New("unknown channel type")

// DispatchError reports a provider that rejected the message, failed at the
// HTTP level or did not answer in time. It is retryable.
type DispatchError struct {
	Provider   model.ChannelType
	StatusCode int    // HTTP status, 0 when the request never completed
	Code       string // provider error code from a 2xx body, if any
	Body       string // truncated response body or provider message
	Err        error
}

func (e *DispatchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s: error code %s: %s", e.Provider, e.Code, e.Body)
	default:
		return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, e.Body)
	}
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ErrorClass tags metrics by how the provider failed.
func (e *DispatchError) ErrorClass() string {
	switch {
	case e.Code != "":
		return "provider_rejected"
	case e.StatusCode >= 500:
		return "provider_5xx"
	case e.StatusCode >= 400:
		return "provider_4xx"
	case e.StatusCode > 0:
		return "provider_http"
	default:
		// Timeouts and transport failures are classified from the wrapped error.
		return ""
	}
}

// CredentialError reports a channel missing a credential its provider needs.
// It is raised before any network call.
type CredentialError struct {
	Provider model.ChannelType
	Field    string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s: missing credential %s", e.Provider, e.Field)
}

func (e *CredentialError) ErrorClass() string { return "missing_credential" }
