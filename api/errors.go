package api

import (
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
)

// ErrSessionExpired is returned by Client.Request when the backend rejected
// the token and a refresh could not replace it. Callers typically send the
// user back to the login screen.
var ErrSessionExpired = apperrors.ErrSessionExpired

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func newStatusError(status int, body []byte) *StatusError {
	return &StatusError{StatusCode: status, Message: responseMessage(body), Body: body}
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	}
	return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	return apperrors.ErrUnexpectedStatus
}
