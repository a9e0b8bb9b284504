package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoRefreshToken reports a refresh attempt with nothing to
	// exchange. The Coordinator fails immediately without a network
	// call when the store holds no refresh token.
	ErrNoRefreshToken = errors.New("authsdk: no refresh token stored")

	// ErrNotSignedIn reports an operation that requires an active
	// session.
	ErrNotSignedIn = errors.New("authsdk: not signed in")
)

// APIError is a structured error payload returned by the backend.
// It implements the error interface.
type APIError struct {
	// StatusCode is the HTTP status the backend responded with.
	StatusCode int `json:"-"`

	// Code is the backend's machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// parseErrorResponse converts a non-2xx response into a typed error.
// Bodies that are not the backend's error shape fall back to a bare
// status-code error.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var payload APIError
	if err := json.Unmarshal(body, &payload); err == nil && payload.Code != "" {
		payload.StatusCode = resp.StatusCode
		return &payload
	}

	return &APIError{StatusCode: resp.StatusCode}
}
