package api

import (
	"errors"
	"fmt"
)

// maxPreview bounds the response body excerpt carried in diagnostics.
const maxPreview = 200

var (
	// ErrNetwork means the server could not be reached after every retry.
	ErrNetwork = errors.New("network error: could not connect to the server")

	// ErrBadResponse means the server answered 2xx but the body was not the
	// JSON document the client expected (often a proxy error page).
	ErrBadResponse = errors.New("unexpected response from server")
)

// ServerError is returned for any non-2xx HTTP status. It is never retried.
type ServerError struct {
	Status     int
	StatusText string
	URL        string
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned an error: %d %s. URL: %s Response: %s",
		e.Status, e.StatusText, e.URL, preview(e.Body))
}

// IsServerError reports whether err carries an HTTP status and returns it.
func IsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func preview(body string) string {
	if len(body) <= maxPreview {
		return body
	}
	return body[:maxPreview]
}
