package ticketstore

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound reports a ticket the store does not know.
var ErrNotFound = errors.New("ticketstore: ticket not found")

// APIError is a non-2xx answer from the help desk API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ticket store %s %s failed (%d): %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}
