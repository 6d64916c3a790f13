package materialize

import (
	"fmt"
	"io"
	"net/http"

	"github.com/annoframe/materialize-go/errors"
)

// maxErrorBody caps how much of an error response body is retained
const maxErrorBody = 64 << 10

// HTTPError is returned for any non-2xx response. It carries the status
// code, the request URL and the response body; no retries happen at this
// layer.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request to %s failed: %s", e.URL, e.Status)
	}
	return fmt.Sprintf("request to %s failed: %s: %s", e.URL, e.Status, e.Body)
}

// IsNotFound reports whether the server answered 404
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsAuthError reports whether the server rejected the credentials
func (e *HTTPError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// AsHTTPError unwraps err to an *HTTPError if one is in the chain
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// checkResponse converts a non-2xx response into an *HTTPError, reading
// (a bounded amount of) the body for diagnostics
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		URL:        resp.Request.URL.String(),
		Body:       string(body),
	}

	// Mark auth and not-found failures so callers can use errors.Is
	// without losing the *HTTPError in the chain
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Mark(httpErr, errors.ErrUnauthorized)
	case http.StatusNotFound:
		return errors.Mark(httpErr, errors.ErrNotFound)
	default:
		return httpErr
	}
}
