package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited reports that every attempt ended in HTTP 429.
	ErrRateLimited = errors.New("rate limited (429) after max attempts")
	// ErrNoListings reports a listing phase that produced no stubs.
	ErrNoListings = errors.New("no listings found")
	// ErrNoDescription reports a detail page without a usable description.
	ErrNoDescription = errors.New("could not extract job description (selectors failed)")
	// ErrMissingJobURL reports a listing card without a job link.
	ErrMissingJobURL = errors.New("missing job url")
)

// StatusError reports a non-success HTTP status on the final attempt.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d for %s", e.StatusCode, e.URL)
}

// FetchError wraps the last error of an exhausted fetch.
type FetchError struct {
	URL           string
	Attempts      int
	StatusHistory []int
	Err           error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FailureReason maps an error to the short reason recorded in the failure
// log. Reasons stay coarse so the report histogram groups them.
func FailureReason(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "unknown error"
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimited.Error()
	case errors.Is(err, ErrNoDescription):
		return ErrNoDescription.Error()
	case errors.Is(err, ErrMissingJobURL):
		return ErrMissingJobURL.Error()
	case errors.As(err, &statusErr):
		return fmt.Sprintf("http %d %s", statusErr.StatusCode, http.StatusText(statusErr.StatusCode))
	default:
		return "request error"
	}
}
