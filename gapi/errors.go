package gapi

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited maps HTTP 429. Transient; the client retries with backoff.
	ErrRateLimited = errors.New("gapi: rate limit exceeded")

	// ErrFeatureLimitReached maps HTTP 403 with the remote "Feature limit
	// reached" message. Terminal for the item; distinct from the local ledger
	// check.
	ErrFeatureLimitReached = errors.New("gapi: feature limit reached")

	// ErrNotFound maps HTTP 404: the object is missing or the caller has no
	// permission to see it. Surfaced to users as an access-check prompt.
	ErrNotFound = errors.New("gapi: not found or permission denied")

	// ErrTokenMissing is returned by token providers when the user has no
	// stored Google OAuth grant.
	ErrTokenMissing = errors.New("gapi: token missing")

	// ErrLimiterClosed is returned when acquiring a slot on a closed limiter.
	ErrLimiterClosed = errors.New("gapi: limiter closed")
)

// RemoteError wraps any non-2xx response that did not classify into one of
// the sentinel errors above.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("gapi: remote error: status %d: %s", e.StatusCode, e.Body)
}
