package gapi

import (
	"net/http"
	"strings"
)

// featureLimitMarker is the message Google APIs put in 403 bodies when a
// container or property has hit its object quota.
const featureLimitMarker = "feature limit reached"

// ClassifyStatus maps a non-2xx response to the package error taxonomy.
// Returns nil for 2xx codes.
func ClassifyStatus(statusCode int, body string) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case statusCode == http.StatusNotFound:
		return ErrNotFound
	case statusCode == http.StatusForbidden &&
		strings.Contains(strings.ToLower(body), featureLimitMarker):
		return ErrFeatureLimitReached
	default:
		return &RemoteError{StatusCode: statusCode, Body: body}
	}
}
