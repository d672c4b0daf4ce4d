// Package gapi is a thin helper layer for calling the rate-limited Google
// Tag Manager and GA4 REST APIs.
//
// It contributes three things on top of net/http: a shared retry policy for
// HTTP 429 responses (exponential backoff with jitter), a per-item error
// taxonomy so batch callers can distinguish quota exhaustion from missing
// objects from generic failures, and a global concurrency limiter that caps
// in-flight external calls across all requests.
//
// Authentication is delegated to a TokenProvider, typically backed by an
// oauth2.TokenSource per user.
package gapi
