package reconciler

import "errors"

var (
	ErrUnknownCustomer = errors.New("reconciler: no user for stripe customer")
	ErrMalformedEvent  = errors.New("reconciler: malformed event payload")
	ErrUnhandledEvent  = errors.New("reconciler: listed event type has no handler")
	ErrMissingProduct  = errors.New("reconciler: subscription carries no product")
	ErrStoreFailure    = errors.New("reconciler: store failure")
	ErrProviderFailure = errors.New("reconciler: billing provider call failed")
	ErrNotFound        = errors.New("reconciler: record not found")
)
