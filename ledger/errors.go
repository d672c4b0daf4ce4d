package ledger

import "errors"

var (
	ErrNoActiveLimit    = errors.New("ledger: no tier limit for user and feature")
	ErrInvalidOperation = errors.New("ledger: invalid operation")
	ErrInvalidFeature   = errors.New("ledger: unknown feature")
	ErrEmptyBatch       = errors.New("ledger: empty batch")
	ErrStoreFailure     = errors.New("ledger: store failure")
)
