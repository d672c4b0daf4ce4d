package gapi

import "context"

// Limiter caps the number of in-flight external calls across the whole
// process, independent of any per-user rate limiting. It is a buffered
// channel semaphore; acquisition respects context cancellation so a stuck
// caller never leaks a slot wait.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter creates a limiter admitting at most maxConcurrent calls.
// Non-positive values fall back to a single slot.
func NewLimiter(maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{slots: make(chan struct{}, maxConcurrent)}
}

// Acquire blocks until a slot is free or the context is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a previously acquired slot.
func (l *Limiter) Release() {
	select {
	case <-l.slots:
	default:
		// Release without Acquire is a programming error; dropping it is
		// safer than blocking.
	}
}
