package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/tagstack/billingcore/tier"
)

// Store is the persistence contract for tier limit rows.
//
// TryIncrement must be implemented as a single atomic conditional update
// (UPDATE ... SET usage = usage + 1 WHERE usage + 1 <= limit); the reported
// boolean is the admission decision. A read-then-increment implementation is
// incorrect: two concurrent requests would both observe free capacity and
// overshoot the limit.
type Store interface {
	// Get returns the tier limit row for the user's active subscription and
	// the named feature. Returns ErrNoActiveLimit when no row exists.
	Get(ctx context.Context, userID uuid.UUID, feature tier.Feature) (*TierLimit, error)

	// TryIncrement atomically consumes one slot on the given axis.
	// Returns false without error when the limit is exhausted.
	TryIncrement(ctx context.Context, tierLimitID uuid.UUID, op Operation) (bool, error)

	// ResetUsage zeroes the create and update usage counters for every tier
	// limit under the subscription. Delete usage is left untouched.
	ResetUsage(ctx context.Context, subscriptionID uuid.UUID) error
}
