package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tagstack/billingcore/tier"
)

// QuotaCache is a best-effort read-through cache for quota lookups, keyed by
// "feature:userID". It is never a source of truth: staleness is acceptable
// for minutes, so every error degrades to a cache miss, and mutations delete
// the key rather than rewrite it.
type QuotaCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// DefaultQuotaTTL bounds how stale a cached quota may get.
const DefaultQuotaTTL = 5 * time.Minute

// NewQuotaCache wraps a Redis client. A zero ttl falls back to DefaultQuotaTTL.
func NewQuotaCache(client redis.UniversalClient, ttl time.Duration) *QuotaCache {
	if ttl <= 0 {
		ttl = DefaultQuotaTTL
	}
	return &QuotaCache{client: client, ttl: ttl}
}

func quotaKey(feature tier.Feature, userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", feature, userID)
}

// Get returns the cached quota, or (nil, false) on miss or any error.
func (c *QuotaCache) Get(ctx context.Context, userID uuid.UUID, feature tier.Feature) (*Quota, bool) {
	raw, err := c.client.Get(ctx, quotaKey(feature, userID)).Bytes()
	if err != nil {
		return nil, false
	}

	var q Quota
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, false
	}
	return &q, true
}

// Set stores the quota with the configured TTL. Errors are ignored.
func (c *QuotaCache) Set(ctx context.Context, userID uuid.UUID, q *Quota) {
	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, quotaKey(q.Feature, userID), raw, c.ttl).Err()
}

// Invalidate deletes the cached quotas for a user across the given features.
// Called after every mutation so the next read goes through to the store.
func (c *QuotaCache) Invalidate(ctx context.Context, userID uuid.UUID, features ...tier.Feature) {
	if len(features) == 0 {
		features = tier.Features()
	}
	keys := make([]string, len(features))
	for i, f := range features {
		keys[i] = quotaKey(f, userID)
	}
	_ = c.client.Del(ctx, keys...).Err()
}
