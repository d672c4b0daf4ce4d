package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagstack/billingcore/ledger"
	"github.com/tagstack/billingcore/tier"
)

func seedLimit(t *testing.T, store *ledger.MemoryStore, userID uuid.UUID, feature tier.Feature, limit, usage int64) uuid.UUID {
	t.Helper()
	return store.Seed(userID, ledger.TierLimit{
		Feature:     feature,
		CreateLimit: limit,
		UpdateLimit: limit,
		DeleteLimit: limit,
		CreateUsage: usage,
		UpdateUsage: usage,
		DeleteUsage: usage,
	})
}

func TestMemoryStore_TryIncrement(t *testing.T) {
	t.Parallel()

	t.Run("admits until limit then refuses", func(t *testing.T) {
		t.Parallel()

		store := ledger.NewMemoryStore()
		userID := uuid.New()
		id := seedLimit(t, store, userID, tier.FeatureGTMTriggers, 2, 0)

		ctx := context.Background()
		for range 2 {
			ok, err := store.TryIncrement(ctx, id, ledger.OpCreate)
			require.NoError(t, err)
			assert.True(t, ok)
		}

		ok, err := store.TryIncrement(ctx, id, ledger.OpCreate)
		require.NoError(t, err)
		assert.False(t, ok)

		row, err := store.Get(ctx, userID, tier.FeatureGTMTriggers)
		require.NoError(t, err)
		assert.Equal(t, int64(2), row.CreateUsage)
	})

	t.Run("unknown row", func(t *testing.T) {
		t.Parallel()

		store := ledger.NewMemoryStore()
		_, err := store.TryIncrement(context.Background(), uuid.New(), ledger.OpCreate)
		assert.ErrorIs(t, err, ledger.ErrNoActiveLimit)
	})
}

// Concurrent increments against a row with k free slots must admit exactly k
// callers; usage never exceeds the limit.
func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	t.Parallel()

	const (
		limit    = int64(10)
		usage    = int64(7) // k = 3 slots remain
		attempts = 25
	)

	store := ledger.NewMemoryStore()
	userID := uuid.New()
	id := seedLimit(t, store, userID, tier.FeatureGA4KeyEvents, limit, usage)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryIncrement(context.Background(), id, ledger.OpCreate)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, admitted)

	row, err := store.Get(context.Background(), userID, tier.FeatureGA4KeyEvents)
	require.NoError(t, err)
	assert.Equal(t, limit, row.CreateUsage)
}

func TestMemoryStore_ResetUsage(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore()
	subA, subB := uuid.New(), uuid.New()
	userA, userB := uuid.New(), uuid.New()

	store.Seed(userA, ledger.TierLimit{
		SubscriptionID: subA, Feature: tier.FeatureGTMTriggers,
		CreateLimit: 10, UpdateLimit: 10, DeleteLimit: 10,
		CreateUsage: 4, UpdateUsage: 5, DeleteUsage: 6,
	})
	store.Seed(userB, ledger.TierLimit{
		SubscriptionID: subB, Feature: tier.FeatureGTMTriggers,
		CreateLimit: 10, UpdateLimit: 10, DeleteLimit: 10,
		CreateUsage: 1, UpdateUsage: 2, DeleteUsage: 3,
	})

	require.NoError(t, store.ResetUsage(context.Background(), subA))

	rowA, err := store.Get(context.Background(), userA, tier.FeatureGTMTriggers)
	require.NoError(t, err)
	assert.Zero(t, rowA.CreateUsage)
	assert.Zero(t, rowA.UpdateUsage)
	// Delete usage survives a billing rollover.
	assert.Equal(t, int64(6), rowA.DeleteUsage)

	// Other subscriptions are untouched.
	rowB, err := store.Get(context.Background(), userB, tier.FeatureGTMTriggers)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rowB.CreateUsage)
	assert.Equal(t, int64(2), rowB.UpdateUsage)
	assert.Equal(t, int64(3), rowB.DeleteUsage)
}
