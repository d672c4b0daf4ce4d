package ledger_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagstack/billingcore/gapi"
	"github.com/tagstack/billingcore/ledger"
	"github.com/tagstack/billingcore/tier"
)

func TestService_CheckLimit(t *testing.T) {
	t.Parallel()

	t.Run("reports remaining capacity", func(t *testing.T) {
		t.Parallel()

		store := ledger.NewMemoryStore()
		userID := uuid.New()
		seedLimit(t, store, userID, tier.FeatureGTMTags, 10, 4)

		svc := ledger.NewService(store)
		q, err := svc.CheckLimit(context.Background(), userID, tier.FeatureGTMTags, ledger.OpCreate)
		require.NoError(t, err)

		assert.Equal(t, int64(10), q.Limit)
		assert.Equal(t, int64(4), q.Usage)
		assert.Equal(t, int64(6), q.Available)
		assert.False(t, q.LimitReached)
	})

	t.Run("no active subscription means no capacity", func(t *testing.T) {
		t.Parallel()

		svc := ledger.NewService(ledger.NewMemoryStore())
		q, err := svc.CheckLimit(context.Background(), uuid.New(), tier.FeatureGTMTags, ledger.OpCreate)
		require.NoError(t, err)

		assert.True(t, q.LimitReached)
		assert.Zero(t, q.Available)
	})

	t.Run("exhausted axis", func(t *testing.T) {
		t.Parallel()

		store := ledger.NewMemoryStore()
		userID := uuid.New()
		seedLimit(t, store, userID, tier.FeatureGA4KeyEvents, 10, 10)

		svc := ledger.NewService(store)
		q, err := svc.CheckLimit(context.Background(), userID, tier.FeatureGA4KeyEvents, ledger.OpUpdate)
		require.NoError(t, err)

		assert.True(t, q.LimitReached)
		assert.Zero(t, q.Available)
	})

	t.Run("invalid inputs", func(t *testing.T) {
		t.Parallel()

		svc := ledger.NewService(ledger.NewMemoryStore())

		_, err := svc.CheckLimit(context.Background(), uuid.New(), tier.FeatureGTMTags, ledger.Operation("drop"))
		assert.ErrorIs(t, err, ledger.ErrInvalidOperation)

		_, err = svc.CheckLimit(context.Background(), uuid.New(), tier.Feature("bogus"), ledger.OpCreate)
		assert.ErrorIs(t, err, ledger.ErrInvalidFeature)
	})
}

func TestExecute_RejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore()
	userID := uuid.New()
	seedLimit(t, store, userID, tier.FeatureGTMTags, 10, 7) // 3 slots left

	svc := ledger.NewService(store)

	var calls atomic.Int64
	items := batchItems("tag", 5)

	res, err := ledger.Execute(context.Background(), svc, userID, tier.FeatureGTMTags, ledger.OpCreate, items,
		func(context.Context, string) error {
			calls.Add(1)
			return nil
		})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.LimitReached)
	assert.Equal(t, "cannot create 5 GTMTags: 3 of 10 slots available", res.Message)
	assert.Empty(t, res.Results)

	// An oversized batch must never reach the external API.
	assert.Zero(t, calls.Load())

	row, err := store.Get(context.Background(), userID, tier.FeatureGTMTags)
	require.NoError(t, err)
	assert.Equal(t, int64(7), row.CreateUsage)
}

func TestExecute_EmptyBatch(t *testing.T) {
	t.Parallel()

	svc := ledger.NewService(ledger.NewMemoryStore())
	_, err := ledger.Execute(context.Background(), svc, uuid.New(), tier.FeatureGTMTags, ledger.OpCreate,
		nil, func(context.Context, string) error { return nil })
	assert.ErrorIs(t, err, ledger.ErrEmptyBatch)
}

func TestExecute_AllSucceed(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore()
	userID := uuid.New()
	seedLimit(t, store, userID, tier.FeatureGTMTriggers, 10, 0)

	svc := ledger.NewService(store)

	res, err := ledger.Execute(context.Background(), svc, userID, tier.FeatureGTMTriggers, ledger.OpCreate,
		batchItems("trigger", 4), func(context.Context, string) error { return nil })
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.LimitReached)
	assert.Empty(t, res.Message)
	require.Len(t, res.Results, 4)
	assert.Equal(t, 4, res.Succeeded())
	for i, item := range res.Results {
		assert.True(t, item.Success, "item %d", i)
	}

	row, err := store.Get(context.Background(), userID, tier.FeatureGTMTriggers)
	require.NoError(t, err)
	assert.Equal(t, int64(4), row.CreateUsage)
}

// Items fail independently: missing remote objects do not block their
// siblings and are not charged against the ledger.
func TestExecute_PartialFailure(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore()
	userID := uuid.New()
	seedLimit(t, store, userID, tier.FeatureGA4CustomDimensions, 10, 0)

	svc := ledger.NewService(store)

	res, err := ledger.Execute(context.Background(), svc, userID, tier.FeatureGA4CustomDimensions, ledger.OpUpdate,
		batchItems("audience", 5), func(_ context.Context, name string) error {
			switch name {
			case "audience-1", "audience-3":
				return gapi.ErrNotFound
			case "audience-4":
				return errors.New("backend error")
			}
			return nil
		})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.NotFoundError)
	assert.False(t, res.LimitReached)
	assert.Equal(t, "2 succeeded, 3 failed", res.Message)
	require.Len(t, res.Results, 5)

	assert.True(t, res.Results[0].Success)
	assert.True(t, res.Results[1].NotFound)
	assert.True(t, res.Results[2].Success)
	assert.True(t, res.Results[3].NotFound)
	assert.False(t, res.Results[4].Success)
	assert.False(t, res.Results[4].NotFound)
	assert.NotEmpty(t, res.Results[4].Error)

	// Only the two confirmed creations count.
	row, err := store.Get(context.Background(), userID, tier.FeatureGA4CustomDimensions)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row.UpdateUsage)
}

func TestExecute_RemoteFeatureLimit(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore()
	userID := uuid.New()
	seedLimit(t, store, userID, tier.FeatureGTMVariables, 10, 0)

	svc := ledger.NewService(store)

	res, err := ledger.Execute(context.Background(), svc, userID, tier.FeatureGTMVariables, ledger.OpCreate,
		batchItems("var", 2), func(_ context.Context, name string) error {
			if name == "var-1" {
				return gapi.ErrFeatureLimitReached
			}
			return nil
		})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.LimitReached)
	assert.True(t, res.Results[1].LimitReached)
	assert.True(t, res.Results[0].Success)
}

// A batch that passes the up-front check can still lose the last slot to a
// concurrent writer. The item is reported as limit reached instead of
// overshooting the ledger.
func TestExecute_LostAdmissionRace(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore()
	userID := uuid.New()
	id := seedLimit(t, store, userID, tier.FeatureGTMTags, 1, 0)

	svc := ledger.NewService(store)

	res, err := ledger.Execute(context.Background(), svc, userID, tier.FeatureGTMTags, ledger.OpCreate,
		batchItems("tag", 1), func(ctx context.Context, _ string) error {
			// A concurrent batch takes the slot between the pre-check and
			// this item's settlement.
			ok, err := store.TryIncrement(ctx, id, ledger.OpCreate)
			if err != nil || !ok {
				return errors.New("test setup: could not consume slot")
			}
			return nil
		})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.LimitReached)
	require.Len(t, res.Results, 1)
	assert.True(t, res.Results[0].LimitReached)
	assert.False(t, res.Results[0].Success)

	row, err := store.Get(context.Background(), userID, tier.FeatureGTMTags)
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.CreateUsage)
}

func batchItems(prefix string, n int) []ledger.BatchItem[string] {
	items := make([]ledger.BatchItem[string], n)
	for i := range items {
		name := prefix + "-" + string(rune('0'+i))
		items[i] = ledger.BatchItem[string]{Name: name, Payload: name}
	}
	return items
}
