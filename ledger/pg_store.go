package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tagstack/billingcore/pkg/pg"
	"github.com/tagstack/billingcore/tier"
)

// PGStore is the Postgres-backed Store. The increment is a single
// conditional UPDATE so the database serializes concurrent consumers; the
// affected-row count is the admission decision.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a pgx pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// activeStatuses are the subscription states that grant quota.
var activeStatuses = []string{"active", "trialing"}

// Get implements Store.
func (s *PGStore) Get(ctx context.Context, userID uuid.UUID, feature tier.Feature) (*TierLimit, error) {
	const q = `
		SELECT tl.id, tl.subscription_id, tl.feature,
		       tl.create_limit, tl.update_limit, tl.delete_limit,
		       tl.create_usage, tl.update_usage, tl.delete_usage
		FROM tier_limits tl
		JOIN subscriptions s ON s.id = tl.subscription_id
		WHERE s.user_id = $1 AND tl.feature = $2 AND s.status = ANY($3)
		LIMIT 1`

	var row TierLimit
	err := s.pool.QueryRow(ctx, q, userID, string(feature), activeStatuses).Scan(
		&row.ID, &row.SubscriptionID, &row.Feature,
		&row.CreateLimit, &row.UpdateLimit, &row.DeleteLimit,
		&row.CreateUsage, &row.UpdateUsage, &row.DeleteUsage,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNoActiveLimit
		}
		return nil, err
	}

	return &row, nil
}

// usageColumns maps an operation to its usage/limit column pair. Columns are
// interpolated from this fixed table, never from caller input.
var usageColumns = map[Operation][2]string{
	OpCreate: {"create_usage", "create_limit"},
	OpUpdate: {"update_usage", "update_limit"},
	OpDelete: {"delete_usage", "delete_limit"},
}

// TryIncrement implements Store.
func (s *PGStore) TryIncrement(ctx context.Context, tierLimitID uuid.UUID, op Operation) (bool, error) {
	cols, ok := usageColumns[op]
	if !ok {
		return false, ErrInvalidOperation
	}

	q := fmt.Sprintf(
		`UPDATE tier_limits SET %[1]s = %[1]s + 1 WHERE id = $1 AND %[1]s + 1 <= %[2]s`,
		cols[0], cols[1])

	tag, err := s.pool.Exec(ctx, q, tierLimitID)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// ResetUsage implements Store. Delete usage is intentionally preserved across
// billing periods.
func (s *PGStore) ResetUsage(ctx context.Context, subscriptionID uuid.UUID) error {
	const q = `UPDATE tier_limits SET create_usage = 0, update_usage = 0 WHERE subscription_id = $1`
	_, err := s.pool.Exec(ctx, q, subscriptionID)
	return err
}
