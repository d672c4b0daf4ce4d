package reconciler

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tagstack/billingcore/pkg/pg"
	"github.com/tagstack/billingcore/tier"
)

// PGStore is the Postgres-backed Store. Upserts use ON CONFLICT against the
// immutable keys; cascades run inside a single transaction so a failed step
// rolls everything back.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a pgx pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// UserIDByCustomer implements Store.
func (s *PGStore) UserIDByCustomer(ctx context.Context, customerID string) (uuid.UUID, error) {
	const q = `SELECT user_id FROM customers WHERE id = $1`

	var userID uuid.UUID
	if err := s.pool.QueryRow(ctx, q, customerID).Scan(&userID); err != nil {
		if pg.IsNotFoundError(err) {
			return uuid.Nil, ErrUnknownCustomer
		}
		return uuid.Nil, err
	}
	return userID, nil
}

// UpsertProduct implements Store.
func (s *PGStore) UpsertProduct(ctx context.Context, p Product) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO products (id, active, name, metadata, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET active = EXCLUDED.active, name = EXCLUDED.name,
		    metadata = EXCLUDED.metadata, updated_at = now()`

	_, err = s.pool.Exec(ctx, q, p.ID, p.Active, p.Name, metadata)
	return err
}

// DeleteProductCascade implements Store.
func (s *PGStore) DeleteProductCascade(ctx context.Context, productID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		statements := []string{
			`DELETE FROM tier_limits WHERE subscription_id IN
			   (SELECT id FROM subscriptions WHERE product_id = $1)`,
			`DELETE FROM tier_feature_limits WHERE product_id = $1`,
			`DELETE FROM prices WHERE product_id = $1`,
			`DELETE FROM products WHERE id = $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, productID); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertPrice implements Store.
func (s *PGStore) UpsertPrice(ctx context.Context, p Price) error {
	const q = `
		INSERT INTO prices (id, product_id, unit_amount, currency, recurring_interval, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE
		SET product_id = EXCLUDED.product_id, unit_amount = EXCLUDED.unit_amount,
		    currency = EXCLUDED.currency, recurring_interval = EXCLUDED.recurring_interval,
		    active = EXCLUDED.active, updated_at = now()`

	_, err := s.pool.Exec(ctx, q, p.ID, p.ProductID, p.UnitAmount, p.Currency, p.Interval, p.Active)
	return err
}

// ReplaceFeatureLimits implements Store. Features absent from the new table
// are deleted in the same transaction, so a YAML-overridden tier that drops
// a feature leaves no stale row behind.
func (s *PGStore) ReplaceFeatureLimits(ctx context.Context, productID string, limits map[tier.Feature]tier.Limits) error {
	const q = `
		INSERT INTO tier_feature_limits (product_id, feature, create_limit, update_limit, delete_limit)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, feature) DO UPDATE
		SET create_limit = EXCLUDED.create_limit,
		    update_limit = EXCLUDED.update_limit,
		    delete_limit = EXCLUDED.delete_limit`

	features := make([]string, 0, len(limits))
	for f := range limits {
		features = append(features, string(f))
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM tier_feature_limits WHERE product_id = $1 AND feature != ALL($2)`,
			productID, features); err != nil {
			return err
		}
		for f, l := range limits {
			if _, err := tx.Exec(ctx, q, productID, string(f), l.Create, l.Update, l.Delete); err != nil {
				return err
			}
		}
		return nil
	})
}

// FeatureLimits implements Store.
func (s *PGStore) FeatureLimits(ctx context.Context, productID string) (map[tier.Feature]tier.Limits, error) {
	const q = `
		SELECT feature, create_limit, update_limit, delete_limit
		FROM tier_feature_limits WHERE product_id = $1`

	rows, err := s.pool.Query(ctx, q, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[tier.Feature]tier.Limits)
	for rows.Next() {
		var feature string
		var l tier.Limits
		if err := rows.Scan(&feature, &l.Create, &l.Update, &l.Delete); err != nil {
			return nil, err
		}
		out[tier.Feature(feature)] = l
	}
	return out, rows.Err()
}

// UpsertSubscription implements Store. A plan change keeps the Stripe
// subscription id but lands on a new (user, product) pair, which misses the
// conflict target and trips the stripe_id unique constraint instead; that
// case rekeys the existing row so the local id and its tier limits survive.
func (s *PGStore) UpsertSubscription(ctx context.Context, sub Subscription) (uuid.UUID, error) {
	const q = `
		INSERT INTO subscriptions (user_id, product_id, stripe_id, status,
		    current_period_start, current_period_end, cancel_at_period_end,
		    canceled_at, trial_start, trial_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET stripe_id = EXCLUDED.stripe_id, status = EXCLUDED.status,
		    current_period_start = EXCLUDED.current_period_start,
		    current_period_end = EXCLUDED.current_period_end,
		    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		    canceled_at = EXCLUDED.canceled_at,
		    trial_start = EXCLUDED.trial_start, trial_end = EXCLUDED.trial_end,
		    updated_at = now()
		RETURNING id`

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, q,
		sub.UserID, sub.ProductID, sub.StripeID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.CanceledAt, sub.TrialStart, sub.TrialEnd,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !pg.IsDuplicateKeyError(err) {
		return uuid.Nil, err
	}

	const qRekey = `
		UPDATE subscriptions
		SET user_id = $1, product_id = $2, status = $4,
		    current_period_start = $5, current_period_end = $6,
		    cancel_at_period_end = $7, canceled_at = $8,
		    trial_start = $9, trial_end = $10, updated_at = now()
		WHERE stripe_id = $3
		RETURNING id`

	err = s.pool.QueryRow(ctx, qRekey,
		sub.UserID, sub.ProductID, sub.StripeID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		sub.CanceledAt, sub.TrialStart, sub.TrialEnd,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// SyncTierLimits implements Store. Replays and limit refreshes never reset
// counters: usage starts at zero only in the INSERT arm, and the update arm
// clamps each counter to its refreshed limit so a plan downgrade below
// current usage keeps usage <= limit instead of tripping the CHECK
// constraint.
func (s *PGStore) SyncTierLimits(ctx context.Context, subscriptionID uuid.UUID, limits map[tier.Feature]tier.Limits) error {
	const q = `
		INSERT INTO tier_limits (subscription_id, feature,
		    create_limit, update_limit, delete_limit,
		    create_usage, update_usage, delete_usage)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0)
		ON CONFLICT (subscription_id, feature) DO UPDATE
		SET create_limit = EXCLUDED.create_limit,
		    update_limit = EXCLUDED.update_limit,
		    delete_limit = EXCLUDED.delete_limit,
		    create_usage = LEAST(tier_limits.create_usage, EXCLUDED.create_limit),
		    update_usage = LEAST(tier_limits.update_usage, EXCLUDED.update_limit),
		    delete_usage = LEAST(tier_limits.delete_usage, EXCLUDED.delete_limit)`

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for f, l := range limits {
			if _, err := tx.Exec(ctx, q, subscriptionID, string(f), l.Create, l.Update, l.Delete); err != nil {
				return err
			}
		}
		return nil
	})
}

// SubscriptionIDByStripeID implements Store.
func (s *PGStore) SubscriptionIDByStripeID(ctx context.Context, stripeSubID string) (uuid.UUID, error) {
	const q = `SELECT id FROM subscriptions WHERE stripe_id = $1`

	var id uuid.UUID
	if err := s.pool.QueryRow(ctx, q, stripeSubID).Scan(&id); err != nil {
		if pg.IsNotFoundError(err) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

// UpsertInvoice implements Store.
func (s *PGStore) UpsertInvoice(ctx context.Context, inv Invoice) error {
	const q = `
		INSERT INTO invoices (id, user_id, stripe_sub_id, status, amount_due,
		    amount_paid, currency, hosted_invoice_url, invoice_pdf, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, amount_due = EXCLUDED.amount_due,
		    amount_paid = EXCLUDED.amount_paid,
		    hosted_invoice_url = EXCLUDED.hosted_invoice_url,
		    invoice_pdf = EXCLUDED.invoice_pdf, updated_at = now()`

	_, err := s.pool.Exec(ctx, q, inv.ID, inv.UserID, inv.StripeSubID, inv.Status,
		inv.AmountDue, inv.AmountPaid, inv.Currency, inv.HostedInvoiceURL, inv.InvoicePDF)
	return err
}

// UpsertCheckoutSession implements Store. Sessions that produced a
// subscription are keyed by the subscription id, so a replayed event with a
// regenerated session id still converges to one row.
func (s *PGStore) UpsertCheckoutSession(ctx context.Context, cs CheckoutSession) error {
	if cs.StripeSubID != "" {
		const q = `
			INSERT INTO checkout_sessions (id, user_id, stripe_sub_id, status, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (stripe_sub_id) DO UPDATE
			SET id = EXCLUDED.id, status = EXCLUDED.status, updated_at = now()`
		_, err := s.pool.Exec(ctx, q, cs.ID, cs.UserID, cs.StripeSubID, cs.Status)
		return err
	}

	const q = `
		INSERT INTO checkout_sessions (id, user_id, stripe_sub_id, status, updated_at)
		VALUES ($1, $2, NULL, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = now()`
	_, err := s.pool.Exec(ctx, q, cs.ID, cs.UserID, cs.Status)
	return err
}

// GrantProductAccess implements Store.
func (s *PGStore) GrantProductAccess(ctx context.Context, userID uuid.UUID, productID string) error {
	const q = `
		INSERT INTO product_access (user_id, product_id, granted)
		VALUES ($1, $2, true)
		ON CONFLICT (user_id, product_id) DO UPDATE SET granted = true`

	_, err := s.pool.Exec(ctx, q, userID, productID)
	return err
}

// DeleteCustomerCascade implements Store.
func (s *PGStore) DeleteCustomerCascade(ctx context.Context, customerID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var userID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT user_id FROM customers WHERE id = $1`, customerID).Scan(&userID)
		if err != nil {
			if pg.IsNotFoundError(err) {
				return nil // already gone; cascade is idempotent
			}
			return err
		}

		statements := []string{
			`DELETE FROM invoices WHERE user_id = $1`,
			`DELETE FROM checkout_sessions WHERE user_id = $1`,
			`DELETE FROM tier_limits WHERE subscription_id IN
			   (SELECT id FROM subscriptions WHERE user_id = $1)`,
			`DELETE FROM subscriptions WHERE user_id = $1`,
			`DELETE FROM product_access WHERE user_id = $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt, userID); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
		return err
	})
}
