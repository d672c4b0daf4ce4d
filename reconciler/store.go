package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tagstack/billingcore/tier"
)

// Product mirrors a Stripe product.
type Product struct {
	ID       string
	Active   bool
	Name     string
	Metadata map[string]string
}

// Price mirrors a Stripe price, linked to its product.
type Price struct {
	ID         string
	ProductID  string
	UnitAmount int64
	Currency   string
	Interval   string
	Active     bool
}

// Subscription is the local record of one billing relationship.
// Keyed by (UserID, ProductID); StripeID is the Stripe subscription id.
type Subscription struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	ProductID          string
	StripeID           string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
}

// Invoice is the local record of a Stripe invoice.
type Invoice struct {
	ID               string
	UserID           uuid.UUID
	StripeSubID      string
	Status           string
	AmountDue        int64
	AmountPaid       int64
	Currency         string
	HostedInvoiceURL string
	InvoicePDF       string
}

// CheckoutSession is the local record of a completed checkout, keyed by the
// Stripe subscription id it produced.
type CheckoutSession struct {
	ID          string
	UserID      uuid.UUID
	StripeSubID string
	Status      string
}

// Store is the persistence contract for the reconciler. Every write is an
// upsert keyed by an immutable identifier; cascade deletes are transactional,
// all-or-nothing.
type Store interface {
	// UserIDByCustomer maps a Stripe customer id to the local user.
	// Returns ErrUnknownCustomer when no mapping exists.
	UserIDByCustomer(ctx context.Context, customerID string) (uuid.UUID, error)

	// UpsertProduct creates or updates a product keyed by its Stripe id.
	UpsertProduct(ctx context.Context, p Product) error

	// DeleteProductCascade removes the product's tier feature limits, the
	// tier limits built from them, its prices, then the product itself, in
	// one transaction.
	DeleteProductCascade(ctx context.Context, productID string) error

	// UpsertPrice creates or updates a price keyed by its Stripe id.
	UpsertPrice(ctx context.Context, p Price) error

	// ReplaceFeatureLimits replaces the product's tier feature limit rows:
	// one upsert per entry keyed by (product, feature), and features absent
	// from the table are deleted, all in one transaction.
	ReplaceFeatureLimits(ctx context.Context, productID string, limits map[tier.Feature]tier.Limits) error

	// FeatureLimits returns the default limits configured for a product.
	FeatureLimits(ctx context.Context, productID string) (map[tier.Feature]tier.Limits, error)

	// UpsertSubscription creates or updates a subscription keyed by
	// (UserID, ProductID) and returns the local subscription id.
	UpsertSubscription(ctx context.Context, s Subscription) (uuid.UUID, error)

	// SyncTierLimits upserts one tier limit row per entry under the
	// subscription: limits are refreshed from the defaults, usage starts at
	// zero on insert and is preserved on update, clamped to the new limit
	// when a downgrade lands below current usage.
	SyncTierLimits(ctx context.Context, subscriptionID uuid.UUID, limits map[tier.Feature]tier.Limits) error

	// SubscriptionIDByStripeID resolves a Stripe subscription id to the
	// local subscription id. Returns ErrNotFound when unknown.
	SubscriptionIDByStripeID(ctx context.Context, stripeSubID string) (uuid.UUID, error)

	// UpsertInvoice creates or updates an invoice keyed by its Stripe id.
	UpsertInvoice(ctx context.Context, inv Invoice) error

	// UpsertCheckoutSession creates or updates a checkout session keyed by
	// its Stripe subscription id.
	UpsertCheckoutSession(ctx context.Context, cs CheckoutSession) error

	// GrantProductAccess marks the (user, product) grant as given.
	GrantProductAccess(ctx context.Context, userID uuid.UUID, productID string) error

	// DeleteCustomerCascade removes every record owned by the customer's
	// user (invoices, checkout sessions, subscriptions with their tier
	// limits, product access grants) and the customer mapping itself, in one
	// transaction.
	DeleteCustomerCascade(ctx context.Context, customerID string) error
}
