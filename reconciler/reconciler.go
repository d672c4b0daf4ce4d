package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v72"

	"github.com/tagstack/billingcore/ledger"
	"github.com/tagstack/billingcore/pkg/logger"
	"github.com/tagstack/billingcore/tier"
)

// SubscriptionFetcher retrieves the live subscription from Stripe. Used when
// an event carries only a subscription reference (checkout sessions,
// invoices) and the full object is needed to upsert local state.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

// Reconciler applies Stripe events to the local store and ledger.
type Reconciler struct {
	store   Store
	ledger  *ledger.Service
	fetcher SubscriptionFetcher
	cache   *ledger.QuotaCache
	log     *slog.Logger
}

// Option configures optional Reconciler dependencies.
type Option func(*Reconciler)

// WithSubscriptionFetcher enables live subscription retrieval for checkout
// and invoice events.
func WithSubscriptionFetcher(f SubscriptionFetcher) Option {
	return func(r *Reconciler) { r.fetcher = f }
}

// WithQuotaCache lets invoice processing invalidate the user's cached quota
// entries after a billing rollover.
func WithQuotaCache(cache *ledger.QuotaCache) Option {
	return func(r *Reconciler) { r.cache = cache }
}

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// New creates a Reconciler. Panics on nil store or ledger service to fail
// fast during initialization.
func New(store Store, ledgerSvc *ledger.Service, opts ...Option) *Reconciler {
	if store == nil {
		panic("reconciler: Store is required")
	}
	if ledgerSvc == nil {
		panic("reconciler: ledger service is required")
	}

	r := &Reconciler{
		store:  store,
		ledger: ledgerSvc,
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process applies one event. Callers must have checked Relevant first;
// a listed type reaching the default arm is an error, not a silent skip.
func (r *Reconciler) Process(ctx context.Context, event stripe.Event) error {
	r.log.InfoContext(ctx, "processing billing event",
		logger.EventID(event.ID),
		logger.EventType(event.Type))

	switch event.Type {
	case EventProductCreated, EventProductUpdated:
		return r.applyProduct(ctx, event.Data.Raw)

	case EventProductDeleted:
		var p stripe.Product
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return errors.Join(ErrMalformedEvent, err)
		}
		return r.store.DeleteProductCascade(ctx, p.ID)

	case EventPriceCreated, EventPriceUpdated:
		return r.applyPrice(ctx, event.Data.Raw)

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return errors.Join(ErrMalformedEvent, err)
		}
		_, err := r.applySubscription(ctx, &sub)
		return err

	case EventCheckoutCompleted:
		return r.applyCheckoutSession(ctx, event.Data.Raw)

	case EventInvoiceCreated, EventInvoiceUpdated, EventInvoiceFinalized,
		EventInvoicePaymentSucceeded, EventInvoicePaymentFailed, EventInvoicePaid:
		return r.applyInvoice(ctx, event.Type, event.Data.Raw)

	case EventCustomerDeleted:
		var c stripe.Customer
		if err := json.Unmarshal(event.Data.Raw, &c); err != nil {
			return errors.Join(ErrMalformedEvent, err)
		}
		return r.store.DeleteCustomerCascade(ctx, c.ID)

	default:
		return ErrUnhandledEvent
	}
}

// applyProduct upserts the product and materializes its tier feature limits
// from the tier named in the product metadata. Unknown tiers create no
// limits, which blocks every gated operation for that product.
func (r *Reconciler) applyProduct(ctx context.Context, raw json.RawMessage) error {
	var p stripe.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}

	if err := r.store.UpsertProduct(ctx, Product{
		ID:       p.ID,
		Active:   p.Active,
		Name:     p.Name,
		Metadata: p.Metadata,
	}); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}

	t, ok := tier.FromMetadata(p.Metadata)
	if !ok {
		r.log.WarnContext(ctx, "product carries no known tier, skipping limits",
			logger.ProductID(p.ID))
		return nil
	}

	defaults, _ := tier.Defaults(t)
	if err := r.store.ReplaceFeatureLimits(ctx, p.ID, defaults); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (r *Reconciler) applyPrice(ctx context.Context, raw json.RawMessage) error {
	var p stripe.Price
	if err := json.Unmarshal(raw, &p); err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}
	if p.Product == nil {
		return ErrMissingProduct
	}

	price := Price{
		ID:         p.ID,
		ProductID:  p.Product.ID,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
		Active:     p.Active,
	}
	if p.Recurring != nil {
		price.Interval = string(p.Recurring.Interval)
	}

	if err := r.store.UpsertPrice(ctx, price); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

// applySubscription upserts the subscription keyed by (user, product) and
// syncs one tier limit per configured feature limit: limits refreshed from
// the product defaults, usage zero on insert and preserved on update.
// Returns the local subscription id.
func (r *Reconciler) applySubscription(ctx context.Context, sub *stripe.Subscription) (uuid.UUID, error) {
	if sub.Customer == nil {
		return uuid.Nil, ErrMalformedEvent
	}

	userID, err := r.store.UserIDByCustomer(ctx, sub.Customer.ID)
	if err != nil {
		return uuid.Nil, err
	}

	productID := subscriptionProductID(sub)
	if productID == "" {
		return uuid.Nil, ErrMissingProduct
	}

	record := Subscription{
		UserID:             userID,
		ProductID:          productID,
		StripeID:           sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         unixPtr(sub.CanceledAt),
		TrialStart:         unixPtr(sub.TrialStart),
		TrialEnd:           unixPtr(sub.TrialEnd),
	}

	localID, err := r.store.UpsertSubscription(ctx, record)
	if err != nil {
		return uuid.Nil, errors.Join(ErrStoreFailure, err)
	}

	limits, err := r.store.FeatureLimits(ctx, productID)
	if err != nil {
		return uuid.Nil, errors.Join(ErrStoreFailure, err)
	}
	if len(limits) > 0 {
		if err := r.store.SyncTierLimits(ctx, localID, limits); err != nil {
			return uuid.Nil, errors.Join(ErrStoreFailure, err)
		}
	}

	return localID, nil
}

func (r *Reconciler) applyCheckoutSession(ctx context.Context, raw json.RawMessage) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}
	if cs.Customer == nil {
		return ErrMalformedEvent
	}

	userID, err := r.store.UserIDByCustomer(ctx, cs.Customer.ID)
	if err != nil {
		return err
	}

	var stripeSubID string
	if cs.Subscription != nil {
		stripeSubID = cs.Subscription.ID

		// The session payload carries only a subscription reference; fetch
		// the live object so the local subscription exists even when the
		// customer.subscription.created event has not arrived yet.
		if r.fetcher != nil {
			sub, err := r.fetcher.FetchSubscription(ctx, stripeSubID)
			if err != nil {
				return errors.Join(ErrProviderFailure, err)
			}
			if _, err := r.applySubscription(ctx, sub); err != nil {
				return err
			}
		}
	}

	if err := r.store.UpsertCheckoutSession(ctx, CheckoutSession{
		ID:          cs.ID,
		UserID:      userID,
		StripeSubID: stripeSubID,
		Status:      string(cs.Status),
	}); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

// applyInvoice refreshes the subscription, records the invoice, grants
// product access per line item, drops the user's cached quotas, and on a
// terminal successful payment resets create/update usage for the new period.
func (r *Reconciler) applyInvoice(ctx context.Context, eventType string, raw json.RawMessage) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}
	if inv.Customer == nil {
		return ErrMalformedEvent
	}

	userID, err := r.store.UserIDByCustomer(ctx, inv.Customer.ID)
	if err != nil {
		return err
	}

	var stripeSubID string
	if inv.Subscription != nil {
		stripeSubID = inv.Subscription.ID

		if r.fetcher != nil {
			sub, err := r.fetcher.FetchSubscription(ctx, stripeSubID)
			if err != nil {
				return errors.Join(ErrProviderFailure, err)
			}
			if _, err := r.applySubscription(ctx, sub); err != nil {
				return err
			}
		}
	}

	if err := r.store.UpsertInvoice(ctx, Invoice{
		ID:               inv.ID,
		UserID:           userID,
		StripeSubID:      stripeSubID,
		Status:           string(inv.Status),
		AmountDue:        inv.AmountDue,
		AmountPaid:       inv.AmountPaid,
		Currency:         string(inv.Currency),
		HostedInvoiceURL: inv.HostedInvoiceURL,
		InvoicePDF:       inv.InvoicePDF,
	}); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}

	for _, productID := range invoiceProductIDs(&inv) {
		if err := r.store.GrantProductAccess(ctx, userID, productID); err != nil {
			return errors.Join(ErrStoreFailure, err)
		}
	}

	// Cached quota entries are stale after any invoice transition.
	if r.cache != nil {
		r.cache.Invalidate(ctx, userID)
	}

	if invoicePaid(eventType) && stripeSubID != "" {
		localID, err := r.store.SubscriptionIDByStripeID(ctx, stripeSubID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Paid invoice for a subscription this store has never seen;
				// the subscription event will arrive later and start fresh.
				r.log.WarnContext(ctx, "paid invoice for unknown subscription",
					slog.String("stripe_subscription_id", stripeSubID))
				return nil
			}
			return errors.Join(ErrStoreFailure, err)
		}
		if err := r.ledger.ResetUsage(ctx, localID); err != nil {
			return err
		}
		r.log.InfoContext(ctx, "usage reset for new billing period",
			logger.UserID(userID), logger.SubscriptionID(localID))
	}

	return nil
}

// subscriptionProductID extracts the purchased product from the first
// subscription item.
func subscriptionProductID(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	item := sub.Items.Data[0]
	if item.Price == nil || item.Price.Product == nil {
		return ""
	}
	return item.Price.Product.ID
}

// invoiceProductIDs collects the distinct products across invoice line items.
func invoiceProductIDs(inv *stripe.Invoice) []string {
	if inv.Lines == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, line := range inv.Lines.Data {
		if line.Price == nil || line.Price.Product == nil {
			continue
		}
		id := line.Price.Product.ID
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func unixPtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
