package reconciler

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tagstack/billingcore/ledger"
	"github.com/tagstack/billingcore/tier"
)

// MemoryStore is an in-memory Store for tests and local development. All
// operations run under one mutex, so cascades are naturally all-or-nothing.
// It shares tier limit rows with a ledger.MemoryStore so reconciled
// subscriptions are immediately visible to the ledger.
type MemoryStore struct {
	mu sync.Mutex

	customers     map[string]uuid.UUID // stripe customer id -> user id
	products      map[string]Product
	prices        map[string]Price
	featureLimits map[string]map[tier.Feature]tier.Limits // product id -> defaults

	subs        map[uuid.UUID]*Subscription // local id -> record
	subByUser   map[userProduct]uuid.UUID
	subByStripe map[string]uuid.UUID
	invoices    map[string]Invoice
	sessions    map[string]CheckoutSession // keyed by stripe subscription id
	access      map[userProduct]bool
	ledgerStore *ledger.MemoryStore
}

type userProduct struct {
	userID    uuid.UUID
	productID string
}

// NewMemoryStore creates a MemoryStore writing tier limits into the given
// ledger store.
func NewMemoryStore(ledgerStore *ledger.MemoryStore) *MemoryStore {
	return &MemoryStore{
		customers:     make(map[string]uuid.UUID),
		products:      make(map[string]Product),
		prices:        make(map[string]Price),
		featureLimits: make(map[string]map[tier.Feature]tier.Limits),
		subs:          make(map[uuid.UUID]*Subscription),
		subByUser:     make(map[userProduct]uuid.UUID),
		subByStripe:   make(map[string]uuid.UUID),
		invoices:      make(map[string]Invoice),
		sessions:      make(map[string]CheckoutSession),
		access:        make(map[userProduct]bool),
		ledgerStore:   ledgerStore,
	}
}

// RegisterCustomer installs the Stripe customer to user mapping that in
// production is created during checkout.
func (m *MemoryStore) RegisterCustomer(customerID string, userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[customerID] = userID
}

// UserIDByCustomer implements Store.
func (m *MemoryStore) UserIDByCustomer(_ context.Context, customerID string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.customers[customerID]
	if !ok {
		return uuid.Nil, ErrUnknownCustomer
	}
	return userID, nil
}

// UpsertProduct implements Store.
func (m *MemoryStore) UpsertProduct(_ context.Context, p Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

// DeleteProductCascade implements Store.
func (m *MemoryStore) DeleteProductCascade(_ context.Context, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.featureLimits, productID)
	for key, id := range m.subByUser {
		if key.productID == productID {
			m.ledgerStore.RemoveSubscription(id)
		}
	}
	for id, p := range m.prices {
		if p.ProductID == productID {
			delete(m.prices, id)
		}
	}
	delete(m.products, productID)
	return nil
}

// UpsertPrice implements Store.
func (m *MemoryStore) UpsertPrice(_ context.Context, p Price) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[p.ID] = p
	return nil
}

// ReplaceFeatureLimits implements Store. The whole table is swapped so
// features absent from the new table are dropped.
func (m *MemoryStore) ReplaceFeatureLimits(_ context.Context, productID string, limits map[tier.Feature]tier.Limits) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := make(map[tier.Feature]tier.Limits, len(limits))
	for f, l := range limits {
		table[f] = l
	}
	m.featureLimits[productID] = table
	return nil
}

// FeatureLimits implements Store.
func (m *MemoryStore) FeatureLimits(_ context.Context, productID string) (map[tier.Feature]tier.Limits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[tier.Feature]tier.Limits, len(m.featureLimits[productID]))
	for f, l := range m.featureLimits[productID] {
		out[f] = l
	}
	return out, nil
}

// UpsertSubscription implements Store, including the plan-change rekey: a
// known Stripe subscription id arriving under a new (user, product) pair
// keeps its local id.
func (m *MemoryStore) UpsertSubscription(_ context.Context, s Subscription) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := userProduct{s.UserID, s.ProductID}
	if id, ok := m.subByUser[key]; ok {
		s.ID = id
		m.subs[id] = &s
		m.subByStripe[s.StripeID] = id
		return id, nil
	}

	if id, ok := m.subByStripe[s.StripeID]; ok {
		old := m.subs[id]
		delete(m.subByUser, userProduct{old.UserID, old.ProductID})
		s.ID = id
		m.subs[id] = &s
		m.subByUser[key] = id
		return id, nil
	}

	s.ID = uuid.New()
	m.subs[s.ID] = &s
	m.subByUser[key] = s.ID
	m.subByStripe[s.StripeID] = s.ID
	return s.ID, nil
}

// SyncTierLimits implements Store: inserts start with zero usage, updates
// refresh limits and keep usage, clamped to the new limit on a downgrade so
// usage <= limit holds on every axis.
func (m *MemoryStore) SyncTierLimits(_ context.Context, subscriptionID uuid.UUID, limits map[tier.Feature]tier.Limits) error {
	m.mu.Lock()
	sub, ok := m.subs[subscriptionID]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	for f, l := range limits {
		existing, err := m.ledgerStore.Get(context.Background(), sub.UserID, f)
		row := ledger.TierLimit{
			SubscriptionID: subscriptionID,
			Feature:        f,
			CreateLimit:    l.Create,
			UpdateLimit:    l.Update,
			DeleteLimit:    l.Delete,
		}
		if err == nil && existing.SubscriptionID == subscriptionID {
			row.ID = existing.ID
			row.CreateUsage = min(existing.CreateUsage, l.Create)
			row.UpdateUsage = min(existing.UpdateUsage, l.Update)
			row.DeleteUsage = min(existing.DeleteUsage, l.Delete)
		}
		m.ledgerStore.Seed(sub.UserID, row)
	}
	return nil
}

// SubscriptionIDByStripeID implements Store.
func (m *MemoryStore) SubscriptionIDByStripeID(_ context.Context, stripeSubID string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.subByStripe[stripeSubID]
	if !ok {
		return uuid.Nil, ErrNotFound
	}
	return id, nil
}

// Subscription returns a copy of the local subscription record, for tests.
func (m *MemoryStore) Subscription(id uuid.UUID) (Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok {
		return Subscription{}, false
	}
	return *sub, true
}

// UpsertInvoice implements Store.
func (m *MemoryStore) UpsertInvoice(_ context.Context, inv Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = inv
	return nil
}

// UpsertCheckoutSession implements Store.
func (m *MemoryStore) UpsertCheckoutSession(_ context.Context, cs CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cs.StripeSubID
	if key == "" {
		key = cs.ID
	}
	m.sessions[key] = cs
	return nil
}

// GrantProductAccess implements Store.
func (m *MemoryStore) GrantProductAccess(_ context.Context, userID uuid.UUID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access[userProduct{userID, productID}] = true
	return nil
}

// HasProductAccess reports the grant state, for tests.
func (m *MemoryStore) HasProductAccess(userID uuid.UUID, productID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access[userProduct{userID, productID}]
}

// Product returns the stored product, for tests.
func (m *MemoryStore) Product(id string) (Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	return p, ok
}

// Price returns the stored price, for tests.
func (m *MemoryStore) Price(id string) (Price, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[id]
	return p, ok
}

// Invoice returns the stored invoice, for tests.
func (m *MemoryStore) Invoice(id string) (Invoice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	return inv, ok
}

// CheckoutSessionBySubscription returns the session keyed by the Stripe
// subscription id, for tests.
func (m *MemoryStore) CheckoutSessionBySubscription(stripeSubID string) (CheckoutSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.sessions[stripeSubID]
	return cs, ok
}

// DeleteCustomerCascade implements Store.
func (m *MemoryStore) DeleteCustomerCascade(_ context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.customers[customerID]
	if !ok {
		return nil // already gone; cascade is idempotent
	}

	for id, inv := range m.invoices {
		if inv.UserID == userID {
			delete(m.invoices, id)
		}
	}
	for key, cs := range m.sessions {
		if cs.UserID == userID {
			delete(m.sessions, key)
		}
	}
	for key, id := range m.subByUser {
		if key.userID == userID {
			sub := m.subs[id]
			m.ledgerStore.RemoveSubscription(id)
			delete(m.subByStripe, sub.StripeID)
			delete(m.subs, id)
			delete(m.subByUser, key)
		}
	}
	for key := range m.access {
		if key.userID == userID {
			delete(m.access, key)
		}
	}
	delete(m.customers, customerID)
	return nil
}
