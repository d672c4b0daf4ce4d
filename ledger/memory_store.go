package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tagstack/billingcore/tier"
)

// MemoryStore is an in-memory Store for tests and local development. It
// reproduces the conditional-increment semantics of the SQL store under a
// mutex, so concurrency properties hold the same way.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]*TierLimit            // by tier limit id
	byUser map[uuid.UUID]map[tier.Feature]uuid.UUID // userID -> feature -> tier limit id
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[uuid.UUID]*TierLimit),
		byUser: make(map[uuid.UUID]map[tier.Feature]uuid.UUID),
	}
}

// Seed installs a tier limit row for a user. Missing IDs are generated.
// Returns the stored row's id.
func (m *MemoryStore) Seed(userID uuid.UUID, row TierLimit) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.SubscriptionID == uuid.Nil {
		row.SubscriptionID = uuid.New()
	}

	m.rows[row.ID] = &row
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[tier.Feature]uuid.UUID)
	}
	m.byUser[userID][row.Feature] = row.ID
	return row.ID
}

// RemoveSubscription deletes every tier limit row under a subscription,
// mirroring the SQL foreign-key cascade.
func (m *MemoryStore) RemoveSubscription(subscriptionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, row := range m.rows {
		if row.SubscriptionID == subscriptionID {
			delete(m.rows, id)
		}
	}
	for _, features := range m.byUser {
		for f, id := range features {
			if _, ok := m.rows[id]; !ok {
				delete(features, f)
			}
		}
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, userID uuid.UUID, feature tier.Feature) (*TierLimit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byUser[userID][feature]
	if !ok {
		return nil, ErrNoActiveLimit
	}

	row := *m.rows[id]
	return &row, nil
}

// TryIncrement implements Store with the same admit-or-refuse semantics as
// the conditional UPDATE in the SQL store.
func (m *MemoryStore) TryIncrement(_ context.Context, tierLimitID uuid.UUID, op Operation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[tierLimitID]
	if !ok {
		return false, ErrNoActiveLimit
	}

	switch op {
	case OpCreate:
		if row.CreateUsage+1 > row.CreateLimit {
			return false, nil
		}
		row.CreateUsage++
	case OpUpdate:
		if row.UpdateUsage+1 > row.UpdateLimit {
			return false, nil
		}
		row.UpdateUsage++
	case OpDelete:
		if row.DeleteUsage+1 > row.DeleteLimit {
			return false, nil
		}
		row.DeleteUsage++
	default:
		return false, ErrInvalidOperation
	}

	return true, nil
}

// ResetUsage implements Store. Delete usage is intentionally preserved.
func (m *MemoryStore) ResetUsage(_ context.Context, subscriptionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.SubscriptionID == subscriptionID {
			row.CreateUsage = 0
			row.UpdateUsage = 0
		}
	}
	return nil
}
