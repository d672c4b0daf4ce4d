package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tagstack/billingcore/gapi"
	"github.com/tagstack/billingcore/pkg/logger"
	"github.com/tagstack/billingcore/tier"
)

// Service gates and accounts create/update/delete operations against the
// external Google APIs, per subscription, per feature.
type Service struct {
	store Store
	cache *QuotaCache
	log   *slog.Logger
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithCache attaches a best-effort quota cache.
func WithCache(cache *QuotaCache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a ledger Service. Panics on a nil store to fail fast
// during initialization.
func NewService(store Store, opts ...ServiceOption) *Service {
	if store == nil {
		panic("ledger: Store is required")
	}

	s := &Service{
		store: store,
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckLimit reports the remaining capacity for the user's active
// subscription on one feature axis. Read-only; a missing tier limit row is
// reported as limit reached, not as an error, because it means the user's
// plan grants no capacity for the feature.
func (s *Service) CheckLimit(ctx context.Context, userID uuid.UUID, feature tier.Feature, op Operation) (*Quota, error) {
	if !op.Valid() {
		return nil, ErrInvalidOperation
	}
	if !tier.Valid(feature) {
		return nil, ErrInvalidFeature
	}

	if s.cache != nil {
		if q, ok := s.cache.Get(ctx, userID, feature); ok && q.Operation == op {
			return q, nil
		}
	}

	row, err := s.store.Get(ctx, userID, feature)
	if err != nil {
		if errors.Is(err, ErrNoActiveLimit) {
			return &Quota{Feature: feature, Operation: op, LimitReached: true}, nil
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}

	limit, usage := row.Limit(op), row.Usage(op)
	q := &Quota{
		Feature:      feature,
		Operation:    op,
		Limit:        limit,
		Usage:        usage,
		Available:    max(limit-usage, 0),
		LimitReached: usage >= limit,
	}

	if s.cache != nil {
		s.cache.Set(ctx, userID, q)
	}

	return q, nil
}

// ResetUsage zeroes create and update usage for every tier limit under a
// subscription. Invoked by the reconciler on billing-period rollover.
func (s *Service) ResetUsage(ctx context.Context, subscriptionID uuid.UUID) error {
	if err := s.store.ResetUsage(ctx, subscriptionID); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

// BatchItem pairs a display name with the payload handed to the API call.
// The name identifies the item in per-item results.
type BatchItem[T any] struct {
	Name    string
	Payload T
}

// CallFunc performs the external API call for one item. The returned error,
// classified against the gapi taxonomy, decides the item's outcome.
type CallFunc[T any] func(ctx context.Context, payload T) error

// Execute runs a batch of N items through the ledger gate.
//
// The whole batch is refused up-front when N exceeds the remaining capacity,
// with a message naming how many slots remain and before any external call is
// made. Admitted items fan out concurrently and fail independently. Usage is
// incremented exactly once per item, only after the external call confirms
// success, via the store's atomic conditional increment; an increment refused
// by a concurrent racer downgrades that item to limit-reached so the ledger
// invariant holds even under lost pre-check races.
func Execute[T any](ctx context.Context, s *Service, userID uuid.UUID, feature tier.Feature, op Operation, items []BatchItem[T], call CallFunc[T]) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	quota, err := s.CheckLimit(ctx, userID, feature, op)
	if err != nil {
		return nil, err
	}

	if quota.LimitReached || int64(len(items)) > quota.Available {
		return &BatchResult{
			Success:      false,
			LimitReached: true,
			Message: fmt.Sprintf(
				"cannot %s %d %s: %d of %d slots available",
				op, len(items), feature, quota.Available, quota.Limit),
		}, nil
	}

	row, err := s.store.Get(ctx, userID, feature)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}

	outcomes := gapi.BatchDo(ctx, items, func(ctx context.Context, item BatchItem[T]) (ItemResult, error) {
		return s.runItem(ctx, row.ID, op, item.Name, func(ctx context.Context) error {
			return call(ctx, item.Payload)
		}), nil
	})

	result := &BatchResult{Success: true, Results: make([]ItemResult, len(outcomes))}
	for i, o := range outcomes {
		result.Results[i] = o.Result
		if !o.Result.Success {
			result.Success = false
		}
		if o.Result.NotFound {
			result.NotFoundError = true
		}
		if o.Result.LimitReached {
			result.LimitReached = true
		}
	}

	if !result.Success {
		result.Message = fmt.Sprintf("%d succeeded, %d failed",
			result.Succeeded(), len(result.Results)-result.Succeeded())
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, userID, feature)
	}

	return result, nil
}

// runItem executes one item's external call and settles its accounting.
func (s *Service) runItem(ctx context.Context, tierLimitID uuid.UUID, op Operation, name string, call func(context.Context) error) ItemResult {
	res := ItemResult{Name: name}

	if err := call(ctx); err != nil {
		switch {
		case errors.Is(err, gapi.ErrNotFound):
			res.NotFound = true
		case errors.Is(err, gapi.ErrFeatureLimitReached):
			res.LimitReached = true
		}
		res.Error = err.Error()
		return res
	}

	ok, err := s.store.TryIncrement(ctx, tierLimitID, op)
	if err != nil {
		s.log.ErrorContext(ctx, "usage increment failed after remote success",
			slog.String("tier_limit_id", tierLimitID.String()),
			logger.Operation(op),
			logger.Error(err))
		res.Error = err.Error()
		return res
	}
	if !ok {
		// Lost the admission race to a concurrent batch. The remote object
		// exists but the slot is gone; report limit reached for the item.
		res.LimitReached = true
		res.Error = "usage limit reached"
		return res
	}

	res.Success = true
	return res
}
