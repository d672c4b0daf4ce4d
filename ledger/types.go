package ledger

import (
	"github.com/google/uuid"

	"github.com/tagstack/billingcore/tier"
)

// Operation selects which quota axis a request consumes.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is one of the three quota axes.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// TierLimit is the live, mutable per-subscription ledger row for one feature.
type TierLimit struct {
	ID             uuid.UUID    `json:"id"`
	SubscriptionID uuid.UUID    `json:"subscription_id"`
	Feature        tier.Feature `json:"feature"`

	CreateLimit int64 `json:"create_limit"`
	UpdateLimit int64 `json:"update_limit"`
	DeleteLimit int64 `json:"delete_limit"`

	CreateUsage int64 `json:"create_usage"`
	UpdateUsage int64 `json:"update_usage"`
	DeleteUsage int64 `json:"delete_usage"`
}

// Limit returns the limit for the given axis.
func (t *TierLimit) Limit(op Operation) int64 {
	switch op {
	case OpUpdate:
		return t.UpdateLimit
	case OpDelete:
		return t.DeleteLimit
	default:
		return t.CreateLimit
	}
}

// Usage returns the usage counter for the given axis.
func (t *TierLimit) Usage(op Operation) int64 {
	switch op {
	case OpUpdate:
		return t.UpdateUsage
	case OpDelete:
		return t.DeleteUsage
	default:
		return t.CreateUsage
	}
}

// Quota is the read-only answer to a limit check.
type Quota struct {
	Feature      tier.Feature `json:"feature"`
	Operation    Operation    `json:"operation"`
	Limit        int64        `json:"limit"`
	Usage        int64        `json:"usage"`
	Available    int64        `json:"available"`
	LimitReached bool         `json:"limit_reached"`
}

// ItemResult carries the outcome of one item within a batch.
type ItemResult struct {
	Name         string `json:"name"`
	Success      bool   `json:"success"`
	NotFound     bool   `json:"not_found,omitempty"`
	LimitReached bool   `json:"limit_reached,omitempty"`
	Error        string `json:"error,omitempty"`
}

// BatchResult aggregates per-item outcomes. Success is true only when every
// item succeeded; failed items never roll back sibling successes.
type BatchResult struct {
	Success       bool         `json:"success"`
	LimitReached  bool         `json:"limit_reached,omitempty"`
	NotFoundError bool         `json:"not_found_error,omitempty"`
	Message       string       `json:"message,omitempty"`
	Results       []ItemResult `json:"results,omitempty"`
}

// Succeeded counts the items that completed and were accounted.
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Success {
			n++
		}
	}
	return n
}
