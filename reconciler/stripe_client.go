package reconciler

import (
	"context"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// StripeFetcher implements SubscriptionFetcher on the official Stripe client.
type StripeFetcher struct {
	api *client.API
}

// NewStripeFetcher builds a fetcher with its own API client so the global
// stripe.Key is never touched.
func NewStripeFetcher(secretKey string) *StripeFetcher {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeFetcher{api: api}
}

// FetchSubscription implements SubscriptionFetcher.
func (f *StripeFetcher) FetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	return f.api.Subscriptions.Get(id, params)
}
