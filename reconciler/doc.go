// Package reconciler consumes Stripe webhook events and converges local
// billing and ledger state to match Stripe's.
//
// Every transition is idempotent: upserts are keyed by immutable Stripe
// object ids or by the (user, product) pair, so replayed and out-of-order
// deliveries converge to the same final state. Stripe does not guarantee
// webhook ordering, so no handler assumes a prior event has been seen; a
// subscription update arriving before its checkout session simply creates
// the subscription row.
//
// Events outside the relevant-event allow-list are acknowledged as ignored,
// which keeps the endpoint forward-compatible with new Stripe event types.
// Signature failures and handler errors reject the request with 400 so
// Stripe retries delivery.
package reconciler
