// Package tier holds the billing reference data for the tag-management
// features: the known feature names and the per-tier default quotas that are
// copied into live tier limits when a subscription is created.
//
// Tiers map one-to-one to Stripe products; the tier name is carried in the
// product's metadata under the "tier" key. Unknown tiers produce no limits,
// which effectively blocks every gated operation for that product.
package tier
