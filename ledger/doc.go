// Package ledger implements the tier-limit ledger: per-subscription,
// per-feature counters that gate every mutating call against the Google Tag
// Manager and GA4 APIs.
//
// Each active subscription owns one TierLimit row per feature, holding
// independent create/update/delete limits and usage counters. The invariant
// 0 <= usage <= limit holds on every axis at all times; it is enforced by an
// atomic conditional increment at the store layer, whose affected-row count is
// the authoritative admission decision. Usage is monotonically non-decreasing
// within a billing period and is reset on invoice payment by the reconciler.
//
// Batch admission is all-or-nothing: a batch larger than the remaining
// capacity is refused before any external call is made. Within an admitted
// batch, items fail independently; successes are accounted even when sibling
// items fail.
package ledger
