package reconciler

// Stripe event types this reconciler processes. Anything outside this list
// is acknowledged as ignored without touching state.
const (
	EventProductCreated = "product.created"
	EventProductUpdated = "product.updated"
	EventProductDeleted = "product.deleted"

	EventPriceCreated = "price.created"
	EventPriceUpdated = "price.updated"

	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"

	EventCheckoutCompleted = "checkout.session.completed"

	EventInvoiceCreated          = "invoice.created"
	EventInvoiceUpdated          = "invoice.updated"
	EventInvoiceFinalized        = "invoice.finalized"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventInvoicePaid             = "invoice.paid"

	EventCustomerDeleted = "customer.deleted"
)

var relevantEvents = map[string]struct{}{
	EventProductCreated:          {},
	EventProductUpdated:          {},
	EventProductDeleted:          {},
	EventPriceCreated:            {},
	EventPriceUpdated:            {},
	EventSubscriptionCreated:     {},
	EventSubscriptionUpdated:     {},
	EventSubscriptionDeleted:     {},
	EventCheckoutCompleted:       {},
	EventInvoiceCreated:          {},
	EventInvoiceUpdated:          {},
	EventInvoiceFinalized:        {},
	EventInvoicePaymentSucceeded: {},
	EventInvoicePaymentFailed:    {},
	EventInvoicePaid:             {},
	EventCustomerDeleted:         {},
}

// Relevant reports whether the event type is on the allow-list.
func Relevant(eventType string) bool {
	_, ok := relevantEvents[eventType]
	return ok
}

// invoicePaid reports whether the invoice event signals a successful
// billing-period rollover, which resets create/update usage.
func invoicePaid(eventType string) bool {
	return eventType == EventInvoicePaid || eventType == EventInvoicePaymentSucceeded
}
