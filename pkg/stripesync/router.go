package stripesync

import (
	"context"
	"strings"
)

// HandlerFunc is a caller-registered webhook handler. Handlers run after the
// merge transaction has committed and the event is marked applied; a handler
// error is recorded but never changes the delivery outcome.
type HandlerFunc func(ctx context.Context, ev *Event) error

// registry maps event types to their handler chains. Built once at setup;
// not safe for registration after serving starts.
type registry struct {
	handlers map[string][]HandlerFunc
	catchAll []HandlerFunc
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string][]HandlerFunc)}
}

func (r *registry) on(eventType string, h HandlerFunc) {
	r.handlers[eventType] = append(r.handlers[eventType], h)
}

func (r *registry) onAny(h HandlerFunc) {
	r.catchAll = append(r.catchAll, h)
}

// chain returns the exact-type handlers for an event. The catch-all
// observers are kept separate so they run last for every event type.
func (r *registry) chain(eventType string) []HandlerFunc {
	return r.handlers[eventType]
}

// mergerFor maps an event type to its resource merger. The mapping is total:
// unrecognized event types get a nil merger (no local-storage effect) and
// the delivery still succeeds.
func mergerFor(eventType string) (merger, mergeOptions) {
	opts := mergeOptions{deleted: strings.HasSuffix(eventType, ".deleted")}

	switch {
	case strings.HasPrefix(eventType, "product."):
		return mergeProduct, opts
	case strings.HasPrefix(eventType, "price."):
		return mergePrice, opts
	case strings.HasPrefix(eventType, "customer.subscription."):
		return mergeSubscription, opts
	case strings.HasPrefix(eventType, "customer."):
		return mergeCustomer, opts
	case strings.HasPrefix(eventType, "checkout.session."):
		return mergeCheckoutSession, opts
	case strings.HasPrefix(eventType, "payment_intent."):
		return mergePayment, opts
	case strings.HasPrefix(eventType, "invoice."):
		return mergeInvoice, opts
	default:
		return nil, opts
	}
}
