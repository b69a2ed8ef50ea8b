package stripesync

import "context"

// Reader provides point lookups by external id.
// Lookups return ErrNotFound when no record exists.
type Reader interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetPrice(ctx context.Context, id string) (*Price, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
}

// Writer upserts records by external id. An upsert replaces the stored
// record wholesale; merge policy lives in the mergers, not the store.
type Writer interface {
	PutProduct(ctx context.Context, p *Product) error
	PutPrice(ctx context.Context, p *Price) error
	PutCustomer(ctx context.Context, c *Customer) error
	PutSubscription(ctx context.Context, s *Subscription) error
	PutCheckoutSession(ctx context.Context, cs *CheckoutSession) error
	PutPayment(ctx context.Context, p *Payment) error
	PutInvoice(ctx context.Context, i *Invoice) error
}

// Tx is the unit of atomicity for one merge. Reads inside a Tx see
// committed state plus the Tx's own writes; partial writes never become
// visible. Two transactions touching the same external id serialize at the
// storage layer.
type Tx interface {
	Reader
	Writer
}

// Querier provides the listing surface over reconciled state.
type Querier interface {
	// ListProducts returns all products; activeOnly filters soft-deleted ones.
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)

	// ListPricesByProduct returns the prices owned by a product.
	ListPricesByProduct(ctx context.Context, productID string, activeOnly bool) ([]Price, error)

	// ListSubscriptionsByOrg returns subscriptions tagged with the org id.
	ListSubscriptionsByOrg(ctx context.Context, orgID string) ([]Subscription, error)

	// ListSubscriptionsByUser returns subscriptions tagged with the user id.
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]Subscription, error)

	// ListPaymentsByOrg returns payments tagged with the org id.
	ListPaymentsByOrg(ctx context.Context, orgID string) ([]Payment, error)

	// ListPaymentsByUser returns payments tagged with the user id.
	ListPaymentsByUser(ctx context.Context, userID string) ([]Payment, error)

	// ListInvoicesByOrg returns invoices tagged with the org id.
	ListInvoicesByOrg(ctx context.Context, orgID string) ([]Invoice, error)

	// ListInvoicesByUser returns invoices tagged with the user id.
	ListInvoicesByUser(ctx context.Context, userID string) ([]Invoice, error)
}

// Store is the durable record store the processor reconciles into.
// Implementations live under storage/ (memory, postgres, redis).
type Store interface {
	Reader
	Querier

	// InTx runs fn inside one atomic transaction. fn's writes commit
	// together or not at all; a non-nil error from fn aborts the transaction.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// HasApplied reports whether an event id has been fully applied.
	HasApplied(ctx context.Context, eventID string) (bool, error)

	// MarkApplied records an event id as applied. Called only after the
	// merge transaction commits, and before custom handlers run.
	MarkApplied(ctx context.Context, eventID string) error
}
