package stripesync

import "context"

// Query surface over reconciled state. All reads return plain records
// keyed by the provider's external ids; storage-internal identifiers never
// leak out.

// GetProduct returns a product by external id, including soft-deleted ones.
func (p *Processor) GetProduct(ctx context.Context, id string) (*Product, error) {
	return p.store.GetProduct(ctx, id)
}

// ListProducts returns products; activeOnly excludes soft-deleted ones.
func (p *Processor) ListProducts(ctx context.Context, activeOnly bool) ([]Product, error) {
	return p.store.ListProducts(ctx, activeOnly)
}

// GetPrice returns a price by external id.
func (p *Processor) GetPrice(ctx context.Context, id string) (*Price, error) {
	return p.store.GetPrice(ctx, id)
}

// ListPricesByProduct returns the prices owned by a product.
func (p *Processor) ListPricesByProduct(ctx context.Context, productID string, activeOnly bool) ([]Price, error) {
	return p.store.ListPricesByProduct(ctx, productID, activeOnly)
}

// GetProductWithPrices returns a product and all of its prices in one read.
func (p *Processor) GetProductWithPrices(ctx context.Context, id string) (*ProductWithPrices, error) {
	prod, err := p.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	prices, err := p.store.ListPricesByProduct(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return &ProductWithPrices{Product: *prod, Prices: prices}, nil
}

// GetCustomer returns a customer by external id.
func (p *Processor) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return p.store.GetCustomer(ctx, id)
}

// GetSubscription returns a subscription by external id.
func (p *Processor) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	return p.store.GetSubscription(ctx, id)
}

// ListSubscriptionsByOrg returns the subscriptions tagged with an org id.
func (p *Processor) ListSubscriptionsByOrg(ctx context.Context, orgID string) ([]Subscription, error) {
	return p.store.ListSubscriptionsByOrg(ctx, orgID)
}

// ListSubscriptionsByUser returns the subscriptions tagged with a user id.
func (p *Processor) ListSubscriptionsByUser(ctx context.Context, userID string) ([]Subscription, error) {
	return p.store.ListSubscriptionsByUser(ctx, userID)
}

// GetCheckoutSession returns a checkout session by external id.
func (p *Processor) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	return p.store.GetCheckoutSession(ctx, id)
}

// GetPayment returns a payment by payment-intent id.
func (p *Processor) GetPayment(ctx context.Context, id string) (*Payment, error) {
	return p.store.GetPayment(ctx, id)
}

// ListPaymentsByOrg returns the payments tagged with an org id.
func (p *Processor) ListPaymentsByOrg(ctx context.Context, orgID string) ([]Payment, error) {
	return p.store.ListPaymentsByOrg(ctx, orgID)
}

// ListPaymentsByUser returns the payments tagged with a user id.
func (p *Processor) ListPaymentsByUser(ctx context.Context, userID string) ([]Payment, error) {
	return p.store.ListPaymentsByUser(ctx, userID)
}

// GetInvoice returns an invoice by external id.
func (p *Processor) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	return p.store.GetInvoice(ctx, id)
}

// ListInvoicesByOrg returns the invoices tagged with an org id.
func (p *Processor) ListInvoicesByOrg(ctx context.Context, orgID string) ([]Invoice, error) {
	return p.store.ListInvoicesByOrg(ctx, orgID)
}

// ListInvoicesByUser returns the invoices tagged with a user id.
func (p *Processor) ListInvoicesByUser(ctx context.Context, userID string) ([]Invoice, error) {
	return p.store.ListInvoicesByUser(ctx, userID)
}
