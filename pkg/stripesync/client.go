package stripesync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v83"
)

// CheckoutParams describes a hosted checkout session to create.
type CheckoutParams struct {
	Mode       CheckoutMode
	PriceID    string
	Quantity   int64
	CustomerID string
	SuccessURL string
	CancelURL  string

	// AllowPromotionCodes and Discounts are mutually exclusive; requesting
	// both fails with ErrConflictingOptions before any remote call.
	AllowPromotionCodes bool
	Discounts           []string

	Metadata Metadata
	OrgID    string
	UserID   string
}

// CheckoutLink is a created hosted checkout session.
type CheckoutLink struct {
	ID  string
	URL string
}

// RemoteClient mutates and reads the provider's remote state. The webhook
// processor never calls it from the merge path; it serves the checkout,
// quantity-update, and backfill operations.
type RemoteClient interface {
	// CreateCheckoutSession creates a hosted checkout session.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutLink, error)

	// UpdateSubscriptionQuantity changes a subscription item's seat quantity
	// on the provider. The local write happens only after this succeeds.
	UpdateSubscriptionQuantity(ctx context.Context, subID, itemID string, quantity int64) error

	// ListProducts streams raw product payloads for backfill.
	ListProducts(ctx context.Context) ([]json.RawMessage, error)

	// ListPrices streams raw price payloads for backfill.
	ListPrices(ctx context.Context) ([]json.RawMessage, error)

	// ListCustomers streams raw customer payloads for backfill.
	ListCustomers(ctx context.Context) ([]json.RawMessage, error)
}

// StripeClient implements RemoteClient with the official Stripe SDK.
type StripeClient struct {
	sc *stripe.Client
}

// NewStripeClient creates a RemoteClient backed by the Stripe API.
func NewStripeClient(apiKey string) (*StripeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API key", ErrNotConfigured)
	}
	return &StripeClient{sc: stripe.NewClient(apiKey)}, nil
}

// CreateCheckoutSession implements RemoteClient.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutLink, error) {
	quantity := params.Quantity
	if quantity == 0 {
		quantity = 1
	}

	create := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(params.Mode)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(quantity),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
	}

	if params.AllowPromotionCodes {
		create.AllowPromotionCodes = stripe.Bool(true)
	}
	for _, d := range params.Discounts {
		create.Discounts = append(create.Discounts, &stripe.CheckoutSessionCreateDiscountParams{
			PromotionCode: stripe.String(d),
		})
	}
	if params.CustomerID != "" {
		create.Customer = stripe.String(params.CustomerID)
	}

	// Owner tags ride along as metadata so the webhook handlers can seed
	// caller-owned fields on first sight of the payment.
	for k, v := range params.Metadata {
		create.AddMetadata(k, v)
	}
	if params.OrgID != "" {
		create.AddMetadata("orgId", params.OrgID)
	}
	if params.UserID != "" {
		create.AddMetadata("userId", params.UserID)
	}

	session, err := c.sc.V1CheckoutSessions.Create(ctx, create)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &CheckoutLink{ID: session.ID, URL: session.URL}, nil
}

// UpdateSubscriptionQuantity implements RemoteClient.
func (c *StripeClient) UpdateSubscriptionQuantity(ctx context.Context, subID, itemID string, quantity int64) error {
	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{
				ID:       stripe.String(itemID),
				Quantity: stripe.Int64(quantity),
			},
		},
	}
	if _, err := c.sc.V1Subscriptions.Update(ctx, subID, params); err != nil {
		return fmt.Errorf("failed to update subscription %s: %w", subID, err)
	}
	return nil
}

// ListProducts implements RemoteClient.
func (c *StripeClient) ListProducts(ctx context.Context) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for prod, err := range c.sc.V1Products.List(ctx, &stripe.ProductListParams{}) {
		if err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}
		raw, err := json.Marshal(prod)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// ListPrices implements RemoteClient.
func (c *StripeClient) ListPrices(ctx context.Context) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for price, err := range c.sc.V1Prices.List(ctx, &stripe.PriceListParams{}) {
		if err != nil {
			return nil, fmt.Errorf("failed to list prices: %w", err)
		}
		raw, err := json.Marshal(price)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// ListCustomers implements RemoteClient.
func (c *StripeClient) ListCustomers(ctx context.Context) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for cust, err := range c.sc.V1Customers.List(ctx, &stripe.CustomerListParams{}) {
		if err != nil {
			return nil, fmt.Errorf("failed to list customers: %w", err)
		}
		raw, err := json.Marshal(cust)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}
