package stripesync

import (
	"context"
	"fmt"
	"time"
)

// CreateCheckoutSession validates checkout options and creates a hosted
// checkout session via the remote client. The created session's local
// record arrives through the checkout.session.* webhooks; this operation
// performs no local write.
func (p *Processor) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutLink, error) {
	// Caller configuration errors surface synchronously, before any remote
	// or local write.
	if params.AllowPromotionCodes && len(params.Discounts) > 0 {
		return nil, fmt.Errorf("%w: AllowPromotionCodes and Discounts", ErrConflictingOptions)
	}
	if params.PriceID == "" {
		return nil, fmt.Errorf("%w: PriceID is required", ErrConflictingOptions)
	}
	if params.Mode == "" {
		params.Mode = CheckoutModeSubscription
	}
	if p.client == nil {
		return nil, fmt.Errorf("%w: remote client required for checkout", ErrNotConfigured)
	}

	startTime := time.Now()
	link, err := p.client.CreateCheckoutSession(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall("/checkout/sessions", "error")
		p.metrics.RecordAPICallDuration("/checkout/sessions", time.Since(startTime))
		return nil, err
	}
	p.metrics.RecordAPICall("/checkout/sessions", "success")
	p.metrics.RecordAPICallDuration("/checkout/sessions", time.Since(startTime))

	return link, nil
}
