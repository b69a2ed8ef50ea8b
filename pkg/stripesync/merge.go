package stripesync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// mergeDecision is what a merger did with the incoming payload.
type mergeDecision int

const (
	mergeSkip mergeDecision = iota
	mergeInsert
	mergeUpdate
)

func (d mergeDecision) String() string {
	switch d {
	case mergeInsert:
		return "insert"
	case mergeUpdate:
		return "update"
	default:
		return "skip"
	}
}

type mergeOptions struct {
	// deleted is true for *.deleted event types.
	deleted bool

	// staleGuard skips payloads older than the stored record (Config.StaleEventGuard).
	staleGuard bool
}

// merger applies one resource payload to local state inside a transaction.
// Mergers overwrite payload-derived fields unconditionally (last write wins
// by arrival order) except caller-owned fields, which survive provider
// updates. A payload missing its external id fails with
// ErrUnknownResourceShape and leaves the transaction aborted.
type merger func(ctx context.Context, tx Tx, ev *Event, opts mergeOptions) (mergeDecision, error)

// idFromRef extracts an external id from a provider reference, which is
// either a bare id string or an expanded object carrying an "id" field.
func idFromRef(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// stale reports whether the event should be dropped under the stale guard.
// Equal timestamps still apply: overwriting with identical state is the
// convergent case, not a conflict.
func stale(opts mergeOptions, ev *Event, updatedAt time.Time) bool {
	return opts.staleGuard && ev.Created.Before(updatedAt)
}

type productPayload struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Active       bool              `json:"active"`
	DefaultPrice json.RawMessage   `json:"default_price"`
	Type         string            `json:"type"`
	Images       []string          `json:"images"`
	Metadata     map[string]string `json:"metadata"`
}

func mergeProduct(ctx context.Context, tx Tx, ev *Event, opts mergeOptions) (mergeDecision, error) {
	var pl productPayload
	if err := json.Unmarshal(ev.Object, &pl); err != nil {
		return mergeSkip, fmt.Errorf("%w: product: %v", ErrUnknownResourceShape, err)
	}
	if pl.ID == "" {
		return mergeSkip, fmt.Errorf("%w: product without id", ErrUnknownResourceShape)
	}

	existing, err := tx.GetProduct(ctx, pl.ID)
	if err != nil && err != ErrNotFound {
		return mergeSkip, err
	}
	if existing != nil && stale(opts, ev, existing.UpdatedAt) {
		return mergeSkip, nil
	}

	rec := Product{
		ID:             pl.ID,
		Name:           pl.Name,
		Description:    pl.Description,
		Active:         pl.Active && !opts.deleted,
		DefaultPriceID: idFromRef(pl.DefaultPrice),
		Type:           pl.Type,
		Images:         pl.Images,
		Metadata:       pl.Metadata,
		UpdatedAt:      ev.Created,
	}
	if opts.deleted && existing != nil {
		// Soft delete: keep the last known fields, only flip the flag.
		rec = *existing
		rec.Active = false
		rec.UpdatedAt = ev.Created
	}

	if err := tx.PutProduct(ctx, &rec); err != nil {
		return mergeSkip, err
	}
	if existing == nil {
		return mergeInsert, nil
	}
	return mergeUpdate, nil
}

type tierPayload struct {
	UpTo              *int64 `json:"up_to"`
	UnitAmount        int64  `json:"unit_amount"`
	FlatAmount        int64  `json:"flat_amount"`
	UnitAmountDecimal string `json:"unit_amount_decimal"`
}

type pricePayload struct {
	ID         string          `json:"id"`
	Product    json.RawMessage `json:"product"`
	Active     bool            `json:"active"`
	Currency   string          `json:"currency"`
	Type       string          `json:"type"`
	UnitAmount *int64          `json:"unit_amount"`
	Recurring  *struct {
		Interval      string `json:"interval"`
		IntervalCount int64  `json:"interval_count"`
		UsageType     string `json:"usage_type"`
	} `json:"recurring"`
	Tiers     []tierPayload     `json:"tiers"`
	LookupKey string            `json:"lookup_key"`
	Metadata  map[string]string `json:"metadata"`
}

// validateTiers rejects tier tables where a non-final tier carries the
// unbounded sentinel or where numeric bounds are not strictly increasing.
func validateTiers(tiers []PriceTier) error {
	var prev int64
	for i, t := range tiers {
		if t.UpTo == nil {
			if i != len(tiers)-1 {
				return fmt.Errorf("%w: unbounded tier before final position", ErrUnknownResourceShape)
			}
			continue
		}
		if i > 0 && *t.UpTo <= prev {
			return fmt.Errorf("%w: tier bounds not increasing", ErrUnknownResourceShape)
		}
		prev = *t.UpTo
	}
	return nil
}

func mergePrice(ctx context.Context, tx Tx, ev *Event, opts mergeOptions) (mergeDecision, error) {
	var pl pricePayload
	if err := json.Unmarshal(ev.Object, &pl); err != nil {
		return mergeSkip, fmt.Errorf("%w: price: %v", ErrUnknownResourceShape, err)
	}
	if pl.ID == "" {
		return mergeSkip, fmt.Errorf("%w: price without id", ErrUnknownResourceShape)
	}
	if pl.Currency == "" && !opts.deleted {
		return mergeSkip, fmt.Errorf("%w: price without currency", ErrUnknownResourceShape)
	}

	existing, err := tx.GetPrice(ctx, pl.ID)
	if err != nil && err != ErrNotFound {
		return mergeSkip, err
	}
	if existing != nil && stale(opts, ev, existing.UpdatedAt) {
		return mergeSkip, nil
	}

	if opts.deleted && existing != nil {
		rec := *existing
		rec.Active = false
		rec.UpdatedAt = ev.Created
		if err := tx.PutPrice(ctx, &rec); err != nil {
			return mergeSkip, err
		}
		return mergeUpdate, nil
	}

	kind := PriceKindOneTime
	if pl.Type == "recurring" || pl.Recurring != nil {
		kind = PriceKindRecurring
	}

	var tiers []PriceTier
	for i, t := range pl.Tiers {
		// SDK-marshaled payloads encode the unbounded bound as 0 instead of
		// null; only the final tier may carry it.
		if t.UpTo != nil && *t.UpTo == 0 && i == len(pl.Tiers)-1 {
			t.UpTo = nil
		}
		tiers = append(tiers, PriceTier{
			UpTo:              t.UpTo,
			UnitAmount:        t.UnitAmount,
			FlatAmount:        t.FlatAmount,
			UnitAmountDecimal: t.UnitAmountDecimal,
		})
	}
	if err := validateTiers(tiers); err != nil {
		return mergeSkip, err
	}

	rec := Price{
		ID:         pl.ID,
		ProductID:  idFromRef(pl.Product), // may dangle; ordering is not guaranteed
		Active:     pl.Active && !opts.deleted,
		Currency:   pl.Currency,
		Kind:       kind,
		UnitAmount: pl.UnitAmount,
		Tiers:      tiers,
		LookupKey:  pl.LookupKey,
		Metadata:   pl.Metadata,
		UpdatedAt:  ev.Created,
	}
	if pl.Recurring != nil {
		rec.Recurring = &Recurring{
			Interval:      pl.Recurring.Interval,
			IntervalCount: pl.Recurring.IntervalCount,
			UsageType:     pl.Recurring.UsageType,
		}
	}

	if err := tx.PutPrice(ctx, &rec); err != nil {
		return mergeSkip, err
	}
	if existing == nil {
		return mergeInsert, nil
	}
	return mergeUpdate, nil
}

type customerPayload struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

func mergeCustomer(ctx context.Context, tx Tx, ev *Event, opts mergeOptions) (mergeDecision, error) {
	var pl customerPayload
	if err := json.Unmarshal(ev.Object, &pl); err != nil {
		return mergeSkip, fmt.Errorf("%w: customer: %v", ErrUnknownResourceShape, err)
	}
	if pl.ID == "" {
		return mergeSkip, fmt.Errorf("%w: customer without id", ErrUnknownResourceShape)
	}

	existing, err := tx.GetCustomer(ctx, pl.ID)
	if err != nil && err != ErrNotFound {
		return mergeSkip, err
	}
	if existing != nil && stale(opts, ev, existing.UpdatedAt) {
		return mergeSkip, nil
	}

	rec := Customer{
		ID:        pl.ID,
		Email:     pl.Email,
		Name:      pl.Name,
		Metadata:  pl.Metadata,
		UpdatedAt: ev.Created,
	}
	if err := tx.PutCustomer(ctx, &rec); err != nil {
		return mergeSkip, err
	}
	if existing == nil {
		return mergeInsert, nil
	}
	return mergeUpdate, nil
}

type subscriptionPayload struct {
	ID                string            `json:"id"`
	Customer          json.RawMessage   `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CancelAt          *int64            `json:"cancel_at"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	Quantity          int64             `json:"quantity"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			ID               string `json:"id"`
			Quantity         int64  `json:"quantity"`
			CurrentPeriodEnd int64  `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func mergeSubscription(ctx context.Context, tx Tx, ev *Event, opts mergeOptions) (mergeDecision, error) {
	var pl subscriptionPayload
	if err := json.Unmarshal(ev.Object, &pl); err != nil {
		return mergeSkip, fmt.Errorf("%w: subscription: %v", ErrUnknownResourceShape, err)
	}
	if pl.ID == "" {
		return mergeSkip, fmt.Errorf("%w: subscription without id", ErrUnknownResourceShape)
	}

	existing, err := tx.GetSubscription(ctx, pl.ID)
	if err != nil && err != ErrNotFound {
		return mergeSkip, err
	}
	if existing != nil && stale(opts, ev, existing.UpdatedAt) {
		return mergeSkip, nil
	}

	// Newer API versions carry period and quantity on the item, not the
	// subscription.
	periodEnd := pl.CurrentPeriodEnd
	quantity := pl.Quantity
	var priceID, itemID string
	if len(pl.Items.Data) > 0 {
		item := pl.Items.Data[0]
		itemID = item.ID
		priceID = item.Price.ID
		if periodEnd == 0 {
			periodEnd = item.CurrentPeriodEnd
		}
		if quantity == 0 {
			quantity = item.Quantity
		}
	}

	rec := Subscription{
		ID:                pl.ID,
		CustomerID:        idFromRef(pl.Customer),
		Status:            SubscriptionStatus(pl.Status),
		PriceID:           priceID,
		ItemID:            itemID,
		Quantity:          quantity,
		CancelAtPeriodEnd: pl.CancelAtPeriodEnd,
		Metadata:          pl.Metadata,
		UpdatedAt:         ev.Created,
	}
	if periodEnd > 0 {
		rec.CurrentPeriodEnd = time.Unix(periodEnd, 0).UTC()
	}
	if pl.CancelAt != nil {
		t := time.Unix(*pl.CancelAt, 0).UTC()
		rec.CancelAt = &t
	}
	if existing != nil {
		// Caller-owned fields survive provider-driven merges.
		rec.OrgID = existing.OrgID
		rec.UserID = existing.UserID
	}

	if err := tx.PutSubscription(ctx, &rec); err != nil {
		return mergeSkip, err
	}
	if existing == nil {
		return mergeInsert, nil
	}
	return mergeUpdate, nil
}

type checkoutSessionPayload struct {
	ID       string            `json:"id"`
	Customer json.RawMessage   `json:"customer"`
	Status   string            `json:"status"`
	Mode     string            `json:"mode"`
	Metadata map[string]string `json:"metadata"`
}

func mergeCheckoutSession(ctx context.Context, tx Tx, ev *Event, opts mergeOptions) (mergeDecision, error) {
	var pl checkoutSessionPayload
	if err := json.Unmarshal(ev.Object, &pl); err != nil {
		return mergeSkip, fmt.Errorf("%w: checkout session: %v", ErrUnknownResourceShape, err)
	}
	if pl.ID == "" {
		return mergeSkip, fmt.Errorf("%w: checkout session without id", ErrUnknownResourceShape)
	}

	existing, err := tx.GetCheckoutSession(ctx, pl.ID)
	if err != nil && err != ErrNotFound {
		return mergeSkip, err
	}
	if existing != nil && stale(opts, ev, existing.UpdatedAt) {
		return mergeSkip, nil
	}

	rec := CheckoutSession{
		ID:         pl.ID,
		CustomerID: idFromRef(pl.Customer),
		Status:     pl.Status,
		Mode:       CheckoutMode(pl.Mode),
		Metadata:   pl.Metadata,
		UpdatedAt:  ev.Created,
	}
	if err := tx.PutCheckoutSession(ctx, &rec); err != nil {
		return mergeSkip, err
	}
	if existing == nil {
		return mergeInsert, nil
	}
	return mergeUpdate, nil
}

type paymentPayload struct {
	ID       string            `json:"id"`
	Customer json.RawMessage   `json:"customer"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Created  int64             `json:"created"`
	Metadata map[string]string `json:"metadata"`
}

func mergePayment(ctx context.Context, tx Tx, ev *Event, opts mergeOptions) (mergeDecision, error) {
	var pl paymentPayload
	if err := json.Unmarshal(ev.Object, &pl); err != nil {
		return mergeSkip, fmt.Errorf("%w: payment intent: %v", ErrUnknownResourceShape, err)
	}
	if pl.ID == "" {
		return mergeSkip, fmt.Errorf("%w: payment intent without id", ErrUnknownResourceShape)
	}

	existing, err := tx.GetPayment(ctx, pl.ID)
	if err != nil && err != ErrNotFound {
		return mergeSkip, err
	}
	if existing != nil && stale(opts, ev, existing.UpdatedAt) {
		return mergeSkip, nil
	}

	rec := Payment{
		ID:         pl.ID,
		CustomerID: idFromRef(pl.Customer),
		Amount:     pl.Amount,
		Currency:   pl.Currency,
		Status:     pl.Status,
		Metadata:   pl.Metadata,
		UpdatedAt:  ev.Created,
	}
	if pl.Created > 0 {
		rec.CreatedAt = time.Unix(pl.Created, 0).UTC()
	}
	if existing != nil {
		rec.OrgID = existing.OrgID
		rec.UserID = existing.UserID
	} else {
		// First sight of this payment: seed owner tags from checkout metadata.
		rec.OrgID = pl.Metadata["orgId"]
		rec.UserID = pl.Metadata["userId"]
	}

	if err := tx.PutPayment(ctx, &rec); err != nil {
		return mergeSkip, err
	}
	if existing == nil {
		return mergeInsert, nil
	}
	return mergeUpdate, nil
}

type invoicePayload struct {
	ID           string          `json:"id"`
	Customer     json.RawMessage `json:"customer"`
	Subscription json.RawMessage `json:"subscription"`
	Status       string          `json:"status"`
	AmountDue    int64           `json:"amount_due"`
	AmountPaid   int64           `json:"amount_paid"`
	Created      int64           `json:"created"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func mergeInvoice(ctx context.Context, tx Tx, ev *Event, opts mergeOptions) (mergeDecision, error) {
	var pl invoicePayload
	if err := json.Unmarshal(ev.Object, &pl); err != nil {
		return mergeSkip, fmt.Errorf("%w: invoice: %v", ErrUnknownResourceShape, err)
	}
	if pl.ID == "" {
		return mergeSkip, fmt.Errorf("%w: invoice without id", ErrUnknownResourceShape)
	}

	existing, err := tx.GetInvoice(ctx, pl.ID)
	if err != nil && err != ErrNotFound {
		return mergeSkip, err
	}
	if existing != nil && stale(opts, ev, existing.UpdatedAt) {
		return mergeSkip, nil
	}

	subID := idFromRef(pl.Subscription)
	if subID == "" && pl.Parent != nil && pl.Parent.SubscriptionDetails != nil {
		subID = idFromRef(pl.Parent.SubscriptionDetails.Subscription)
	}

	rec := Invoice{
		ID:             pl.ID,
		CustomerID:     idFromRef(pl.Customer),
		SubscriptionID: subID,
		Status:         pl.Status,
		AmountDue:      pl.AmountDue,
		AmountPaid:     pl.AmountPaid,
		UpdatedAt:      ev.Created,
	}
	if pl.Created > 0 {
		rec.CreatedAt = time.Unix(pl.Created, 0).UTC()
	}
	if existing != nil {
		rec.OrgID = existing.OrgID
		rec.UserID = existing.UserID
	} else if subID != "" {
		// First sight: inherit owner tags from the owning subscription if it
		// has already arrived. Its absence is tolerated.
		if sub, err := tx.GetSubscription(ctx, subID); err == nil {
			rec.OrgID = sub.OrgID
			rec.UserID = sub.UserID
		} else if err != ErrNotFound {
			return mergeSkip, err
		}
	}

	if err := tx.PutInvoice(ctx, &rec); err != nil {
		return mergeSkip, err
	}
	if existing == nil {
		return mergeInsert, nil
	}
	return mergeUpdate, nil
}
