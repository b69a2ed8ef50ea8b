// Package stripesync reconciles Stripe webhook deliveries into a local
// canonical record of billing state. Deliveries are at-least-once and
// loosely ordered; the processor applies each event with an idempotent,
// order-tolerant merge and fans it out to caller-registered handlers.
package stripesync

import "time"

// Metadata is an opaque string-keyed map carried verbatim from the provider
// or the embedding application. The processor never interprets its keys.
type Metadata map[string]string

// PriceKind distinguishes one-time from recurring prices.
type PriceKind string

const (
	PriceKindOneTime   PriceKind = "one_time"
	PriceKindRecurring PriceKind = "recurring"
)

// CheckoutMode mirrors the provider's checkout session modes.
type CheckoutMode string

const (
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModeSetup        CheckoutMode = "setup"
)

// SubscriptionStatus is one of the provider's subscription lifecycle states.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

// Product is the local record of a provider product.
// Products are never hard-deleted; a product.deleted event clears Active.
type Product struct {
	ID             string
	Name           string
	Description    string
	Active         bool
	DefaultPriceID string
	Type           string
	Images         []string
	Metadata       Metadata

	// UpdatedAt is the creation timestamp of the last event applied.
	UpdatedAt time.Time
}

// PriceTier is one row of a tiered pricing table. UpTo is nil on the final
// tier, meaning unbounded; the sentinel is never conflated with a numeric
// bound.
type PriceTier struct {
	UpTo              *int64
	UnitAmount        int64
	FlatAmount        int64
	UnitAmountDecimal string
}

// Recurring holds the cadence fields of a recurring price.
type Recurring struct {
	Interval      string
	IntervalCount int64
	UsageType     string
}

// Price is the local record of a provider price. ProductID may reference a
// product that has not arrived yet; the reference is not enforced.
type Price struct {
	ID         string
	ProductID  string
	Active     bool
	Currency   string
	Kind       PriceKind
	UnitAmount *int64
	Recurring  *Recurring
	Tiers      []PriceTier
	LookupKey  string
	Metadata   Metadata
	UpdatedAt  time.Time
}

// Customer is the local record of a provider customer.
type Customer struct {
	ID        string
	Email     string
	Name      string
	Metadata  Metadata
	UpdatedAt time.Time
}

// Subscription is the local record of a provider subscription.
//
// OrgID and UserID are caller-owned: they are set only through
// SetSubscriptionOwner and survive provider-driven merges.
type Subscription struct {
	ID                string
	CustomerID        string
	Status            SubscriptionStatus
	PriceID           string
	ItemID            string
	Quantity          int64
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	CancelAt          *time.Time
	Metadata          Metadata
	OrgID             string
	UserID            string
	UpdatedAt         time.Time
}

// CheckoutSession is the local record of a provider checkout session.
type CheckoutSession struct {
	ID         string
	CustomerID string
	Status     string
	Mode       CheckoutMode
	Metadata   Metadata
	UpdatedAt  time.Time
}

// Payment is the local record of a payment intent.
type Payment struct {
	ID         string
	CustomerID string
	Amount     int64
	Currency   string
	Status     string
	CreatedAt  time.Time
	Metadata   Metadata
	OrgID      string
	UserID     string
	UpdatedAt  time.Time
}

// Invoice is the local record of a provider invoice.
type Invoice struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	Status         string
	AmountDue      int64
	AmountPaid     int64
	CreatedAt      time.Time
	OrgID          string
	UserID         string
	UpdatedAt      time.Time
}

// ProductWithPrices is the compound read of a product and its prices.
type ProductWithPrices struct {
	Product Product
	Prices  []Price
}

// OwnerUpdate carries the caller-owned fields written by
// SetSubscriptionOwner. Nil pointers leave the stored value untouched.
type OwnerUpdate struct {
	OrgID    *string
	UserID   *string
	Metadata Metadata
}
