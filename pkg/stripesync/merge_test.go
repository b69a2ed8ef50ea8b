package stripesync

import (
	"context"
	"errors"
	"testing"
)

func TestMergeProductInsertAndUpdate(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	obj := map[string]any{
		"id":     "prod_1",
		"name":   "Starter",
		"active": true,
		"type":   "service",
	}
	o := p.Process(ctx, makeEvent(t, "evt_1", "product.created", 100, obj))
	if o.State != StateCompleted {
		t.Fatalf("state = %v, want completed", o.State)
	}

	rec, err := store.GetProduct(ctx, "prod_1")
	if err != nil {
		t.Fatalf("GetProduct() failed: %v", err)
	}
	if rec.Name != "Starter" || !rec.Active {
		t.Errorf("unexpected record: %+v", rec)
	}

	obj["name"] = "Starter v2"
	o = p.Process(ctx, makeEvent(t, "evt_2", "product.updated", 200, obj))
	if o.State != StateCompleted {
		t.Fatalf("state = %v, want completed", o.State)
	}
	rec, _ = store.GetProduct(ctx, "prod_1")
	if rec.Name != "Starter v2" {
		t.Errorf("Name = %q, want Starter v2", rec.Name)
	}
}

func TestMergeProductDeletedKeepsLastKnownFields(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	obj := map[string]any{"id": "prod_1", "name": "Starter", "active": true}
	p.Process(ctx, makeEvent(t, "evt_1", "product.created", 100, obj))

	// Deletion payloads can be sparse; the record keeps its fields.
	p.Process(ctx, makeEvent(t, "evt_2", "product.deleted", 200, map[string]any{"id": "prod_1"}))

	rec, err := store.GetProduct(ctx, "prod_1")
	if err != nil {
		t.Fatalf("GetProduct() failed: %v", err)
	}
	if rec.Active {
		t.Error("product still active after deletion")
	}
	if rec.Name != "Starter" {
		t.Errorf("Name = %q, want Starter", rec.Name)
	}
}

func TestMergeProductDeletedBeforeCreated(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	// Out-of-order: deletion arrives for a product never seen.
	o := p.Process(ctx, makeEvent(t, "evt_1", "product.deleted", 200, map[string]any{"id": "prod_1"}))
	if o.State != StateCompleted {
		t.Fatalf("state = %v, want completed", o.State)
	}

	rec, err := store.GetProduct(ctx, "prod_1")
	if err != nil {
		t.Fatalf("GetProduct() failed: %v", err)
	}
	if rec.Active {
		t.Error("record from deletion payload must be inactive")
	}
}

func TestMergePriceDanglingProductRef(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	// The price references a product that has not arrived. The merge must
	// not fail; the reference stays dangling until the product shows up.
	obj := map[string]any{
		"id":          "price_1",
		"product":     "prod_missing",
		"active":      true,
		"currency":    "usd",
		"type":        "one_time",
		"unit_amount": 1500,
	}
	o := p.Process(ctx, makeEvent(t, "evt_1", "price.created", 100, obj))
	if o.State != StateCompleted {
		t.Fatalf("state = %v, want completed", o.State)
	}

	rec, err := store.GetPrice(ctx, "price_1")
	if err != nil {
		t.Fatalf("GetPrice() failed: %v", err)
	}
	if rec.ProductID != "prod_missing" {
		t.Errorf("ProductID = %q, want prod_missing", rec.ProductID)
	}
	if rec.Kind != PriceKindOneTime {
		t.Errorf("Kind = %q, want one_time", rec.Kind)
	}
}

func TestMergePriceExpandedProductRef(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	obj := map[string]any{
		"id":       "price_1",
		"product":  map[string]any{"id": "prod_1", "name": "Starter"},
		"currency": "usd",
		"active":   true,
		"recurring": map[string]any{
			"interval": "month", "interval_count": 1, "usage_type": "licensed",
		},
	}
	p.Process(ctx, makeEvent(t, "evt_1", "price.created", 100, obj))

	rec, err := store.GetPrice(ctx, "price_1")
	if err != nil {
		t.Fatalf("GetPrice() failed: %v", err)
	}
	if rec.ProductID != "prod_1" {
		t.Errorf("ProductID = %q, want prod_1", rec.ProductID)
	}
	if rec.Kind != PriceKindRecurring || rec.Recurring == nil || rec.Recurring.Interval != "month" {
		t.Errorf("unexpected recurring mapping: %+v", rec)
	}
}

func TestMergePriceTiers(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	obj := map[string]any{
		"id":       "price_1",
		"currency": "usd",
		"active":   true,
		"tiers": []map[string]any{
			{"up_to": 10, "unit_amount": 500},
			{"up_to": 100, "unit_amount": 400},
			{"up_to": nil, "unit_amount": 300},
		},
	}
	o := p.Process(ctx, makeEvent(t, "evt_1", "price.created", 100, obj))
	if o.State != StateCompleted {
		t.Fatalf("state = %v, want completed", o.State)
	}

	rec, err := store.GetPrice(ctx, "price_1")
	if err != nil {
		t.Fatalf("GetPrice() failed: %v", err)
	}
	if len(rec.Tiers) != 3 {
		t.Fatalf("len(Tiers) = %d, want 3", len(rec.Tiers))
	}
	if rec.Tiers[0].UpTo == nil || *rec.Tiers[0].UpTo != 10 {
		t.Errorf("tier 0 bound = %v, want 10", rec.Tiers[0].UpTo)
	}
	if rec.Tiers[2].UpTo != nil {
		t.Error("final tier must be unbounded")
	}
}

func TestMergePriceTierSentinelNormalization(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	// SDK-marshaled payloads encode the unbounded final bound as 0.
	obj := map[string]any{
		"id":       "price_1",
		"currency": "usd",
		"active":   true,
		"tiers": []map[string]any{
			{"up_to": 10, "unit_amount": 500},
			{"up_to": 0, "unit_amount": 300},
		},
	}
	o := p.Process(ctx, makeEvent(t, "evt_1", "price.created", 100, obj))
	if o.State != StateCompleted {
		t.Fatalf("state = %v, want completed", o.State)
	}

	rec, _ := store.GetPrice(ctx, "price_1")
	if rec.Tiers[1].UpTo != nil {
		t.Error("final up_to: 0 should normalize to unbounded")
	}
}

func TestMergePriceTierValidation(t *testing.T) {
	tests := []struct {
		name  string
		tiers []map[string]any
	}{
		{
			"unbounded before final",
			[]map[string]any{
				{"up_to": nil, "unit_amount": 500},
				{"up_to": 100, "unit_amount": 400},
			},
		},
		{
			"non-increasing bounds",
			[]map[string]any{
				{"up_to": 100, "unit_amount": 500},
				{"up_to": 50, "unit_amount": 400},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore()
			p := newTestProcessor(t, store)

			obj := map[string]any{
				"id": "price_1", "currency": "usd", "active": true, "tiers": tt.tiers,
			}
			o := p.Process(context.Background(), makeEvent(t, "evt_1", "price.created", 100, obj))
			if o.State != StateMergeFailed {
				t.Fatalf("state = %v, want merge_failed", o.State)
			}
			if !errors.Is(o.Err, ErrUnknownResourceShape) {
				t.Errorf("err = %v, want ErrUnknownResourceShape", o.Err)
			}
		})
	}
}

func TestMergeSubscriptionItemFallback(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	// Newer API versions carry period end and quantity on the item only.
	obj := map[string]any{
		"id":       "sub_1",
		"customer": "cus_1",
		"status":   "active",
		"items": map[string]any{
			"data": []map[string]any{{
				"id":                 "si_1",
				"quantity":           5,
				"current_period_end": 1700001000,
				"price":              map[string]any{"id": "price_1"},
			}},
		},
	}
	p.Process(ctx, makeEvent(t, "evt_1", "customer.subscription.created", 100, obj))

	rec, err := store.GetSubscription(ctx, "sub_1")
	if err != nil {
		t.Fatalf("GetSubscription() failed: %v", err)
	}
	if rec.ItemID != "si_1" || rec.PriceID != "price_1" {
		t.Errorf("item mapping wrong: %+v", rec)
	}
	if rec.Quantity != 5 {
		t.Errorf("Quantity = %d, want 5", rec.Quantity)
	}
	if rec.CurrentPeriodEnd.Unix() != 1700001000 {
		t.Errorf("CurrentPeriodEnd = %v", rec.CurrentPeriodEnd)
	}
	if rec.Status != SubscriptionStatusActive {
		t.Errorf("Status = %q, want active", rec.Status)
	}
}

func TestMergeSubscriptionPreservesOwner(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	obj := map[string]any{"id": "sub_1", "customer": "cus_1", "status": "active"}
	p.Process(ctx, makeEvent(t, "evt_1", "customer.subscription.created", 100, obj))

	org := "org_42"
	if err := p.SetSubscriptionOwner(ctx, "sub_1", OwnerUpdate{OrgID: &org}); err != nil {
		t.Fatalf("SetSubscriptionOwner() failed: %v", err)
	}

	// A later provider update must not clear the caller-owned field.
	obj["status"] = "past_due"
	p.Process(ctx, makeEvent(t, "evt_2", "customer.subscription.updated", 200, obj))

	rec, _ := store.GetSubscription(ctx, "sub_1")
	if rec.OrgID != "org_42" {
		t.Errorf("OrgID = %q, want org_42", rec.OrgID)
	}
	if rec.Status != SubscriptionStatusPastDue {
		t.Errorf("Status = %q, want past_due", rec.Status)
	}
}

func TestMergeCustomerVsSubscriptionRouting(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	// customer.subscription.* must route to the subscription merger, plain
	// customer.* to the customer merger.
	p.Process(ctx, makeEvent(t, "evt_1", "customer.created", 100,
		map[string]any{"id": "cus_1", "email": "a@example.com"}))
	p.Process(ctx, makeEvent(t, "evt_2", "customer.subscription.created", 100,
		map[string]any{"id": "sub_1", "customer": "cus_1", "status": "active"}))

	if _, err := store.GetCustomer(ctx, "cus_1"); err != nil {
		t.Errorf("customer not merged: %v", err)
	}
	if _, err := store.GetSubscription(ctx, "sub_1"); err != nil {
		t.Errorf("subscription not merged: %v", err)
	}
	if _, err := store.GetCustomer(ctx, "sub_1"); !errors.Is(err, ErrNotFound) {
		t.Error("subscription event leaked into customer records")
	}
}

func TestMergePaymentSeedsOwnerFromMetadata(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	obj := map[string]any{
		"id":       "pi_1",
		"customer": "cus_1",
		"amount":   2000,
		"currency": "usd",
		"status":   "succeeded",
		"metadata": map[string]string{"orgId": "org_1", "userId": "user_1"},
	}
	p.Process(ctx, makeEvent(t, "evt_1", "payment_intent.succeeded", 100, obj))

	rec, err := store.GetPayment(ctx, "pi_1")
	if err != nil {
		t.Fatalf("GetPayment() failed: %v", err)
	}
	if rec.OrgID != "org_1" || rec.UserID != "user_1" {
		t.Errorf("owner tags not seeded: %+v", rec)
	}

	// Updates without metadata keep the seeded tags.
	delete(obj, "metadata")
	p.Process(ctx, makeEvent(t, "evt_2", "payment_intent.updated", 200, obj))
	rec, _ = store.GetPayment(ctx, "pi_1")
	if rec.OrgID != "org_1" {
		t.Errorf("OrgID lost on update: %+v", rec)
	}
}

func TestMergeInvoiceInheritsOwnerFromSubscription(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	p.Process(ctx, makeEvent(t, "evt_1", "customer.subscription.created", 100,
		map[string]any{"id": "sub_1", "customer": "cus_1", "status": "active"}))
	org := "org_7"
	if err := p.SetSubscriptionOwner(ctx, "sub_1", OwnerUpdate{OrgID: &org}); err != nil {
		t.Fatalf("SetSubscriptionOwner() failed: %v", err)
	}

	obj := map[string]any{
		"id":           "in_1",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"status":       "paid",
		"amount_due":   1000,
		"amount_paid":  1000,
	}
	p.Process(ctx, makeEvent(t, "evt_2", "invoice.paid", 200, obj))

	rec, err := store.GetInvoice(ctx, "in_1")
	if err != nil {
		t.Fatalf("GetInvoice() failed: %v", err)
	}
	if rec.OrgID != "org_7" {
		t.Errorf("OrgID = %q, want org_7", rec.OrgID)
	}
	if rec.SubscriptionID != "sub_1" {
		t.Errorf("SubscriptionID = %q, want sub_1", rec.SubscriptionID)
	}
}

func TestMergeInvoiceParentSubscriptionDetails(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	// Newer payloads nest the subscription ref under parent.
	obj := map[string]any{
		"id":       "in_1",
		"customer": "cus_1",
		"status":   "open",
		"parent": map[string]any{
			"subscription_details": map[string]any{"subscription": "sub_9"},
		},
	}
	p.Process(ctx, makeEvent(t, "evt_1", "invoice.created", 100, obj))

	rec, err := store.GetInvoice(ctx, "in_1")
	if err != nil {
		t.Fatalf("GetInvoice() failed: %v", err)
	}
	if rec.SubscriptionID != "sub_9" {
		t.Errorf("SubscriptionID = %q, want sub_9", rec.SubscriptionID)
	}
}

func TestMergeMissingIDRejected(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)

	o := p.Process(context.Background(),
		makeEvent(t, "evt_1", "product.created", 100, map[string]any{"name": "no id"}))
	if o.State != StateMergeFailed {
		t.Fatalf("state = %v, want merge_failed", o.State)
	}
	if !errors.Is(o.Err, ErrUnknownResourceShape) {
		t.Errorf("err = %v, want ErrUnknownResourceShape", o.Err)
	}
}

func TestStaleEventGuard(t *testing.T) {
	store := newTestStore()
	p, err := New(Config{Store: store, WebhookSecret: "whsec_test", StaleEventGuard: true})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx := context.Background()

	p.Process(ctx, makeEvent(t, "evt_2", "customer.updated", 200,
		map[string]any{"id": "cus_1", "email": "new@example.com"}))

	// Older event arrives late and must not clobber the newer state.
	o := p.Process(ctx, makeEvent(t, "evt_1", "customer.created", 100,
		map[string]any{"id": "cus_1", "email": "old@example.com"}))
	if o.State != StateCompleted {
		t.Fatalf("state = %v, want completed", o.State)
	}

	rec, _ := store.GetCustomer(ctx, "cus_1")
	if rec.Email != "new@example.com" {
		t.Errorf("Email = %q, stale event clobbered newer state", rec.Email)
	}

	// Equal timestamps still apply.
	p.Process(ctx, makeEvent(t, "evt_3", "customer.updated", 200,
		map[string]any{"id": "cus_1", "email": "same@example.com"}))
	rec, _ = store.GetCustomer(ctx, "cus_1")
	if rec.Email != "same@example.com" {
		t.Errorf("Email = %q, equal-timestamp event should apply", rec.Email)
	}
}

func TestArrivalOrderLastWriteWinsByDefault(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	p.Process(ctx, makeEvent(t, "evt_2", "customer.updated", 200,
		map[string]any{"id": "cus_1", "email": "new@example.com"}))
	p.Process(ctx, makeEvent(t, "evt_1", "customer.created", 100,
		map[string]any{"id": "cus_1", "email": "old@example.com"}))

	rec, _ := store.GetCustomer(ctx, "cus_1")
	if rec.Email != "old@example.com" {
		t.Errorf("Email = %q, default mode is last write by arrival", rec.Email)
	}
}
