package stripesync

import (
	"context"
	"errors"
	"testing"
)

func TestGetProductWithPrices(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	p.Process(ctx, makeEvent(t, "evt_1", "product.created", 100,
		map[string]any{"id": "prod_1", "name": "Starter", "active": true}))
	p.Process(ctx, makeEvent(t, "evt_2", "price.created", 100, map[string]any{
		"id": "price_1", "product": "prod_1", "currency": "usd", "active": true, "unit_amount": 900,
	}))
	p.Process(ctx, makeEvent(t, "evt_3", "price.created", 100, map[string]any{
		"id": "price_2", "product": "prod_1", "currency": "usd", "active": false, "unit_amount": 500,
	}))

	pw, err := p.GetProductWithPrices(ctx, "prod_1")
	if err != nil {
		t.Fatalf("GetProductWithPrices() failed: %v", err)
	}
	if pw.Product.Name != "Starter" {
		t.Errorf("Name = %q", pw.Product.Name)
	}
	// Inactive prices are included; filtering is the caller's choice.
	if len(pw.Prices) != 2 {
		t.Errorf("len(Prices) = %d, want 2", len(pw.Prices))
	}

	if _, err := p.GetProductWithPrices(ctx, "prod_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing product err = %v, want ErrNotFound", err)
	}
}

func TestOwnerScopedQueries(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	p.Process(ctx, makeEvent(t, "evt_1", "customer.subscription.created", 100,
		map[string]any{"id": "sub_1", "customer": "cus_1", "status": "active"}))
	p.Process(ctx, makeEvent(t, "evt_2", "customer.subscription.created", 100,
		map[string]any{"id": "sub_2", "customer": "cus_2", "status": "active"}))

	org := "org_1"
	if err := p.SetSubscriptionOwner(ctx, "sub_1", OwnerUpdate{OrgID: &org}); err != nil {
		t.Fatalf("SetSubscriptionOwner() failed: %v", err)
	}

	subs, err := p.ListSubscriptionsByOrg(ctx, "org_1")
	if err != nil {
		t.Fatalf("ListSubscriptionsByOrg() failed: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "sub_1" {
		t.Errorf("subs = %+v, want just sub_1", subs)
	}

	// Untagged records never match an empty owner id.
	subs, err = p.ListSubscriptionsByOrg(ctx, "")
	if err != nil {
		t.Fatalf("ListSubscriptionsByOrg() failed: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("empty org id matched %d records", len(subs))
	}
}
