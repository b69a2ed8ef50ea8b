package stripesync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

// testStore is a minimal in-package Store for exercising the processor
// without importing a storage backend.
type testStore struct {
	products  map[string]*Product
	prices    map[string]*Price
	customers map[string]*Customer
	subs      map[string]*Subscription
	sessions  map[string]*CheckoutSession
	payments  map[string]*Payment
	invoices  map[string]*Invoice
	applied   map[string]struct{}

	failHasApplied  bool
	failMarkApplied bool
}

func newTestStore() *testStore {
	return &testStore{
		products:  make(map[string]*Product),
		prices:    make(map[string]*Price),
		customers: make(map[string]*Customer),
		subs:      make(map[string]*Subscription),
		sessions:  make(map[string]*CheckoutSession),
		payments:  make(map[string]*Payment),
		invoices:  make(map[string]*Invoice),
		applied:   make(map[string]struct{}),
	}
}

func (s *testStore) GetProduct(_ context.Context, id string) (*Product, error) {
	if p, ok := s.products[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *testStore) GetPrice(_ context.Context, id string) (*Price, error) {
	if p, ok := s.prices[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *testStore) GetCustomer(_ context.Context, id string) (*Customer, error) {
	if c, ok := s.customers[id]; ok {
		cc := *c
		return &cc, nil
	}
	return nil, ErrNotFound
}

func (s *testStore) GetSubscription(_ context.Context, id string) (*Subscription, error) {
	if sub, ok := s.subs[id]; ok {
		c := *sub
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *testStore) GetCheckoutSession(_ context.Context, id string) (*CheckoutSession, error) {
	if cs, ok := s.sessions[id]; ok {
		c := *cs
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *testStore) GetPayment(_ context.Context, id string) (*Payment, error) {
	if p, ok := s.payments[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *testStore) GetInvoice(_ context.Context, id string) (*Invoice, error) {
	if i, ok := s.invoices[id]; ok {
		c := *i
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *testStore) ListProducts(_ context.Context, activeOnly bool) ([]Product, error) {
	var out []Product
	for _, p := range s.products {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *testStore) ListPricesByProduct(_ context.Context, productID string, activeOnly bool) ([]Price, error) {
	var out []Price
	for _, p := range s.prices {
		if p.ProductID != productID {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *testStore) ListSubscriptionsByOrg(_ context.Context, orgID string) ([]Subscription, error) {
	var out []Subscription
	for _, sub := range s.subs {
		if orgID != "" && sub.OrgID == orgID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *testStore) ListSubscriptionsByUser(_ context.Context, userID string) ([]Subscription, error) {
	var out []Subscription
	for _, sub := range s.subs {
		if userID != "" && sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *testStore) ListPaymentsByOrg(_ context.Context, orgID string) ([]Payment, error) {
	var out []Payment
	for _, p := range s.payments {
		if orgID != "" && p.OrgID == orgID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *testStore) ListPaymentsByUser(_ context.Context, userID string) ([]Payment, error) {
	var out []Payment
	for _, p := range s.payments {
		if userID != "" && p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *testStore) ListInvoicesByOrg(_ context.Context, orgID string) ([]Invoice, error) {
	var out []Invoice
	for _, i := range s.invoices {
		if orgID != "" && i.OrgID == orgID {
			out = append(out, *i)
		}
	}
	return out, nil
}

func (s *testStore) ListInvoicesByUser(_ context.Context, userID string) ([]Invoice, error) {
	var out []Invoice
	for _, i := range s.invoices {
		if userID != "" && i.UserID == userID {
			out = append(out, *i)
		}
	}
	return out, nil
}

func (s *testStore) InTx(ctx context.Context, fn func(Tx) error) error {
	return fn(&testTx{s})
}

func (s *testStore) HasApplied(_ context.Context, eventID string) (bool, error) {
	if s.failHasApplied {
		return false, fmt.Errorf("store down")
	}
	_, ok := s.applied[eventID]
	return ok, nil
}

func (s *testStore) MarkApplied(_ context.Context, eventID string) error {
	if s.failMarkApplied {
		return fmt.Errorf("store down")
	}
	s.applied[eventID] = struct{}{}
	return nil
}

// testTx writes through to the backing maps. Test mergers fail before
// writing, so rollback fidelity is not needed here.
type testTx struct {
	s *testStore
}

func (t *testTx) GetProduct(ctx context.Context, id string) (*Product, error) {
	return t.s.GetProduct(ctx, id)
}

func (t *testTx) GetPrice(ctx context.Context, id string) (*Price, error) {
	return t.s.GetPrice(ctx, id)
}

func (t *testTx) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	return t.s.GetCustomer(ctx, id)
}

func (t *testTx) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	return t.s.GetSubscription(ctx, id)
}

func (t *testTx) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	return t.s.GetCheckoutSession(ctx, id)
}

func (t *testTx) GetPayment(ctx context.Context, id string) (*Payment, error) {
	return t.s.GetPayment(ctx, id)
}

func (t *testTx) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	return t.s.GetInvoice(ctx, id)
}

func (t *testTx) PutProduct(_ context.Context, p *Product) error {
	c := *p
	t.s.products[p.ID] = &c
	return nil
}

func (t *testTx) PutPrice(_ context.Context, p *Price) error {
	c := *p
	t.s.prices[p.ID] = &c
	return nil
}

func (t *testTx) PutCustomer(_ context.Context, c *Customer) error {
	cc := *c
	t.s.customers[c.ID] = &cc
	return nil
}

func (t *testTx) PutSubscription(_ context.Context, sub *Subscription) error {
	c := *sub
	t.s.subs[sub.ID] = &c
	return nil
}

func (t *testTx) PutCheckoutSession(_ context.Context, cs *CheckoutSession) error {
	c := *cs
	t.s.sessions[cs.ID] = &c
	return nil
}

func (t *testTx) PutPayment(_ context.Context, p *Payment) error {
	c := *p
	t.s.payments[p.ID] = &c
	return nil
}

func (t *testTx) PutInvoice(_ context.Context, i *Invoice) error {
	c := *i
	t.s.invoices[i.ID] = &c
	return nil
}

func newTestProcessor(t *testing.T, store Store) *Processor {
	t.Helper()
	p, err := New(Config{Store: store, WebhookSecret: "whsec_test"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return p
}

// makeEvent builds an Event around a resource payload.
func makeEvent(t *testing.T, id, eventType string, created int64, object any) *Event {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("failed to marshal object: %v", err)
	}
	return &Event{
		ID:      id,
		Type:    eventType,
		Created: time.Unix(created, 0).UTC(),
		Object:  raw,
	}
}
