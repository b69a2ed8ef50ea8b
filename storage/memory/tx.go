package memory

import (
	"context"
	"fmt"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// tx stages writes until fn returns; the whole store is locked for the
// duration, which serializes transactions (acceptable for a backend meant
// for tests and single-process development).
type tx struct {
	store *Store

	products  map[string]*stripesync.Product
	prices    map[string]*stripesync.Price
	customers map[string]*stripesync.Customer
	subs      map[string]*stripesync.Subscription
	sessions  map[string]*stripesync.CheckoutSession
	payments  map[string]*stripesync.Payment
	invoices  map[string]*stripesync.Invoice
}

// InTx implements stripesync.Store. Writes are staged and applied only when
// fn returns nil, so partial writes never become visible.
func (s *Store) InTx(ctx context.Context, fn func(stripesync.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		store:     s,
		products:  make(map[string]*stripesync.Product),
		prices:    make(map[string]*stripesync.Price),
		customers: make(map[string]*stripesync.Customer),
		subs:      make(map[string]*stripesync.Subscription),
		sessions:  make(map[string]*stripesync.CheckoutSession),
		payments:  make(map[string]*stripesync.Payment),
		invoices:  make(map[string]*stripesync.Invoice),
	}

	if err := fn(t); err != nil {
		return err
	}

	for id, p := range t.products {
		s.products[id] = p
	}
	for id, p := range t.prices {
		s.prices[id] = p
	}
	for id, c := range t.customers {
		s.customers[id] = c
	}
	for id, sub := range t.subs {
		s.subs[id] = sub
	}
	for id, cs := range t.sessions {
		s.sessions[id] = cs
	}
	for id, p := range t.payments {
		s.payments[id] = p
	}
	for id, i := range t.invoices {
		s.invoices[id] = i
	}
	return nil
}

func (t *tx) GetProduct(ctx context.Context, id string) (*stripesync.Product, error) {
	if p, ok := t.products[id]; ok {
		return copyProduct(p), nil
	}
	return getProduct(t.store, id)
}

func (t *tx) GetPrice(ctx context.Context, id string) (*stripesync.Price, error) {
	if p, ok := t.prices[id]; ok {
		return copyPrice(p), nil
	}
	return getPrice(t.store, id)
}

func (t *tx) GetCustomer(ctx context.Context, id string) (*stripesync.Customer, error) {
	if c, ok := t.customers[id]; ok {
		return copyCustomer(c), nil
	}
	return getCustomer(t.store, id)
}

func (t *tx) GetSubscription(ctx context.Context, id string) (*stripesync.Subscription, error) {
	if sub, ok := t.subs[id]; ok {
		return copySubscription(sub), nil
	}
	return getSubscription(t.store, id)
}

func (t *tx) GetCheckoutSession(ctx context.Context, id string) (*stripesync.CheckoutSession, error) {
	if cs, ok := t.sessions[id]; ok {
		return copySession(cs), nil
	}
	return getSession(t.store, id)
}

func (t *tx) GetPayment(ctx context.Context, id string) (*stripesync.Payment, error) {
	if p, ok := t.payments[id]; ok {
		return copyPayment(p), nil
	}
	return getPayment(t.store, id)
}

func (t *tx) GetInvoice(ctx context.Context, id string) (*stripesync.Invoice, error) {
	if i, ok := t.invoices[id]; ok {
		return copyInvoice(i), nil
	}
	return getInvoice(t.store, id)
}

func (t *tx) PutProduct(ctx context.Context, p *stripesync.Product) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid product")
	}
	t.products[p.ID] = copyProduct(p)
	return nil
}

func (t *tx) PutPrice(ctx context.Context, p *stripesync.Price) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid price")
	}
	t.prices[p.ID] = copyPrice(p)
	return nil
}

func (t *tx) PutCustomer(ctx context.Context, c *stripesync.Customer) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("invalid customer")
	}
	t.customers[c.ID] = copyCustomer(c)
	return nil
}

func (t *tx) PutSubscription(ctx context.Context, sub *stripesync.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}
	t.subs[sub.ID] = copySubscription(sub)
	return nil
}

func (t *tx) PutCheckoutSession(ctx context.Context, cs *stripesync.CheckoutSession) error {
	if cs == nil || cs.ID == "" {
		return fmt.Errorf("invalid checkout session")
	}
	t.sessions[cs.ID] = copySession(cs)
	return nil
}

func (t *tx) PutPayment(ctx context.Context, p *stripesync.Payment) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid payment")
	}
	t.payments[p.ID] = copyPayment(p)
	return nil
}

func (t *tx) PutInvoice(ctx context.Context, i *stripesync.Invoice) error {
	if i == nil || i.ID == "" {
		return fmt.Errorf("invalid invoice")
	}
	t.invoices[i.ID] = copyInvoice(i)
	return nil
}
