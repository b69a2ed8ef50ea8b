// Package memory provides an in-memory implementation of the
// stripesync.Store interface. This implementation is primarily intended for
// testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// Store implements stripesync.Store using in-memory maps.
type Store struct {
	mu sync.RWMutex

	products  map[string]*stripesync.Product
	prices    map[string]*stripesync.Price
	customers map[string]*stripesync.Customer
	subs      map[string]*stripesync.Subscription
	sessions  map[string]*stripesync.CheckoutSession
	payments  map[string]*stripesync.Payment
	invoices  map[string]*stripesync.Invoice
	applied   map[string]struct{}
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		products:  make(map[string]*stripesync.Product),
		prices:    make(map[string]*stripesync.Price),
		customers: make(map[string]*stripesync.Customer),
		subs:      make(map[string]*stripesync.Subscription),
		sessions:  make(map[string]*stripesync.CheckoutSession),
		payments:  make(map[string]*stripesync.Payment),
		invoices:  make(map[string]*stripesync.Invoice),
		applied:   make(map[string]struct{}),
	}
}

func copyMetadata(m stripesync.Metadata) stripesync.Metadata {
	if m == nil {
		return nil
	}
	out := make(stripesync.Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyProduct(p *stripesync.Product) *stripesync.Product {
	c := *p
	c.Metadata = copyMetadata(p.Metadata)
	c.Images = append([]string(nil), p.Images...)
	return &c
}

func copyPrice(p *stripesync.Price) *stripesync.Price {
	c := *p
	c.Metadata = copyMetadata(p.Metadata)
	if p.UnitAmount != nil {
		v := *p.UnitAmount
		c.UnitAmount = &v
	}
	if p.Recurring != nil {
		r := *p.Recurring
		c.Recurring = &r
	}
	if p.Tiers != nil {
		c.Tiers = make([]stripesync.PriceTier, len(p.Tiers))
		for i, t := range p.Tiers {
			c.Tiers[i] = t
			if t.UpTo != nil {
				v := *t.UpTo
				c.Tiers[i].UpTo = &v
			}
		}
	}
	return &c
}

func copyCustomer(c *stripesync.Customer) *stripesync.Customer {
	out := *c
	out.Metadata = copyMetadata(c.Metadata)
	return &out
}

func copySubscription(s *stripesync.Subscription) *stripesync.Subscription {
	out := *s
	out.Metadata = copyMetadata(s.Metadata)
	if s.CancelAt != nil {
		v := *s.CancelAt
		out.CancelAt = &v
	}
	return &out
}

func copySession(cs *stripesync.CheckoutSession) *stripesync.CheckoutSession {
	out := *cs
	out.Metadata = copyMetadata(cs.Metadata)
	return &out
}

func copyPayment(p *stripesync.Payment) *stripesync.Payment {
	out := *p
	out.Metadata = copyMetadata(p.Metadata)
	return &out
}

func copyInvoice(i *stripesync.Invoice) *stripesync.Invoice {
	out := *i
	return &out
}

// GetProduct implements stripesync.Reader.
func (s *Store) GetProduct(ctx context.Context, id string) (*stripesync.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProduct(s, id)
}

// GetPrice implements stripesync.Reader.
func (s *Store) GetPrice(ctx context.Context, id string) (*stripesync.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPrice(s, id)
}

// GetCustomer implements stripesync.Reader.
func (s *Store) GetCustomer(ctx context.Context, id string) (*stripesync.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCustomer(s, id)
}

// GetSubscription implements stripesync.Reader.
func (s *Store) GetSubscription(ctx context.Context, id string) (*stripesync.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSubscription(s, id)
}

// GetCheckoutSession implements stripesync.Reader.
func (s *Store) GetCheckoutSession(ctx context.Context, id string) (*stripesync.CheckoutSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSession(s, id)
}

// GetPayment implements stripesync.Reader.
func (s *Store) GetPayment(ctx context.Context, id string) (*stripesync.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPayment(s, id)
}

// GetInvoice implements stripesync.Reader.
func (s *Store) GetInvoice(ctx context.Context, id string) (*stripesync.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvoice(s, id)
}

func getProduct(s *Store, id string) (*stripesync.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, stripesync.ErrNotFound
	}
	return copyProduct(p), nil
}

func getPrice(s *Store, id string) (*stripesync.Price, error) {
	p, ok := s.prices[id]
	if !ok {
		return nil, stripesync.ErrNotFound
	}
	return copyPrice(p), nil
}

func getCustomer(s *Store, id string) (*stripesync.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, stripesync.ErrNotFound
	}
	return copyCustomer(c), nil
}

func getSubscription(s *Store, id string) (*stripesync.Subscription, error) {
	sub, ok := s.subs[id]
	if !ok {
		return nil, stripesync.ErrNotFound
	}
	return copySubscription(sub), nil
}

func getSession(s *Store, id string) (*stripesync.CheckoutSession, error) {
	cs, ok := s.sessions[id]
	if !ok {
		return nil, stripesync.ErrNotFound
	}
	return copySession(cs), nil
}

func getPayment(s *Store, id string) (*stripesync.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, stripesync.ErrNotFound
	}
	return copyPayment(p), nil
}

func getInvoice(s *Store, id string) (*stripesync.Invoice, error) {
	i, ok := s.invoices[id]
	if !ok {
		return nil, stripesync.ErrNotFound
	}
	return copyInvoice(i), nil
}

// ListProducts implements stripesync.Querier.
func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]stripesync.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []stripesync.Product
	for _, p := range s.products {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, *copyProduct(p))
	}
	return out, nil
}

// ListPricesByProduct implements stripesync.Querier.
func (s *Store) ListPricesByProduct(ctx context.Context, productID string, activeOnly bool) ([]stripesync.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []stripesync.Price
	for _, p := range s.prices {
		if p.ProductID != productID {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, *copyPrice(p))
	}
	return out, nil
}

// ListSubscriptionsByOrg implements stripesync.Querier.
func (s *Store) ListSubscriptionsByOrg(ctx context.Context, orgID string) ([]stripesync.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []stripesync.Subscription
	for _, sub := range s.subs {
		if sub.OrgID == orgID && orgID != "" {
			out = append(out, *copySubscription(sub))
		}
	}
	return out, nil
}

// ListSubscriptionsByUser implements stripesync.Querier.
func (s *Store) ListSubscriptionsByUser(ctx context.Context, userID string) ([]stripesync.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []stripesync.Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID && userID != "" {
			out = append(out, *copySubscription(sub))
		}
	}
	return out, nil
}

// ListPaymentsByOrg implements stripesync.Querier.
func (s *Store) ListPaymentsByOrg(ctx context.Context, orgID string) ([]stripesync.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []stripesync.Payment
	for _, p := range s.payments {
		if p.OrgID == orgID && orgID != "" {
			out = append(out, *copyPayment(p))
		}
	}
	return out, nil
}

// ListPaymentsByUser implements stripesync.Querier.
func (s *Store) ListPaymentsByUser(ctx context.Context, userID string) ([]stripesync.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []stripesync.Payment
	for _, p := range s.payments {
		if p.UserID == userID && userID != "" {
			out = append(out, *copyPayment(p))
		}
	}
	return out, nil
}

// ListInvoicesByOrg implements stripesync.Querier.
func (s *Store) ListInvoicesByOrg(ctx context.Context, orgID string) ([]stripesync.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []stripesync.Invoice
	for _, i := range s.invoices {
		if i.OrgID == orgID && orgID != "" {
			out = append(out, *copyInvoice(i))
		}
	}
	return out, nil
}

// ListInvoicesByUser implements stripesync.Querier.
func (s *Store) ListInvoicesByUser(ctx context.Context, userID string) ([]stripesync.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []stripesync.Invoice
	for _, i := range s.invoices {
		if i.UserID == userID && userID != "" {
			out = append(out, *copyInvoice(i))
		}
	}
	return out, nil
}

// HasApplied implements stripesync.Store.
func (s *Store) HasApplied(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.applied[eventID]
	return ok, nil
}

// MarkApplied implements stripesync.Store.
func (s *Store) MarkApplied(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("invalid event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[eventID] = struct{}{}
	return nil
}
