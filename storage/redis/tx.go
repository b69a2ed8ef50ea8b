package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

const maxTxRetries = 5

// tx stages writes during InTx. Reads go to the watched connection, writes
// are queued and flushed in a single MULTI/EXEC pipeline on commit.
type tx struct {
	store *Store
	r     *redis.Tx

	products  map[string]*stripesync.Product
	prices    map[string]*stripesync.Price
	customers map[string]*stripesync.Customer
	subs      map[string]*stripesync.Subscription
	sessions  map[string]*stripesync.CheckoutSession
	payments  map[string]*stripesync.Payment
	invoices  map[string]*stripesync.Invoice
}

// InTx implements stripesync.Store. Optimistic: the transaction watches a
// version key, bumps it on commit, and retries when a concurrent commit
// invalidates the watch.
func (s *Store) InTx(ctx context.Context, fn func(stripesync.Tx) error) error {
	txf := func(rtx *redis.Tx) error {
		t := &tx{
			store:     s,
			r:         rtx,
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
		return t.commit(ctx)
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, s.txVersionKey())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction contention, retries exhausted: %w", redis.TxFailedErr)
}

// commit resolves index membership against the pre-transaction records, then
// flushes all writes atomically.
func (t *tx) commit(ctx context.Context) error {
	s := t.store

	type indexOp struct {
		key string
		id  string
		add bool
	}
	var (
		sets   = make(map[string][]byte)
		idxOps []indexOp
	)
	moveIndex := func(oldKey, newKey, id string) {
		if oldKey == newKey {
			if newKey != "" {
				idxOps = append(idxOps, indexOp{newKey, id, true})
			}
			return
		}
		if oldKey != "" {
			idxOps = append(idxOps, indexOp{oldKey, id, false})
		}
		if newKey != "" {
			idxOps = append(idxOps, indexOp{newKey, id, true})
		}
	}

	for id, p := range t.products {
		raw, err := encode(p)
		if err != nil {
			return err
		}
		sets[s.productKey(id)] = raw
		idxOps = append(idxOps, indexOp{s.productsIndex(), id, true})
	}
	for id, p := range t.prices {
		raw, err := encode(p)
		if err != nil {
			return err
		}
		sets[s.priceKey(id)] = raw
		old, err := getRecord[stripesync.Price](ctx, t.r, s.priceKey(id))
		if err != nil && !errors.Is(err, stripesync.ErrNotFound) {
			return err
		}
		var oldIdx string
		if old != nil && old.ProductID != "" {
			oldIdx = s.pricesByProductIndex(old.ProductID)
		}
		var newIdx string
		if p.ProductID != "" {
			newIdx = s.pricesByProductIndex(p.ProductID)
		}
		moveIndex(oldIdx, newIdx, id)
	}
	for id, c := range t.customers {
		raw, err := encode(c)
		if err != nil {
			return err
		}
		sets[s.customerKey(id)] = raw
	}
	for id, sub := range t.subs {
		raw, err := encode(sub)
		if err != nil {
			return err
		}
		sets[s.subscriptionKey(id)] = raw
		old, err := getRecord[stripesync.Subscription](ctx, t.r, s.subscriptionKey(id))
		if err != nil && !errors.Is(err, stripesync.ErrNotFound) {
			return err
		}
		var oldOrg, oldUser string
		if old != nil {
			oldOrg, oldUser = old.OrgID, old.UserID
		}
		moveIndex(ownerIdx(s.subsByOrgIndex, oldOrg), ownerIdx(s.subsByOrgIndex, sub.OrgID), id)
		moveIndex(ownerIdx(s.subsByUserIndex, oldUser), ownerIdx(s.subsByUserIndex, sub.UserID), id)
	}
	for id, cs := range t.sessions {
		raw, err := encode(cs)
		if err != nil {
			return err
		}
		sets[s.sessionKey(id)] = raw
	}
	for id, p := range t.payments {
		raw, err := encode(p)
		if err != nil {
			return err
		}
		sets[s.paymentKey(id)] = raw
		old, err := getRecord[stripesync.Payment](ctx, t.r, s.paymentKey(id))
		if err != nil && !errors.Is(err, stripesync.ErrNotFound) {
			return err
		}
		var oldOrg, oldUser string
		if old != nil {
			oldOrg, oldUser = old.OrgID, old.UserID
		}
		moveIndex(ownerIdx(s.paymentsByOrgIndex, oldOrg), ownerIdx(s.paymentsByOrgIndex, p.OrgID), id)
		moveIndex(ownerIdx(s.paymentsByUserIndex, oldUser), ownerIdx(s.paymentsByUserIndex, p.UserID), id)
	}
	for id, inv := range t.invoices {
		raw, err := encode(inv)
		if err != nil {
			return err
		}
		sets[s.invoiceKey(id)] = raw
		old, err := getRecord[stripesync.Invoice](ctx, t.r, s.invoiceKey(id))
		if err != nil && !errors.Is(err, stripesync.ErrNotFound) {
			return err
		}
		var oldOrg, oldUser string
		if old != nil {
			oldOrg, oldUser = old.OrgID, old.UserID
		}
		moveIndex(ownerIdx(s.invoicesByOrgIndex, oldOrg), ownerIdx(s.invoicesByOrgIndex, inv.OrgID), id)
		moveIndex(ownerIdx(s.invoicesByUserIndex, oldUser), ownerIdx(s.invoicesByUserIndex, inv.UserID), id)
	}

	_, err := t.r.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, raw := range sets {
			pipe.Set(ctx, key, raw, 0)
		}
		for _, op := range idxOps {
			if op.add {
				pipe.SAdd(ctx, op.key, op.id)
			} else {
				pipe.SRem(ctx, op.key, op.id)
			}
		}
		pipe.Incr(ctx, s.txVersionKey())
		return nil
	})
	return err
}

func ownerIdx(f func(string) string, owner string) string {
	if owner == "" {
		return ""
	}
	return f(owner)
}

func encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return raw, nil
}

func (t *tx) GetProduct(ctx context.Context, id string) (*stripesync.Product, error) {
	if p, ok := t.products[id]; ok {
		return p, nil
	}
	return getRecord[stripesync.Product](ctx, t.r, t.store.productKey(id))
}

func (t *tx) GetPrice(ctx context.Context, id string) (*stripesync.Price, error) {
	if p, ok := t.prices[id]; ok {
		return p, nil
	}
	return getRecord[stripesync.Price](ctx, t.r, t.store.priceKey(id))
}

func (t *tx) GetCustomer(ctx context.Context, id string) (*stripesync.Customer, error) {
	if c, ok := t.customers[id]; ok {
		return c, nil
	}
	return getRecord[stripesync.Customer](ctx, t.r, t.store.customerKey(id))
}

func (t *tx) GetSubscription(ctx context.Context, id string) (*stripesync.Subscription, error) {
	if sub, ok := t.subs[id]; ok {
		return sub, nil
	}
	return getRecord[stripesync.Subscription](ctx, t.r, t.store.subscriptionKey(id))
}

func (t *tx) GetCheckoutSession(ctx context.Context, id string) (*stripesync.CheckoutSession, error) {
	if cs, ok := t.sessions[id]; ok {
		return cs, nil
	}
	return getRecord[stripesync.CheckoutSession](ctx, t.r, t.store.sessionKey(id))
}

func (t *tx) GetPayment(ctx context.Context, id string) (*stripesync.Payment, error) {
	if p, ok := t.payments[id]; ok {
		return p, nil
	}
	return getRecord[stripesync.Payment](ctx, t.r, t.store.paymentKey(id))
}

func (t *tx) GetInvoice(ctx context.Context, id string) (*stripesync.Invoice, error) {
	if i, ok := t.invoices[id]; ok {
		return i, nil
	}
	return getRecord[stripesync.Invoice](ctx, t.r, t.store.invoiceKey(id))
}

func (t *tx) PutProduct(ctx context.Context, p *stripesync.Product) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid product")
	}
	t.products[p.ID] = p
	return nil
}

func (t *tx) PutPrice(ctx context.Context, p *stripesync.Price) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid price")
	}
	t.prices[p.ID] = p
	return nil
}

func (t *tx) PutCustomer(ctx context.Context, c *stripesync.Customer) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("invalid customer")
	}
	t.customers[c.ID] = c
	return nil
}

func (t *tx) PutSubscription(ctx context.Context, sub *stripesync.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}
	t.subs[sub.ID] = sub
	return nil
}

func (t *tx) PutCheckoutSession(ctx context.Context, cs *stripesync.CheckoutSession) error {
	if cs == nil || cs.ID == "" {
		return fmt.Errorf("invalid checkout session")
	}
	t.sessions[cs.ID] = cs
	return nil
}

func (t *tx) PutPayment(ctx context.Context, p *stripesync.Payment) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid payment")
	}
	t.payments[p.ID] = p
	return nil
}

func (t *tx) PutInvoice(ctx context.Context, i *stripesync.Invoice) error {
	if i == nil || i.ID == "" {
		return fmt.Errorf("invalid invoice")
	}
	t.invoices[i.ID] = i
	return nil
}
