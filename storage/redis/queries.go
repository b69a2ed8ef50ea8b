package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// GetProduct implements stripesync.Reader.
func (s *Store) GetProduct(ctx context.Context, id string) (*stripesync.Product, error) {
	return getRecord[stripesync.Product](ctx, s.client, s.productKey(id))
}

// GetPrice implements stripesync.Reader.
func (s *Store) GetPrice(ctx context.Context, id string) (*stripesync.Price, error) {
	return getRecord[stripesync.Price](ctx, s.client, s.priceKey(id))
}

// GetCustomer implements stripesync.Reader.
func (s *Store) GetCustomer(ctx context.Context, id string) (*stripesync.Customer, error) {
	return getRecord[stripesync.Customer](ctx, s.client, s.customerKey(id))
}

// GetSubscription implements stripesync.Reader.
func (s *Store) GetSubscription(ctx context.Context, id string) (*stripesync.Subscription, error) {
	return getRecord[stripesync.Subscription](ctx, s.client, s.subscriptionKey(id))
}

// GetCheckoutSession implements stripesync.Reader.
func (s *Store) GetCheckoutSession(ctx context.Context, id string) (*stripesync.CheckoutSession, error) {
	return getRecord[stripesync.CheckoutSession](ctx, s.client, s.sessionKey(id))
}

// GetPayment implements stripesync.Reader.
func (s *Store) GetPayment(ctx context.Context, id string) (*stripesync.Payment, error) {
	return getRecord[stripesync.Payment](ctx, s.client, s.paymentKey(id))
}

// GetInvoice implements stripesync.Reader.
func (s *Store) GetInvoice(ctx context.Context, id string) (*stripesync.Invoice, error) {
	return getRecord[stripesync.Invoice](ctx, s.client, s.invoiceKey(id))
}

// collectByIndex reads the member ids of an index set and fetches the
// corresponding records. Members whose record has expired or been removed
// are skipped.
func collectByIndex[T any](ctx context.Context, s *Store, indexKey string, recordKey func(string) string) ([]T, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", indexKey, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}
	raws, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}

	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected record type for %s", keys[i])
		}
		var v T
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", keys[i], err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ListProducts implements stripesync.Querier.
func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]stripesync.Product, error) {
	products, err := collectByIndex[stripesync.Product](ctx, s, s.productsIndex(), s.productKey)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return products, nil
	}
	out := products[:0]
	for _, p := range products {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListPricesByProduct implements stripesync.Querier.
func (s *Store) ListPricesByProduct(ctx context.Context, productID string, activeOnly bool) ([]stripesync.Price, error) {
	prices, err := collectByIndex[stripesync.Price](ctx, s, s.pricesByProductIndex(productID), s.priceKey)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return prices, nil
	}
	out := prices[:0]
	for _, p := range prices {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListSubscriptionsByOrg implements stripesync.Querier.
func (s *Store) ListSubscriptionsByOrg(ctx context.Context, orgID string) ([]stripesync.Subscription, error) {
	if orgID == "" {
		return nil, nil
	}
	return collectByIndex[stripesync.Subscription](ctx, s, s.subsByOrgIndex(orgID), s.subscriptionKey)
}

// ListSubscriptionsByUser implements stripesync.Querier.
func (s *Store) ListSubscriptionsByUser(ctx context.Context, userID string) ([]stripesync.Subscription, error) {
	if userID == "" {
		return nil, nil
	}
	return collectByIndex[stripesync.Subscription](ctx, s, s.subsByUserIndex(userID), s.subscriptionKey)
}

// ListPaymentsByOrg implements stripesync.Querier.
func (s *Store) ListPaymentsByOrg(ctx context.Context, orgID string) ([]stripesync.Payment, error) {
	if orgID == "" {
		return nil, nil
	}
	return collectByIndex[stripesync.Payment](ctx, s, s.paymentsByOrgIndex(orgID), s.paymentKey)
}

// ListPaymentsByUser implements stripesync.Querier.
func (s *Store) ListPaymentsByUser(ctx context.Context, userID string) ([]stripesync.Payment, error) {
	if userID == "" {
		return nil, nil
	}
	return collectByIndex[stripesync.Payment](ctx, s, s.paymentsByUserIndex(userID), s.paymentKey)
}

// ListInvoicesByOrg implements stripesync.Querier.
func (s *Store) ListInvoicesByOrg(ctx context.Context, orgID string) ([]stripesync.Invoice, error) {
	if orgID == "" {
		return nil, nil
	}
	return collectByIndex[stripesync.Invoice](ctx, s, s.invoicesByOrgIndex(orgID), s.invoiceKey)
}

// ListInvoicesByUser implements stripesync.Querier.
func (s *Store) ListInvoicesByUser(ctx context.Context, userID string) ([]stripesync.Invoice, error) {
	if userID == "" {
		return nil, nil
	}
	return collectByIndex[stripesync.Invoice](ctx, s, s.invoicesByUserIndex(userID), s.invoiceKey)
}
