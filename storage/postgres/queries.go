package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// GetProduct implements stripesync.Reader.
func (s *Store) GetProduct(ctx context.Context, id string) (*stripesync.Product, error) {
	return getProduct(ctx, s.pool, id, "")
}

// GetPrice implements stripesync.Reader.
func (s *Store) GetPrice(ctx context.Context, id string) (*stripesync.Price, error) {
	return getPrice(ctx, s.pool, id, "")
}

// GetCustomer implements stripesync.Reader.
func (s *Store) GetCustomer(ctx context.Context, id string) (*stripesync.Customer, error) {
	return getCustomer(ctx, s.pool, id, "")
}

// GetSubscription implements stripesync.Reader.
func (s *Store) GetSubscription(ctx context.Context, id string) (*stripesync.Subscription, error) {
	return getSubscription(ctx, s.pool, id, "")
}

// GetCheckoutSession implements stripesync.Reader.
func (s *Store) GetCheckoutSession(ctx context.Context, id string) (*stripesync.CheckoutSession, error) {
	return getSession(ctx, s.pool, id, "")
}

// GetPayment implements stripesync.Reader.
func (s *Store) GetPayment(ctx context.Context, id string) (*stripesync.Payment, error) {
	return getPayment(ctx, s.pool, id, "")
}

// GetInvoice implements stripesync.Reader.
func (s *Store) GetInvoice(ctx context.Context, id string) (*stripesync.Invoice, error) {
	return getInvoice(ctx, s.pool, id, "")
}

// ListProducts implements stripesync.Querier.
func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]stripesync.Product, error) {
	query := `SELECT ` + productCols + ` FROM products`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []stripesync.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListPricesByProduct implements stripesync.Querier.
func (s *Store) ListPricesByProduct(ctx context.Context, productID string, activeOnly bool) ([]stripesync.Price, error) {
	query := `SELECT ` + priceCols + ` FROM prices WHERE product_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	defer rows.Close()

	var out []stripesync.Price
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) listSubscriptions(ctx context.Context, column, value string) ([]stripesync.Subscription, error) {
	if value == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE `+column+` = $1 ORDER BY id`, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows pgx.Rows) ([]stripesync.Subscription, error) {
	var out []stripesync.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// ListSubscriptionsByOrg implements stripesync.Querier.
func (s *Store) ListSubscriptionsByOrg(ctx context.Context, orgID string) ([]stripesync.Subscription, error) {
	return s.listSubscriptions(ctx, "org_id", orgID)
}

// ListSubscriptionsByUser implements stripesync.Querier.
func (s *Store) ListSubscriptionsByUser(ctx context.Context, userID string) ([]stripesync.Subscription, error) {
	return s.listSubscriptions(ctx, "user_id", userID)
}

func (s *Store) listPayments(ctx context.Context, column, value string) ([]stripesync.Payment, error) {
	if value == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE `+column+` = $1 ORDER BY id`, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []stripesync.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListPaymentsByOrg implements stripesync.Querier.
func (s *Store) ListPaymentsByOrg(ctx context.Context, orgID string) ([]stripesync.Payment, error) {
	return s.listPayments(ctx, "org_id", orgID)
}

// ListPaymentsByUser implements stripesync.Querier.
func (s *Store) ListPaymentsByUser(ctx context.Context, userID string) ([]stripesync.Payment, error) {
	return s.listPayments(ctx, "user_id", userID)
}

func (s *Store) listInvoices(ctx context.Context, column, value string) ([]stripesync.Invoice, error) {
	if value == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+invoiceCols+` FROM invoices WHERE `+column+` = $1 ORDER BY id`, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var out []stripesync.Invoice
	for rows.Next() {
		i, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

// ListInvoicesByOrg implements stripesync.Querier.
func (s *Store) ListInvoicesByOrg(ctx context.Context, orgID string) ([]stripesync.Invoice, error) {
	return s.listInvoices(ctx, "org_id", orgID)
}

// ListInvoicesByUser implements stripesync.Querier.
func (s *Store) ListInvoicesByUser(ctx context.Context, userID string) ([]stripesync.Invoice, error) {
	return s.listInvoices(ctx, "user_id", userID)
}
