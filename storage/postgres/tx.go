package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// tx adapts a pgx transaction to stripesync.Tx. Reads take row locks so two
// transactions touching the same record serialize instead of clobbering each
// other's writes.
type tx struct {
	q pgx.Tx
}

const (
	productCols      = `id, name, description, active, default_price_id, type, images, metadata, updated_at`
	priceCols        = `id, product_id, active, currency, kind, unit_amount, recurring, tiers, lookup_key, metadata, updated_at`
	customerCols     = `id, email, name, metadata, updated_at`
	subscriptionCols = `id, customer_id, status, price_id, item_id, quantity, current_period_end, cancel_at_period_end, cancel_at, metadata, org_id, user_id, updated_at`
	sessionCols      = `id, customer_id, status, mode, metadata, updated_at`
	paymentCols      = `id, customer_id, amount, currency, status, created_at, metadata, org_id, user_id, updated_at`
	invoiceCols      = `id, customer_id, subscription_id, status, amount_due, amount_paid, created_at, org_id, user_id, updated_at`
)

func scanProduct(row pgx.Row) (*stripesync.Product, error) {
	var p stripesync.Product
	var images, metadata []byte
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Active, &p.DefaultPriceID,
		&p.Type, &images, &metadata, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stripesync.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	if len(images) > 0 {
		if err := jsonUnmarshal(images, &p.Images); err != nil {
			return nil, fmt.Errorf("failed to decode product images: %w", err)
		}
	}
	if p.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, fmt.Errorf("failed to decode product metadata: %w", err)
	}
	return &p, nil
}

func scanPrice(row pgx.Row) (*stripesync.Price, error) {
	var p stripesync.Price
	var recurring, tiers, metadata []byte
	err := row.Scan(&p.ID, &p.ProductID, &p.Active, &p.Currency, &p.Kind,
		&p.UnitAmount, &recurring, &tiers, &p.LookupKey, &metadata, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stripesync.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan price: %w", err)
	}
	if len(recurring) > 0 {
		p.Recurring = &stripesync.Recurring{}
		if err := jsonUnmarshal(recurring, p.Recurring); err != nil {
			return nil, fmt.Errorf("failed to decode price recurring: %w", err)
		}
	}
	if len(tiers) > 0 {
		if err := jsonUnmarshal(tiers, &p.Tiers); err != nil {
			return nil, fmt.Errorf("failed to decode price tiers: %w", err)
		}
	}
	if p.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, fmt.Errorf("failed to decode price metadata: %w", err)
	}
	return &p, nil
}

func scanCustomer(row pgx.Row) (*stripesync.Customer, error) {
	var c stripesync.Customer
	var metadata []byte
	err := row.Scan(&c.ID, &c.Email, &c.Name, &metadata, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stripesync.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan customer: %w", err)
	}
	if c.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, fmt.Errorf("failed to decode customer metadata: %w", err)
	}
	return &c, nil
}

func scanSubscription(row pgx.Row) (*stripesync.Subscription, error) {
	var sub stripesync.Subscription
	var metadata []byte
	var periodEnd *time.Time
	err := row.Scan(&sub.ID, &sub.CustomerID, &sub.Status, &sub.PriceID, &sub.ItemID,
		&sub.Quantity, &periodEnd, &sub.CancelAtPeriodEnd, &sub.CancelAt,
		&metadata, &sub.OrgID, &sub.UserID, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stripesync.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	sub.CurrentPeriodEnd = fromNullTime(periodEnd)
	if sub.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, fmt.Errorf("failed to decode subscription metadata: %w", err)
	}
	return &sub, nil
}

func scanSession(row pgx.Row) (*stripesync.CheckoutSession, error) {
	var cs stripesync.CheckoutSession
	var metadata []byte
	err := row.Scan(&cs.ID, &cs.CustomerID, &cs.Status, &cs.Mode, &metadata, &cs.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stripesync.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan checkout session: %w", err)
	}
	if cs.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session metadata: %w", err)
	}
	return &cs, nil
}

func scanPayment(row pgx.Row) (*stripesync.Payment, error) {
	var p stripesync.Payment
	var metadata []byte
	var created *time.Time
	err := row.Scan(&p.ID, &p.CustomerID, &p.Amount, &p.Currency, &p.Status,
		&created, &metadata, &p.OrgID, &p.UserID, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stripesync.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	p.CreatedAt = fromNullTime(created)
	if p.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, fmt.Errorf("failed to decode payment metadata: %w", err)
	}
	return &p, nil
}

func scanInvoice(row pgx.Row) (*stripesync.Invoice, error) {
	var i stripesync.Invoice
	var created *time.Time
	err := row.Scan(&i.ID, &i.CustomerID, &i.SubscriptionID, &i.Status,
		&i.AmountDue, &i.AmountPaid, &created, &i.OrgID, &i.UserID, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stripesync.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}
	i.CreatedAt = fromNullTime(created)
	return &i, nil
}

func getProduct(ctx context.Context, q querier, id, suffix string) (*stripesync.Product, error) {
	return scanProduct(q.QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE id = $1`+suffix, id))
}

func getPrice(ctx context.Context, q querier, id, suffix string) (*stripesync.Price, error) {
	return scanPrice(q.QueryRow(ctx,
		`SELECT `+priceCols+` FROM prices WHERE id = $1`+suffix, id))
}

func getCustomer(ctx context.Context, q querier, id, suffix string) (*stripesync.Customer, error) {
	return scanCustomer(q.QueryRow(ctx,
		`SELECT `+customerCols+` FROM customers WHERE id = $1`+suffix, id))
}

func getSubscription(ctx context.Context, q querier, id, suffix string) (*stripesync.Subscription, error) {
	return scanSubscription(q.QueryRow(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE id = $1`+suffix, id))
}

func getSession(ctx context.Context, q querier, id, suffix string) (*stripesync.CheckoutSession, error) {
	return scanSession(q.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM checkout_sessions WHERE id = $1`+suffix, id))
}

func getPayment(ctx context.Context, q querier, id, suffix string) (*stripesync.Payment, error) {
	return scanPayment(q.QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE id = $1`+suffix, id))
}

func getInvoice(ctx context.Context, q querier, id, suffix string) (*stripesync.Invoice, error) {
	return scanInvoice(q.QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM invoices WHERE id = $1`+suffix, id))
}

const forUpdate = ` FOR UPDATE`

func (t *tx) GetProduct(ctx context.Context, id string) (*stripesync.Product, error) {
	return getProduct(ctx, t.q, id, forUpdate)
}

func (t *tx) GetPrice(ctx context.Context, id string) (*stripesync.Price, error) {
	return getPrice(ctx, t.q, id, forUpdate)
}

func (t *tx) GetCustomer(ctx context.Context, id string) (*stripesync.Customer, error) {
	return getCustomer(ctx, t.q, id, forUpdate)
}

func (t *tx) GetSubscription(ctx context.Context, id string) (*stripesync.Subscription, error) {
	return getSubscription(ctx, t.q, id, forUpdate)
}

func (t *tx) GetCheckoutSession(ctx context.Context, id string) (*stripesync.CheckoutSession, error) {
	return getSession(ctx, t.q, id, forUpdate)
}

func (t *tx) GetPayment(ctx context.Context, id string) (*stripesync.Payment, error) {
	return getPayment(ctx, t.q, id, forUpdate)
}

func (t *tx) GetInvoice(ctx context.Context, id string) (*stripesync.Invoice, error) {
	return getInvoice(ctx, t.q, id, forUpdate)
}

func (t *tx) PutProduct(ctx context.Context, p *stripesync.Product) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid product")
	}
	images, err := marshalJSON(p.Images)
	if err != nil {
		return fmt.Errorf("failed to encode product images: %w", err)
	}
	metadata, err := marshalJSON(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode product metadata: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO products (id, name, description, active, default_price_id, type, images, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			default_price_id = EXCLUDED.default_price_id,
			type = EXCLUDED.type,
			images = EXCLUDED.images,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Description, p.Active, p.DefaultPriceID, p.Type,
		images, metadata, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func (t *tx) PutPrice(ctx context.Context, p *stripesync.Price) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid price")
	}
	var recurring []byte
	var err error
	if p.Recurring != nil {
		recurring, err = marshalJSON(p.Recurring)
		if err != nil {
			return fmt.Errorf("failed to encode price recurring: %w", err)
		}
	}
	tiers, err := marshalJSON(p.Tiers)
	if err != nil {
		return fmt.Errorf("failed to encode price tiers: %w", err)
	}
	metadata, err := marshalJSON(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode price metadata: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO prices (id, product_id, active, currency, kind, unit_amount, recurring, tiers, lookup_key, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			active = EXCLUDED.active,
			currency = EXCLUDED.currency,
			kind = EXCLUDED.kind,
			unit_amount = EXCLUDED.unit_amount,
			recurring = EXCLUDED.recurring,
			tiers = EXCLUDED.tiers,
			lookup_key = EXCLUDED.lookup_key,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.ProductID, p.Active, p.Currency, string(p.Kind), p.UnitAmount,
		recurring, tiers, p.LookupKey, metadata, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert price: %w", err)
	}
	return nil
}

func (t *tx) PutCustomer(ctx context.Context, c *stripesync.Customer) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("invalid customer")
	}
	metadata, err := marshalJSON(c.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode customer metadata: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO customers (id, email, name, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		c.ID, c.Email, c.Name, metadata, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

func (t *tx) PutSubscription(ctx context.Context, sub *stripesync.Subscription) error {
	if sub == nil || sub.ID == "" {
		return fmt.Errorf("invalid subscription")
	}
	metadata, err := marshalJSON(sub.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode subscription metadata: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO subscriptions (id, customer_id, status, price_id, item_id, quantity, current_period_end, cancel_at_period_end, cancel_at, metadata, org_id, user_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			status = EXCLUDED.status,
			price_id = EXCLUDED.price_id,
			item_id = EXCLUDED.item_id,
			quantity = EXCLUDED.quantity,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			cancel_at = EXCLUDED.cancel_at,
			metadata = EXCLUDED.metadata,
			org_id = EXCLUDED.org_id,
			user_id = EXCLUDED.user_id,
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.CustomerID, string(sub.Status), sub.PriceID, sub.ItemID,
		sub.Quantity, nullTime(sub.CurrentPeriodEnd), sub.CancelAtPeriodEnd,
		sub.CancelAt, metadata, sub.OrgID, sub.UserID, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (t *tx) PutCheckoutSession(ctx context.Context, cs *stripesync.CheckoutSession) error {
	if cs == nil || cs.ID == "" {
		return fmt.Errorf("invalid checkout session")
	}
	metadata, err := marshalJSON(cs.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode checkout session metadata: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO checkout_sessions (id, customer_id, status, mode, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			status = EXCLUDED.status,
			mode = EXCLUDED.mode,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		cs.ID, cs.CustomerID, cs.Status, string(cs.Mode), metadata, cs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert checkout session: %w", err)
	}
	return nil
}

func (t *tx) PutPayment(ctx context.Context, p *stripesync.Payment) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("invalid payment")
	}
	metadata, err := marshalJSON(p.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode payment metadata: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO payments (id, customer_id, amount, currency, status, created_at, metadata, org_id, user_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at,
			metadata = EXCLUDED.metadata,
			org_id = EXCLUDED.org_id,
			user_id = EXCLUDED.user_id,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.CustomerID, p.Amount, p.Currency, p.Status,
		nullTime(p.CreatedAt), metadata, p.OrgID, p.UserID, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}
	return nil
}

func (t *tx) PutInvoice(ctx context.Context, i *stripesync.Invoice) error {
	if i == nil || i.ID == "" {
		return fmt.Errorf("invalid invoice")
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO invoices (id, customer_id, subscription_id, status, amount_due, amount_paid, created_at, org_id, user_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			subscription_id = EXCLUDED.subscription_id,
			status = EXCLUDED.status,
			amount_due = EXCLUDED.amount_due,
			amount_paid = EXCLUDED.amount_paid,
			created_at = EXCLUDED.created_at,
			org_id = EXCLUDED.org_id,
			user_id = EXCLUDED.user_id,
			updated_at = EXCLUDED.updated_at`,
		i.ID, i.CustomerID, i.SubscriptionID, i.Status, i.AmountDue, i.AmountPaid,
		nullTime(i.CreatedAt), i.OrgID, i.UserID, i.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert invoice: %w", err)
	}
	return nil
}
