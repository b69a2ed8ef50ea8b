// Package postgres provides a PostgreSQL implementation of the
// stripesync.Store interface. The merge transaction maps to a SQL
// transaction with SELECT ... FOR UPDATE row locks, so concurrent
// deliveries for the same external id serialize at the database.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// Store implements stripesync.Store using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string

	// Pool configuration.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	active           BOOLEAN NOT NULL DEFAULT TRUE,
	default_price_id TEXT NOT NULL DEFAULT '',
	type             TEXT NOT NULL DEFAULT '',
	images           JSONB,
	metadata         JSONB,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS prices (
	id          TEXT PRIMARY KEY,
	product_id  TEXT NOT NULL DEFAULT '',
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	currency    TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL DEFAULT '',
	unit_amount BIGINT,
	recurring   JSONB,
	tiers       JSONB,
	lookup_key  TEXT NOT NULL DEFAULT '',
	metadata    JSONB,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prices_product ON prices (product_id);

CREATE TABLE IF NOT EXISTS customers (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	metadata   JSONB,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id                   TEXT PRIMARY KEY,
	customer_id          TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT '',
	price_id             TEXT NOT NULL DEFAULT '',
	item_id              TEXT NOT NULL DEFAULT '',
	quantity             BIGINT NOT NULL DEFAULT 0,
	current_period_end   TIMESTAMPTZ,
	cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
	cancel_at            TIMESTAMPTZ,
	metadata             JSONB,
	org_id               TEXT NOT NULL DEFAULT '',
	user_id              TEXT NOT NULL DEFAULT '',
	updated_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_org ON subscriptions (org_id);
CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions (user_id);

CREATE TABLE IF NOT EXISTS checkout_sessions (
	id          TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	mode        TEXT NOT NULL DEFAULT '',
	metadata    JSONB,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	id          TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL DEFAULT '',
	amount      BIGINT NOT NULL DEFAULT 0,
	currency    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ,
	metadata    JSONB,
	org_id      TEXT NOT NULL DEFAULT '',
	user_id     TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_payments_org ON payments (org_id);
CREATE INDEX IF NOT EXISTS idx_payments_user ON payments (user_id);

CREATE TABLE IF NOT EXISTS invoices (
	id              TEXT PRIMARY KEY,
	customer_id     TEXT NOT NULL DEFAULT '',
	subscription_id TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	amount_due      BIGINT NOT NULL DEFAULT 0,
	amount_paid     BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ,
	org_id          TEXT NOT NULL DEFAULT '',
	user_id         TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoices_org ON invoices (org_id);
CREATE INDEX IF NOT EXISTS idx_invoices_user ON invoices (user_id);

CREATE TABLE IF NOT EXISTS webhook_events (
	id         TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL
);
`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the read and
// write helpers serve the store surface and the transaction alike.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func jsonUnmarshal(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

func unmarshalMetadata(raw []byte) (stripesync.Metadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m stripesync.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// InTx implements stripesync.Store.
func (s *Store) InTx(ctx context.Context, fn func(stripesync.Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(&tx{q: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HasApplied implements stripesync.Store.
func (s *Store) HasApplied(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM webhook_events WHERE id = $1)`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check applied event: %w", err)
	}
	return exists, nil
}

// MarkApplied implements stripesync.Store.
func (s *Store) MarkApplied(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("invalid event id")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_events (id, applied_at) VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING`,
		eventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark event applied: %w", err)
	}
	return nil
}
