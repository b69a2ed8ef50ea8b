// Package redis provides a Redis implementation of the stripesync.Store
// interface. Records are stored as JSON strings and secondary lookups go
// through index sets maintained on every write.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/stripesync/pkg/stripesync"
)

// Store implements stripesync.Store using Redis.
type Store struct {
	client *redis.Client
	config Config
}

// Config holds Redis store configuration.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string

	// Password for the Redis server, if any.
	Password string

	// DB is the Redis database number.
	DB int

	// KeyPrefix is prepended to all keys. Defaults to "stripesync:".
	KeyPrefix string

	// AppliedTTL bounds how long processed event ids are remembered.
	// Zero means they are kept forever.
	AppliedTTL time.Duration

	// PoolSize is the connection pool size.
	PoolSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:      "localhost:6379",
		KeyPrefix: "stripesync:",
		PoolSize:  10,
	}
}

// New creates a new Redis store.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "stripesync:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Store{client: client, config: config}, nil
}

// NewWithClient creates a store around an existing client. The caller keeps
// ownership of the client.
func NewWithClient(client *redis.Client, config Config) *Store {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "stripesync:"
	}
	return &Store{client: client, config: config}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(parts ...string) string {
	k := s.config.KeyPrefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (s *Store) productKey(id string) string { return s.key("product", id) }

func (s *Store) priceKey(id string) string { return s.key("price", id) }

func (s *Store) customerKey(id string) string { return s.key("customer", id) }

func (s *Store) subscriptionKey(id string) string { return s.key("subscription", id) }

func (s *Store) sessionKey(id string) string { return s.key("session", id) }
func (s *Store) paymentKey(id string) string { return s.key("payment", id) }
func (s *Store) invoiceKey(id string) string { return s.key("invoice", id) }
func (s *Store) appliedKey(id string) string { return s.key("applied", id) }

func (s *Store) productsIndex() string { return s.key("idx", "products") }

func (s *Store) pricesByProductIndex(pid string) string { return s.key("idx", "prices", pid) }

func (s *Store) subsByOrgIndex(org string) string { return s.key("idx", "subs", "org", org) }

func (s *Store) subsByUserIndex(user string) string { return s.key("idx", "subs", "user", user) }

func (s *Store) paymentsByOrgIndex(org string) string { return s.key("idx", "payments", "org", org) }

func (s *Store) paymentsByUserIndex(user string) string {
	return s.key("idx", "payments", "user", user)
}

func (s *Store) invoicesByOrgIndex(org string) string { return s.key("idx", "invoices", "org", org) }

func (s *Store) invoicesByUserIndex(user string) string {
	return s.key("idx", "invoices", "user", user)
}

// txVersionKey is watched by InTx so concurrent transactions abort and retry
// instead of committing over each other's writes.
func (s *Store) txVersionKey() string { return s.key("txversion") }

func getRecord[T any](ctx context.Context, c redis.Cmdable, key string) (*T, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, stripesync.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return &v, nil
}

// HasApplied implements stripesync.Store.
func (s *Store) HasApplied(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.appliedKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check applied event: %w", err)
	}
	return n > 0, nil
}

// MarkApplied implements stripesync.Store.
func (s *Store) MarkApplied(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("invalid event id")
	}
	if err := s.client.Set(ctx, s.appliedKey(eventID), "1", s.config.AppliedTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark event applied: %w", err)
	}
	return nil
}
