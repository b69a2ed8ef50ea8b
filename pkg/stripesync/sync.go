package stripesync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Backfill reconciles the product catalog and customer roster from the
// provider API, for first-boot catch-up or drift repair after an outage.
// Payloads flow through the same mergers as webhook deliveries, so backfill
// is idempotent and safe to run concurrently with live traffic.
func (p *Processor) Backfill(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("%w: remote client required for backfill", ErrNotConfigured)
	}

	startTime := time.Now()

	var products, prices, customers []json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = p.client.ListProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		prices, err = p.client.ListPrices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		customers, err = p.client.ListCustomers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		p.metrics.RecordAPICall("/backfill", "error")
		return fmt.Errorf("backfill fetch: %w", err)
	}
	p.metrics.RecordAPICall("/backfill", "success")
	p.metrics.RecordAPICallDuration("/backfill", time.Since(startTime))

	now := time.Now().UTC()
	if err := p.applyBackfill(ctx, mergeProduct, products, now); err != nil {
		return err
	}
	if err := p.applyBackfill(ctx, mergePrice, prices, now); err != nil {
		return err
	}
	if err := p.applyBackfill(ctx, mergeCustomer, customers, now); err != nil {
		return err
	}

	p.logger.Info("backfill completed",
		Field{"products", len(products)},
		Field{"prices", len(prices)},
		Field{"customers", len(customers)})
	return nil
}

// applyBackfill runs one merger over fetched payloads, one transaction per
// record, mirroring the webhook path. Backfill events carry the fetch time
// and never touch the applied-event set.
func (p *Processor) applyBackfill(ctx context.Context, m merger, payloads []json.RawMessage, now time.Time) error {
	opts := mergeOptions{staleGuard: p.staleGuard}
	for _, raw := range payloads {
		ev := &Event{Type: "backfill", Created: now, Object: raw}
		err := p.store.InTx(ctx, func(tx Tx) error {
			_, mergeErr := m(ctx, tx, ev, opts)
			return mergeErr
		})
		if err != nil {
			return fmt.Errorf("backfill merge: %w", err)
		}
	}
	return nil
}
