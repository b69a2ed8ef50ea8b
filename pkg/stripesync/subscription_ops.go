package stripesync

import (
	"context"
	"fmt"
	"time"
)

// SetSubscriptionOwner writes the caller-owned fields of a subscription.
// This is the only sanctioned writer of OrgID/UserID; provider-driven merges
// preserve whatever this operation set. Fails with ErrSubscriptionNotFound
// when the subscription has not arrived locally yet.
func (p *Processor) SetSubscriptionOwner(ctx context.Context, subID string, owner OwnerUpdate) error {
	return p.store.InTx(ctx, func(tx Tx) error {
		sub, err := tx.GetSubscription(ctx, subID)
		if err == ErrNotFound {
			return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subID)
		}
		if err != nil {
			return err
		}

		if owner.OrgID != nil {
			sub.OrgID = *owner.OrgID
		}
		if owner.UserID != nil {
			sub.UserID = *owner.UserID
		}
		if owner.Metadata != nil {
			sub.Metadata = owner.Metadata
		}
		return tx.PutSubscription(ctx, sub)
	})
}

// UpdateSeatQuantity changes a subscription's seat quantity: it first
// instructs the provider and writes locally only after the remote call
// succeeds. The provider's own webhook for the same mutation arrives
// shortly after carrying the identical quantity; the merge converges.
func (p *Processor) UpdateSeatQuantity(ctx context.Context, subID string, quantity int64) error {
	if p.client == nil {
		return fmt.Errorf("%w: remote client required for quantity updates", ErrNotConfigured)
	}

	sub, err := p.store.GetSubscription(ctx, subID)
	if err == ErrNotFound {
		return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subID)
	}
	if err != nil {
		return err
	}

	startTime := time.Now()
	if err := p.client.UpdateSubscriptionQuantity(ctx, subID, sub.ItemID, quantity); err != nil {
		// Remote is the source of truth for this path: no local write.
		p.metrics.RecordAPICall("/subscriptions/update", "error")
		p.metrics.RecordAPICallDuration("/subscriptions/update", time.Since(startTime))
		return err
	}
	p.metrics.RecordAPICall("/subscriptions/update", "success")
	p.metrics.RecordAPICallDuration("/subscriptions/update", time.Since(startTime))

	return p.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		cur.Quantity = quantity
		return tx.PutSubscription(ctx, cur)
	})
}
