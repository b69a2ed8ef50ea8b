package stripesync

import (
	"context"
	"fmt"
)

// Process applies one decoded, authenticated event: duplicate suppression,
// merge inside a storage transaction, idempotency mark, then handler
// fan-out. It is the post-verification path behind WebhookHandler and can be
// driven directly (e.g., replaying archived events).
func (p *Processor) Process(ctx context.Context, ev *Event) *Outcome {
	o := &Outcome{State: StateDecoded, EventID: ev.ID, EventType: ev.Type}

	applied, err := p.store.HasApplied(ctx, ev.ID)
	if err != nil {
		o.State = StateMergeFailed
		o.Err = fmt.Errorf("idempotency lookup: %w", err)
		p.logger.Error("idempotency lookup failed",
			Field{"event_id", ev.ID}, Field{"error", err})
		return o
	}
	if applied {
		// Known-duplicate delivery: acknowledge without re-running the
		// merge or custom handlers.
		o.State = StateCompleted
		o.Duplicate = true
		p.logger.Debug("duplicate delivery suppressed",
			Field{"event_id", ev.ID}, Field{"event_type", ev.Type})
		return o
	}
	o.State = StateDeduplicated

	m, opts := mergerFor(ev.Type)
	opts.staleGuard = p.staleGuard

	if m != nil {
		o.State = StateMerging
		var decision mergeDecision
		err := p.store.InTx(ctx, func(tx Tx) error {
			var mergeErr error
			decision, mergeErr = m(ctx, tx, ev, opts)
			return mergeErr
		})
		if err != nil {
			// Not marked applied: a corrected redelivery can still succeed.
			o.State = StateMergeFailed
			o.Err = err
			p.logger.Error("merge failed",
				Field{"event_id", ev.ID}, Field{"event_type", ev.Type}, Field{"error", err})
			p.metrics.RecordWebhookError("merge_failed")
			return o
		}
		p.metrics.RecordMerge(ev.Type, decision.String())
		p.logger.Debug("merge applied",
			Field{"event_id", ev.ID}, Field{"event_type", ev.Type},
			Field{"decision", decision.String()})
	}
	o.State = StateMerged

	// Mark applied before handlers run: a handler failure must never cause
	// the merge to be redone on redelivery.
	if err := p.store.MarkApplied(ctx, ev.ID); err != nil {
		// The merge committed but the mark did not stick. The provider will
		// redeliver and the merge converges to the same state.
		o.State = StateMergeFailed
		o.Err = fmt.Errorf("mark applied: %w", err)
		p.logger.Error("failed to mark event applied",
			Field{"event_id", ev.ID}, Field{"error", err})
		return o
	}

	o.State = StateHandlersRunning
	for i, h := range p.registry.chain(ev.Type) {
		if herr := p.runHandler(ctx, ev, i, h); herr != nil {
			o.HandlerErrors = append(o.HandlerErrors, herr)
		}
	}
	for i, h := range p.registry.catchAll {
		if herr := p.runHandler(ctx, ev, i, h); herr != nil {
			o.HandlerErrors = append(o.HandlerErrors, herr)
		}
	}

	o.State = StateCompleted
	return o
}

// runHandler executes one handler with failure isolation: errors and panics
// are recorded and do not prevent later handlers from running.
func (p *Processor) runHandler(ctx context.Context, ev *Event, idx int, h HandlerFunc) (herr *HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			herr = &HandlerError{
				EventID:   ev.ID,
				EventType: ev.Type,
				Handler:   idx,
				Err:       fmt.Errorf("panic: %v", r),
			}
			p.logger.Warn("handler panicked",
				Field{"event_id", ev.ID}, Field{"event_type", ev.Type},
				Field{"handler", idx}, Field{"panic", r})
			p.metrics.RecordHandlerError(ev.Type)
		}
	}()

	if err := h(ctx, ev); err != nil {
		p.logger.Warn("handler failed",
			Field{"event_id", ev.ID}, Field{"event_type", ev.Type},
			Field{"handler", idx}, Field{"error", err})
		p.metrics.RecordHandlerError(ev.Type)
		return &HandlerError{EventID: ev.ID, EventType: ev.Type, Handler: idx, Err: err}
	}
	return nil
}
