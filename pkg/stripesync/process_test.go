package stripesync

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestProcessDuplicateSuppressed(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	var handlerRuns int
	p.On("customer.created", func(ctx context.Context, ev *Event) error {
		handlerRuns++
		return nil
	})

	obj := map[string]any{"id": "cus_1", "email": "a@example.com"}
	o := p.Process(ctx, makeEvent(t, "evt_1", "customer.created", 100, obj))
	if o.State != StateCompleted || o.Duplicate {
		t.Fatalf("first delivery: %+v", o)
	}

	// Same event id again: acknowledged but neither merged nor fanned out.
	obj["email"] = "changed@example.com"
	o = p.Process(ctx, makeEvent(t, "evt_1", "customer.created", 100, obj))
	if o.State != StateCompleted {
		t.Fatalf("state = %v, want completed", o.State)
	}
	if !o.Duplicate {
		t.Error("redelivery not flagged as duplicate")
	}
	if handlerRuns != 1 {
		t.Errorf("handler ran %d times, want 1", handlerRuns)
	}

	rec, _ := store.GetCustomer(ctx, "cus_1")
	if rec.Email != "a@example.com" {
		t.Errorf("duplicate delivery re-ran the merge: %+v", rec)
	}
}

func TestProcessUnknownEventType(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	var sawAny bool
	p.OnAny(func(ctx context.Context, ev *Event) error {
		sawAny = true
		return nil
	})

	o := p.Process(ctx, makeEvent(t, "evt_1", "account.updated", 100, map[string]any{"id": "acct_1"}))
	if o.State != StateCompleted {
		t.Fatalf("state = %v, want completed", o.State)
	}
	if !sawAny {
		t.Error("catch-all handler did not run for unknown type")
	}

	// Unknown types are still deduplicated.
	o = p.Process(ctx, makeEvent(t, "evt_1", "account.updated", 100, map[string]any{"id": "acct_1"}))
	if !o.Duplicate {
		t.Error("unknown-type redelivery not deduplicated")
	}
}

func TestProcessHandlerIsolation(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	var order []string
	p.On("customer.created", func(ctx context.Context, ev *Event) error {
		order = append(order, "first")
		return fmt.Errorf("boom")
	})
	p.On("customer.created", func(ctx context.Context, ev *Event) error {
		order = append(order, "second")
		panic("handler panic")
	})
	p.On("customer.created", func(ctx context.Context, ev *Event) error {
		order = append(order, "third")
		return nil
	})
	p.OnAny(func(ctx context.Context, ev *Event) error {
		order = append(order, "any")
		return nil
	})

	o := p.Process(ctx, makeEvent(t, "evt_1", "customer.created", 100,
		map[string]any{"id": "cus_1"}))

	if o.State != StateCompleted {
		t.Fatalf("state = %v, want completed despite handler failures", o.State)
	}
	if len(o.HandlerErrors) != 2 {
		t.Fatalf("len(HandlerErrors) = %d, want 2", len(o.HandlerErrors))
	}
	want := []string{"first", "second", "third", "any"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	// The delivery is marked applied regardless of handler outcomes.
	applied, _ := store.HasApplied(ctx, "evt_1")
	if !applied {
		t.Error("event not marked applied after handler failures")
	}
}

func TestProcessHandlerErrorDetails(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)

	sentinel := errors.New("downstream unavailable")
	p.On("customer.created", func(ctx context.Context, ev *Event) error {
		return sentinel
	})

	o := p.Process(context.Background(), makeEvent(t, "evt_1", "customer.created", 100,
		map[string]any{"id": "cus_1"}))

	if len(o.HandlerErrors) != 1 {
		t.Fatalf("len(HandlerErrors) = %d, want 1", len(o.HandlerErrors))
	}
	he := o.HandlerErrors[0]
	if he.EventID != "evt_1" || he.EventType != "customer.created" || he.Handler != 0 {
		t.Errorf("unexpected handler error: %+v", he)
	}
	if !errors.Is(he, sentinel) {
		t.Error("HandlerError does not unwrap to the handler's error")
	}
}

func TestProcessMergeFailureNotMarkedApplied(t *testing.T) {
	store := newTestStore()
	p := newTestProcessor(t, store)
	ctx := context.Background()

	var handlerRuns int
	p.OnAny(func(ctx context.Context, ev *Event) error {
		handlerRuns++
		return nil
	})

	o := p.Process(ctx, makeEvent(t, "evt_1", "product.created", 100,
		map[string]any{"name": "no id"}))
	if o.State != StateMergeFailed {
		t.Fatalf("state = %v, want merge_failed", o.State)
	}
	if handlerRuns != 0 {
		t.Error("handlers ran despite merge failure")
	}

	// Not marked applied: a corrected redelivery can still succeed.
	applied, _ := store.HasApplied(ctx, "evt_1")
	if applied {
		t.Error("failed merge marked applied")
	}

	o = p.Process(ctx, makeEvent(t, "evt_1", "product.created", 100,
		map[string]any{"id": "prod_1", "name": "fixed"}))
	if o.State != StateCompleted {
		t.Fatalf("corrected redelivery: state = %v, want completed", o.State)
	}
}

func TestProcessIdempotencyLookupFailure(t *testing.T) {
	store := newTestStore()
	store.failHasApplied = true
	p := newTestProcessor(t, store)

	o := p.Process(context.Background(), makeEvent(t, "evt_1", "customer.created", 100,
		map[string]any{"id": "cus_1"}))
	if o.State != StateMergeFailed {
		t.Fatalf("state = %v, want merge_failed", o.State)
	}
	if o.HTTPStatus() != 500 {
		t.Errorf("HTTPStatus() = %d, want 500", o.HTTPStatus())
	}
}

func TestProcessMarkAppliedFailure(t *testing.T) {
	store := newTestStore()
	store.failMarkApplied = true
	p := newTestProcessor(t, store)
	ctx := context.Background()

	var handlerRuns int
	p.OnAny(func(ctx context.Context, ev *Event) error {
		handlerRuns++
		return nil
	})

	o := p.Process(ctx, makeEvent(t, "evt_1", "customer.created", 100,
		map[string]any{"id": "cus_1"}))
	if o.State != StateMergeFailed {
		t.Fatalf("state = %v, want merge_failed", o.State)
	}
	if handlerRuns != 0 {
		t.Error("handlers ran before the applied mark stuck")
	}

	// Redelivery after the mark failure converges: the merge is idempotent.
	store.failMarkApplied = false
	o = p.Process(ctx, makeEvent(t, "evt_1", "customer.created", 100,
		map[string]any{"id": "cus_1"}))
	if o.State != StateCompleted {
		t.Fatalf("redelivery: state = %v, want completed", o.State)
	}
	if handlerRuns != 1 {
		t.Errorf("handler ran %d times, want 1", handlerRuns)
	}
}
