package stripesync

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature is returned when webhook signature validation fails.
	// Terminal for the delivery; the provider will not be asked to retry.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedEvent is returned when an event envelope is missing required
	// fields or has the wrong shape. Terminal; redelivery cannot help.
	ErrMalformedEvent = errors.New("malformed webhook event")

	// ErrUnknownResourceShape is returned when a resource payload lacks the
	// minimum fields its merger requires (the external id at minimum).
	// The event is not marked applied, so a corrected redelivery can succeed.
	ErrUnknownResourceShape = errors.New("unrecognized resource payload shape")

	// ErrNotFound is returned by point lookups when no record exists for the
	// given external id.
	ErrNotFound = errors.New("record not found")

	// ErrSubscriptionNotFound is returned by owner and quantity updates when
	// the subscription's external id is not yet known locally.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrConflictingOptions is returned when a caller requests mutually
	// exclusive checkout options. Surfaced synchronously, before any remote
	// or local write.
	ErrConflictingOptions = errors.New("conflicting checkout options")

	// ErrNotConfigured is returned when the processor is missing required
	// configuration for the requested operation.
	ErrNotConfigured = errors.New("stripesync not configured")
)

// HandlerError records the failure of one caller-registered handler. Handler
// failures are isolated: they are collected on the delivery outcome and
// surfaced to the logger and metrics, but never change the HTTP response.
type HandlerError struct {
	EventID   string
	EventType string
	Handler   int // position in the registration order for the event type
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %d for %s (%s): %v", e.Handler, e.EventType, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
