package stripesync

import "time"

// Metrics defines the interface for tracking webhook processing operations.
// All methods are optional - the processor gracefully handles nil metrics.
type Metrics interface {
	// RecordWebhookEvent records a processed webhook delivery.
	// status: "success", "duplicate", or "error"
	RecordWebhookEvent(eventType, status string)

	// RecordWebhookProcessingDuration records how long one delivery took.
	RecordWebhookProcessingDuration(eventType string, duration time.Duration)

	// RecordWebhookError records a delivery-level error.
	// errorType: "auth_failed", "invalid_payload", "malformed_event", "merge_failed"
	RecordWebhookError(errorType string)

	// RecordHandlerError records a caller-registered handler failure.
	RecordHandlerError(eventType string)

	// RecordMerge records a merge decision for a resource kind.
	// decision: "insert", "update", or "skip"
	RecordMerge(eventType, decision string)

	// RecordAPICall records an outbound call to the provider.
	// status: "success" or "error"
	RecordAPICall(endpoint, status string)

	// RecordAPICallDuration records how long an outbound call took.
	RecordAPICallDuration(endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_ string)                               {}
func (n *NoopMetrics) RecordHandlerError(_ string)                               {}
func (n *NoopMetrics) RecordMerge(_, _ string)                                   {}
func (n *NoopMetrics) RecordAPICall(_, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_ string, _ time.Duration)           {}
