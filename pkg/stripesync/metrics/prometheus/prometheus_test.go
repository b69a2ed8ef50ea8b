package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordWebhookEvent("product.created", "success")
	m.RecordWebhookEvent("product.created", "success")
	m.RecordWebhookEvent("product.created", "duplicate")
	m.RecordWebhookError("auth_failed")
	m.RecordHandlerError("invoice.paid")
	m.RecordMerge("product.created", "insert")
	m.RecordAPICall("/checkout/sessions", "success")
	m.RecordWebhookProcessingDuration("product.created", 25*time.Millisecond)
	m.RecordAPICallDuration("/checkout/sessions", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("product.created", "success")); got != 2 {
		t.Errorf("webhook_events_total{success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("product.created", "duplicate")); got != 1 {
		t.Errorf("webhook_events_total{duplicate} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.webhookErrorsTotal.WithLabelValues("auth_failed")); got != 1 {
		t.Errorf("webhook_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.handlerErrorsTotal.WithLabelValues("invoice.paid")); got != 1 {
		t.Errorf("handler_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.mergesTotal.WithLabelValues("product.created", "insert")); got != 1 {
		t.Errorf("merges_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.apiCallsTotal.WithLabelValues("/checkout/sessions", "success")); got != 1 {
		t.Errorf("api_calls_total = %v, want 1", got)
	}

	// Histograms registered and collectable.
	if n := testutil.CollectAndCount(m.webhookProcessingDuration); n == 0 {
		t.Error("processing duration histogram not collectable")
	}
	if n := testutil.CollectAndCount(m.apiCallDuration); n == 0 {
		t.Error("api call duration histogram not collectable")
	}
}

func TestHistogramObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordWebhookProcessingDuration("product.created", 25*time.Millisecond)
	m.RecordWebhookProcessingDuration("product.created", 50*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	var family *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "test_stripesync_webhook_processing_duration_seconds" {
			family = mf
		}
	}
	if family == nil {
		t.Fatal("processing duration histogram not registered")
	}
	if got := family.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg, "billing")

	// Registering twice on the same registry must panic via promauto; a
	// fresh registry per processor avoids collisions.
	defer func() {
		if r := recover(); r == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	NewMetrics(reg, "billing")
}
