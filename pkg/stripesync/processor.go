package stripesync

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/stripesync/pkg/stripesync/internal"
)

const (
	defaultWebhookPath       = "/webhooks/stripe"
	defaultMaxBodyBytes      = 256 * 1024
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
)

// DeliveryState tracks one webhook delivery through the processor.
type DeliveryState int

const (
	StateReceived DeliveryState = iota
	StateAuthenticated
	StateDecoded
	StateDeduplicated
	StateMerging
	StateMerged
	StateHandlersRunning
	StateCompleted
	StateRejected
	StateMergeFailed
)

func (s DeliveryState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateAuthenticated:
		return "authenticated"
	case StateDecoded:
		return "decoded"
	case StateDeduplicated:
		return "deduplicated"
	case StateMerging:
		return "merging"
	case StateMerged:
		return "merged"
	case StateHandlersRunning:
		return "handlers_running"
	case StateCompleted:
		return "completed"
	case StateRejected:
		return "rejected"
	case StateMergeFailed:
		return "merge_failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one delivery.
type Outcome struct {
	State     DeliveryState
	EventID   string
	EventType string

	// Duplicate is true when the idempotency guard short-circuited the
	// delivery: the merge and custom handlers did not re-run.
	Duplicate bool

	// Err is the rejection or merge error, nil on Completed.
	Err error

	// HandlerErrors collects per-handler failures. They never change the
	// HTTP status.
	HandlerErrors []*HandlerError
}

// HTTPStatus maps the terminal state to the response the provider keys its
// retry behavior off: Completed acknowledges, Rejected tells it not to
// retry, MergeFailed asks for redelivery.
func (o *Outcome) HTTPStatus() int {
	switch o.State {
	case StateCompleted:
		return http.StatusOK
	case StateRejected:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Config holds processor configuration.
type Config struct {
	// Store is the durable record store events reconcile into (required).
	Store Store

	// WebhookSecret verifies delivery signatures (required for the HTTP
	// endpoint; Process can be driven directly without it).
	WebhookSecret string

	// WebhookPath is where the route adapters mount the endpoint
	// (default: /webhooks/stripe).
	WebhookPath string

	// Client performs outbound provider calls for checkout, seat-quantity
	// updates, and backfill. Optional; those operations fail with
	// ErrNotConfigured without it.
	Client RemoteClient

	// StaleEventGuard makes mergers drop payloads whose event timestamp is
	// older than the stored record's. Default off: last write wins by
	// arrival order.
	StaleEventGuard bool

	// MaxBodyBytes caps the webhook request body (default: 256 KiB).
	MaxBodyBytes int64

	// Logger is used for structured logging (default: NoopLogger).
	Logger Logger

	// Metrics is used for tracking processing (default: NoopMetrics).
	Metrics Metrics
}

// Processor is the webhook event processor: it authenticates deliveries,
// applies them to the Store with an idempotent order-tolerant merge, and
// fans them out to registered handlers.
type Processor struct {
	store       Store
	client      RemoteClient
	registry    *registry
	logger      Logger
	metrics     Metrics
	limiter     *internal.RateLimiter
	secret      []byte
	webhookPath string
	maxBody     int64
	staleGuard  bool
}

// New creates a Processor. The Store is required; everything else has
// defaults.
func New(cfg Config) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: Store is required", ErrNotConfigured)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	path := cfg.WebhookPath
	if path == "" {
		path = defaultWebhookPath
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	return &Processor{
		store:       cfg.Store,
		client:      cfg.Client,
		registry:    newRegistry(),
		logger:      logger,
		metrics:     metrics,
		limiter:     internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		secret:      []byte(cfg.WebhookSecret),
		webhookPath: path,
		maxBody:     maxBody,
		staleGuard:  cfg.StaleEventGuard,
	}, nil
}

// On registers a handler for an exact event type. Handlers run in
// registration order, after the merge commits. Registration is
// setup-time only; it is not safe to call while serving.
func (p *Processor) On(eventType string, h HandlerFunc) {
	p.registry.on(eventType, h)
}

// OnAny registers a catch-all observer invoked for every event, after the
// type-specific handlers.
func (p *Processor) OnAny(h HandlerFunc) {
	p.registry.onAny(h)
}

// WebhookPath returns the configured mount path for the webhook endpoint.
func (p *Processor) WebhookPath() string {
	return p.webhookPath
}

// Store exposes the underlying record store (used by the query surface).
func (p *Processor) Store() Store {
	return p.store
}

// WebhookHandler returns the HTTP handler for provider webhooks, wrapped
// with per-IP rate limiting.
func (p *Processor) WebhookHandler() http.Handler {
	return p.limiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// handleWebhook authenticates and processes one inbound delivery.
func (p *Processor) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(p.secret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, p.maxBody)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError("payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError("invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	// Signature and timestamp freshness are the verification collaborator's
	// job; everything past this gate trusts the body.
	if _, err := stripe.ConstructEvent(body, sig, string(p.secret)); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		p.metrics.RecordWebhookError("auth_failed")
		return
	}

	ev, err := DecodeEvent(body)
	if err != nil {
		// Terminal: redelivery of the same malformed body cannot help.
		http.Error(w, "malformed event", http.StatusBadRequest)
		p.metrics.RecordWebhookError("malformed_event")
		return
	}

	outcome := p.Process(r.Context(), ev)
	status := outcome.HTTPStatus()
	if status != http.StatusOK {
		http.Error(w, "failed to process webhook", status)
		p.metrics.RecordWebhookEvent(ev.Type, "error")
		p.metrics.RecordWebhookProcessingDuration(ev.Type, time.Since(startTime))
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		return
	}

	if outcome.Duplicate {
		p.metrics.RecordWebhookEvent(ev.Type, "duplicate")
	} else {
		p.metrics.RecordWebhookEvent(ev.Type, "success")
	}
	p.metrics.RecordWebhookProcessingDuration(ev.Type, time.Since(startTime))
}
