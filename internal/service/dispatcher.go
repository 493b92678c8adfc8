package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/docuvet/docuvet/internal/core"
	"github.com/docuvet/docuvet/internal/domain/model"
	"github.com/docuvet/docuvet/internal/observability/metrics"
	"github.com/docuvet/docuvet/internal/observability/statsd"
)

// Signature and correlation headers attached to every webhook delivery.
const (
	HeaderSignature = "X-Docuvet-Signature"
	HeaderEvent     = "X-Docuvet-Event"
	HeaderTimestamp = "X-Docuvet-Timestamp"
)

const (
	defaultWebhookTimeout     = 10 * time.Second
	defaultMaxResponseBytes   = 4096
	defaultMaxWebhookFailures = 10
)

// PayloadFilterEvaluator abstracts JMESPath operations for testability.
type PayloadFilterEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathEvaluator implements PayloadFilterEvaluator using go-jmespath.
type jmespathEvaluator struct{}

func (jmespathEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (jmespathEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// DispatcherOptions groups dependencies for Dispatcher.
type DispatcherOptions struct {
	Webhooks         core.WebhookRepository
	HTTPClient       *http.Client           // optional, defaults to a 10s-timeout client
	Evaluator        PayloadFilterEvaluator // optional
	MaxResponseBytes int                    // optional, defaults to 4096
	MaxFailures      int                    // optional, defaults to 10
	Metrics          statsd.Sink            // optional
	Logger           *slog.Logger           // optional
	Now              func() time.Time       // optional, injectable for tests
}

// Dispatcher delivers verdict notifications to subscribed webhook endpoints.
// Deliveries are fire-and-forget: one attempt per endpoint per event, recorded
// in the append-only delivery log. A 2xx response resets the endpoint's
// failure count, anything else increments it; endpoints at or above the
// failure ceiling are skipped entirely.
type Dispatcher struct {
	webhooks    core.WebhookRepository
	client      *http.Client
	jems        PayloadFilterEvaluator
	maxRespSize int
	maxFailures int
	metrics     statsd.Sink
	logger      *slog.Logger
	now         func() time.Time
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Webhooks == nil {
		return nil, errors.New("dispatcher: webhook repository is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathEvaluator{}
	}
	maxResp := opts.MaxResponseBytes
	if maxResp <= 0 {
		maxResp = defaultMaxResponseBytes
	}
	maxFailures := opts.MaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxWebhookFailures
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		webhooks:    opts.Webhooks,
		client:      client,
		jems:        jems,
		maxRespSize: maxResp,
		maxFailures: maxFailures,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "webhook_dispatcher"),
		now:         now,
	}, nil
}

// MustNewDispatcher constructs a Dispatcher and panics on error.
func MustNewDispatcher(opts DispatcherOptions) *Dispatcher {
	d, err := NewDispatcher(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return d
}

// TriggerVerification notifies the owner's endpoints about a terminal verdict.
// A failed request notifies with the rejection event: from the consumer's
// perspective the document did not verify.
func (d *Dispatcher) TriggerVerification(ctx context.Context, req *model.VerificationRequest) error {
	if req == nil {
		return errors.New("dispatcher: verification request is nil")
	}

	event := model.EventDocumentRejected
	if req.Status == model.StatusVerified {
		event = model.EventDocumentVerified
	}

	payload := model.NotificationPayload{
		Event:        event,
		RequestID:    req.ID,
		DocumentType: req.DocumentType,
		Status:       req.Status,
		Confidence:   req.Confidence,
		RiskScore:    req.RiskScore,
		Timestamp:    d.now().UTC(),
	}
	if req.ClientRef != nil {
		payload.ClientRef = *req.ClientRef
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispatcher: marshal notification payload: %w", err)
	}
	return d.dispatch(ctx, req.OwnerID, event, body)
}

// TriggerBulk notifies the owner's endpoints that a bulk job reached a
// terminal aggregate status.
func (d *Dispatcher) TriggerBulk(ctx context.Context, job *model.BulkJob) error {
	if job == nil {
		return errors.New("dispatcher: bulk job is nil")
	}

	payload := model.BulkNotificationPayload{
		Event:     model.EventBulkCompleted,
		BulkJobID: job.ID,
		Status:    job.Status,
		Total:     job.Total,
		Verified:  job.Verified,
		Rejected:  job.Rejected,
		Failed:    job.Failed,
		Timestamp: d.now().UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dispatcher: marshal bulk payload: %w", err)
	}
	return d.dispatch(ctx, job.OwnerID, model.EventBulkCompleted, body)
}

// dispatch fans an event out to every deliverable subscription of the owner.
// Endpoint deliveries run concurrently and are fully isolated: one slow or
// failing endpoint never affects another.
func (d *Dispatcher) dispatch(ctx context.Context, ownerID, event string, body json.RawMessage) error {
	hooks, err := d.webhooks.ListDeliverable(ctx, ownerID, d.maxFailures)
	if err != nil {
		return fmt.Errorf("dispatcher: list deliverable webhooks: %w", err)
	}

	var wg sync.WaitGroup
	delivered := 0
	for _, hook := range hooks {
		if !hook.SubscribedTo(event) {
			continue
		}
		delivered++
		wg.Add(1)
		go func(hook *model.Webhook) {
			defer wg.Done()
			d.deliver(ctx, hook, event, body)
		}(hook)
	}
	wg.Wait()

	d.logger.DebugContext(ctx, "webhook event dispatched",
		"event", event,
		"owner_id", ownerID,
		"endpoints", delivered)
	return nil
}

// deliver makes exactly one attempt against one endpoint and records the
// outcome. There is no retry path.
func (d *Dispatcher) deliver(ctx context.Context, hook *model.Webhook, event string, body json.RawMessage) {
	start := d.now()
	if !d.passesPayloadFilter(hook, body) {
		d.logger.DebugContext(ctx, "webhook payload filter rejected event",
			"webhook_id", hook.ID, "event", event)
		return
	}

	delivery := &model.WebhookDelivery{
		WebhookID: hook.ID,
		Event:     event,
		Payload:   body,
	}

	status, respBody, truncated, sendErr := d.send(ctx, hook, event, body)
	delivery.StatusCode = status
	delivery.ResponseBody = respBody
	delivery.BodyTruncated = truncated
	delivery.Success = sendErr == nil && status >= 200 && status < 300
	if sendErr != nil {
		delivery.Error = sendErr.Error()
	} else if !delivery.Success {
		delivery.Error = fmt.Sprintf("endpoint returned status %d", status)
	}

	d.recordOutcome(ctx, hook, delivery)

	metrics.EmitWebhookDelivery(d.metrics, metrics.WebhookMetric{
		Event:    event,
		Success:  delivery.Success,
		Duration: d.now().Sub(start),
	})
}

func (d *Dispatcher) send(
	ctx context.Context,
	hook *model.Webhook,
	event string,
	body []byte,
) (status int, respBody string, truncated bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, SignPayload(hook.Secret, body))
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(d.now().Unix(), 10))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", false, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on a response we already read

	limited, err := io.ReadAll(io.LimitReader(resp.Body, int64(d.maxRespSize)+1))
	if err != nil {
		return resp.StatusCode, "", false, fmt.Errorf("read webhook response: %w", err)
	}
	if len(limited) > d.maxRespSize {
		return resp.StatusCode, string(limited[:d.maxRespSize]), true, nil
	}
	return resp.StatusCode, string(limited), false, nil
}

// passesPayloadFilter evaluates the subscription's JMESPath predicate against
// the payload. A falsy result skips the delivery. A broken expression fails
// open so a bad filter never silently suppresses notifications.
func (d *Dispatcher) passesPayloadFilter(hook *model.Webhook, body json.RawMessage) bool {
	expr := strings.TrimSpace(hook.PayloadFilter)
	if expr == "" {
		return true
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return true
	}
	res, err := d.jems.Evaluate(expr, data)
	if err != nil {
		d.logger.Warn("webhook payload filter failed, delivering anyway",
			"webhook_id", hook.ID, "error", err)
		return true
	}
	return !isJMESFalse(res)
}

// isJMESFalse applies JMESPath truthiness: null, false, empty string, empty
// array, and empty object are all false.
func isJMESFalse(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case bool:
		return !tv
	case string:
		return tv == ""
	case []any:
		return len(tv) == 0
	case map[string]any:
		return len(tv) == 0
	default:
		return false
	}
}

func (d *Dispatcher) recordOutcome(ctx context.Context, hook *model.Webhook, delivery *model.WebhookDelivery) {
	if err := d.webhooks.RecordDelivery(ctx, delivery); err != nil {
		d.logger.ErrorContext(ctx, "failed to record webhook delivery",
			"webhook_id", hook.ID, "error", err)
	}

	if delivery.Success {
		if err := d.webhooks.ResetFailureCount(ctx, hook.ID); err != nil {
			d.logger.ErrorContext(ctx, "failed to reset webhook failure count",
				"webhook_id", hook.ID, "error", err)
		}
		return
	}

	count, err := d.webhooks.IncrementFailureCount(ctx, hook.ID)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to increment webhook failure count",
			"webhook_id", hook.ID, "error", err)
		return
	}
	if count >= d.maxFailures {
		d.logger.WarnContext(ctx, "webhook endpoint reached failure ceiling, deliveries suspended",
			"webhook_id", hook.ID, "failure_count", count)
	}
}

// SignPayload computes the hex-encoded HMAC-SHA256 of the exact body bytes.
// Consumers verify deliveries by recomputing it with the shared secret.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// RegisterWebhook validates and stores a new subscription, rejecting invalid
// JMESPath filters up front.
func (d *Dispatcher) RegisterWebhook(ctx context.Context, req *model.CreateWebhookRequest) (*model.Webhook, error) {
	if req == nil {
		return nil, errors.New("dispatcher: create webhook request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("dispatcher: validate webhook: %w", err)
	}
	if err := d.jems.Validate(req.PayloadFilter); err != nil {
		return nil, fmt.Errorf("dispatcher: invalid payload filter: %w", err)
	}
	hook, err := d.webhooks.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: create webhook: %w", err)
	}
	return hook, nil
}
