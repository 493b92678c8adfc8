package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docuvet/docuvet/internal/core"
	"github.com/docuvet/docuvet/internal/data"
	"github.com/docuvet/docuvet/internal/domain/model"
	"github.com/docuvet/docuvet/internal/domain/queue"
	"github.com/docuvet/docuvet/internal/observability/metrics"
	"github.com/docuvet/docuvet/internal/observability/statsd"
)

// verifyEnqueuer is the minimal queue behavior the orchestrator needs.
type verifyEnqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
}

// verdictNotifier is the minimal dispatcher behavior the orchestrator needs.
type verdictNotifier interface {
	TriggerVerification(ctx context.Context, req *model.VerificationRequest) error
}

// bulkRecomputer re-derives a bulk aggregate after a member reaches a terminal state.
type bulkRecomputer interface {
	Recompute(ctx context.Context, bulkJobID string) (*model.BulkJob, error)
}

// docTypeResolver resolves a document-type config with owner-to-global fallback.
type docTypeResolver interface {
	Resolve(ctx context.Context, code, ownerID string) (*model.DocumentTypeConfig, error)
}

// OrchestratorOptions groups dependencies for Orchestrator.
type OrchestratorOptions struct {
	Requests  core.VerificationRepository
	DocTypes  docTypeResolver
	Extractor core.Extractor
	Validator *Validator
	Engine    *RuleEngine
	Audit     core.AuditRepository
	Queue     verifyEnqueuer              // optional: submissions fall back to the poller
	Notifier  verdictNotifier             // optional
	Bulk      bulkRecomputer              // optional
	Metrics   statsd.Sink                 // optional
	Logger    *slog.Logger                // optional
	Now       func() time.Time            // optional, injectable for tests
}

// Orchestrator drives a verification request through the pipeline: claim,
// extract, validate, score, persist, audit, notify, aggregate. The request
// state machine is accepted -> processing -> {verified|rejected|failed};
// terminal states are final and only an explicit reprocess re-enters them.
type Orchestrator struct {
	requests  core.VerificationRepository
	doctypes  docTypeResolver
	extractor core.Extractor
	validator *Validator
	engine    *RuleEngine
	audit     core.AuditRepository
	queue     verifyEnqueuer
	notifier  verdictNotifier
	bulk      bulkRecomputer
	metrics   statsd.Sink
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	switch {
	case opts.Requests == nil:
		return nil, errors.New("orchestrator: verification repository is required")
	case opts.DocTypes == nil:
		return nil, errors.New("orchestrator: doctype resolver is required")
	case opts.Extractor == nil:
		return nil, errors.New("orchestrator: extractor is required")
	case opts.Validator == nil:
		return nil, errors.New("orchestrator: validator is required")
	case opts.Engine == nil:
		return nil, errors.New("orchestrator: rule engine is required")
	case opts.Audit == nil:
		return nil, errors.New("orchestrator: audit repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		requests:  opts.Requests,
		doctypes:  opts.DocTypes,
		extractor: opts.Extractor,
		validator: opts.Validator,
		engine:    opts.Engine,
		audit:     opts.Audit,
		queue:     opts.Queue,
		notifier:  opts.Notifier,
		bulk:      opts.Bulk,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "orchestrator"),
		now:       now,
	}, nil
}

// MustNewOrchestrator constructs an Orchestrator and panics on error.
func MustNewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	o, err := NewOrchestrator(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
	}
	return o
}

// Submit records a new verification request and enqueues it for processing.
// An enqueue failure is not fatal: the request stays accepted and the poller
// recovers it on its next sweep.
func (o *Orchestrator) Submit(ctx context.Context, req *model.CreateVerificationRequest) (*model.VerificationRequest, error) {
	if req == nil {
		return nil, errors.New("orchestrator: create request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: validate submission: %w", err)
	}

	created, err := o.requests.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: create verification request: %w", err)
	}

	o.enqueueVerify(ctx, created.ID)
	return created, nil
}

// SubmitBulk records a bulk job plus one linked request per item and enqueues
// them all. Items are validated up front so a malformed entry rejects the
// whole batch before anything is written.
func (o *Orchestrator) SubmitBulk(
	ctx context.Context,
	ownerID string,
	items []*model.CreateVerificationRequest,
	bulk *BulkService,
) (*model.BulkJob, []*model.VerificationRequest, error) {
	if len(items) == 0 {
		return nil, nil, errors.New("orchestrator: bulk submission is empty")
	}
	if bulk == nil {
		return nil, nil, errors.New("orchestrator: bulk service is required")
	}
	for i, item := range items {
		if item == nil {
			return nil, nil, fmt.Errorf("orchestrator: bulk item %d is nil", i)
		}
		item.OwnerID = ownerID
		if err := item.Validate(); err != nil {
			return nil, nil, fmt.Errorf("orchestrator: validate bulk item %d: %w", i, err)
		}
	}

	job, err := bulk.Create(ctx, ownerID, len(items))
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: create bulk job: %w", err)
	}

	created := make([]*model.VerificationRequest, 0, len(items))
	for i, item := range items {
		item.BulkJobID = &job.ID
		req, err := o.requests.Create(ctx, item)
		if err != nil {
			return job, created, fmt.Errorf("orchestrator: create bulk item %d: %w", i, err)
		}
		o.enqueueVerify(ctx, req.ID)
		created = append(created, req)
	}
	return job, created, nil
}

// Get returns the current state of a verification request.
func (o *Orchestrator) Get(ctx context.Context, id string) (*model.VerificationRequest, error) {
	return o.requests.GetByID(ctx, id)
}

// Reprocess resets a terminal request to accepted and re-enqueues it.
func (o *Orchestrator) Reprocess(ctx context.Context, id string) (bool, error) {
	ok, err := o.requests.Reprocess(ctx, id)
	if err != nil {
		return false, fmt.Errorf("orchestrator: reprocess request: %w", err)
	}
	if ok {
		o.enqueueVerify(ctx, id)
	}
	return ok, nil
}

// Process runs the full pipeline for one request. It is the queue's verify
// handler: a returned error means the attempt is retryable. Permanent
// conditions are persisted here and reported as nil.
func (o *Orchestrator) Process(ctx context.Context, requestID string) (err error) {
	start := o.now()

	req, err := o.requests.GetByID(ctx, requestID)
	if errors.Is(err, data.ErrNotFound) {
		o.logger.WarnContext(ctx, "verification request vanished before processing", "request_id", requestID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load verification request: %w", err)
	}

	claimed, err := o.requests.BeginProcessing(ctx, requestID)
	if err != nil {
		return fmt.Errorf("claim verification request: %w", err)
	}
	if !claimed {
		// Already claimed or terminal. Duplicate deliveries land here.
		o.logger.DebugContext(ctx, "skipping request not in accepted state",
			"request_id", requestID, "status", req.Status)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			o.failPipeline(ctx, req, fmt.Sprintf("pipeline panic: %v", r), start)
			err = nil
		}
	}()

	cfg, cfgErr := o.doctypes.Resolve(ctx, req.DocumentType, req.OwnerID)
	if cfgErr != nil {
		o.failPipeline(ctx, req, fmt.Sprintf("resolve document type config: %v", cfgErr), start)
		return nil
	}

	ext, extErr := o.extractor.Extract(ctx, buildExtractionRequest(req, cfg))
	if extErr != nil {
		if errors.Is(extErr, core.ErrMalformedResponse) {
			o.failPipeline(ctx, req, extErr.Error(), start)
			return nil
		}
		// Transient failure: hand the request back to accepted so the retry
		// (or the poller, if attempts run out before then) can claim it again.
		if _, rearmErr := o.requests.Rearm(ctx, requestID); rearmErr != nil {
			o.logger.ErrorContext(ctx, "failed to rearm request after extractor error",
				"request_id", requestID, "error", rearmErr)
		}
		return fmt.Errorf("extract document: %w", extErr)
	}

	validation := o.validator.Validate(req.DocumentType, ext.ExtractedData, req.Metadata)
	verdict := o.engine.Score(ScoreInput{
		DocumentType: req.DocumentType,
		OwnerID:      req.OwnerID,
		Config:       cfg,
		Extraction:   ext,
		Validation:   validation,
	})

	final := model.Verdict{
		Status:        verdict.Status,
		Confidence:    verdict.Confidence,
		RiskScore:     verdict.RiskScore,
		Issues:        verdict.Issues,
		ExtractedData: ext.ExtractedData,
		RawResponse:   ext.Raw,
	}
	if verdict.WrongDocument {
		// Data extracted from the wrong document must not leak into the verdict.
		final.ExtractedData = nil
	}

	if persistErr := o.requests.FinalizeVerdict(ctx, core.FinalizeVerdictParams{
		RequestID: requestID,
		Verdict:   final,
	}); persistErr != nil {
		o.failPipeline(ctx, req, fmt.Sprintf("persist verdict: %v", persistErr), start)
		return nil
	}

	req.Status = final.Status
	req.Confidence = final.Confidence
	req.RiskScore = final.RiskScore
	req.Issues = final.Issues
	req.ExtractedData = final.ExtractedData

	category := classifyOutcome(verdict, ext, validation)
	o.appendAudit(ctx, req, category, strings.Join(verdict.Issues, "; "))
	o.notifyVerdict(ctx, req)
	o.recomputeBulk(ctx, req)

	metrics.EmitPipelineOutcome(o.metrics, metrics.PipelineMetric{
		DocumentType: req.DocumentType,
		Status:       string(req.Status),
		Category:     string(category),
		Duration:     o.now().Sub(start),
	})

	o.logger.InfoContext(ctx, "verification pipeline completed",
		"request_id", requestID,
		"document_type", req.DocumentType,
		"status", req.Status,
		"confidence", req.Confidence,
		"risk_score", req.RiskScore)
	return nil
}

// HandlePermanentFailure is wired as the queue's permanent-failure hook: once
// retries are exhausted the request must not stay claimable.
func (o *Orchestrator) HandlePermanentFailure(ctx context.Context, job *model.Job, cause error) {
	var payload model.VerifyJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		o.logger.ErrorContext(ctx, "permanent failure with undecodable payload",
			"job_id", job.ID, "error", err)
		return
	}

	req, err := o.requests.GetByID(ctx, payload.RequestID)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to load request for permanent failure",
			"request_id", payload.RequestID, "error", err)
		req = &model.VerificationRequest{ID: payload.RequestID}
	}

	issue := fmt.Sprintf("verification attempts exhausted: %v", cause)
	o.failPipeline(ctx, req, issue, o.now())
}

// failPipeline forces the request to failed and still runs the best-effort
// tail of the pipeline: audit, failure notification, bulk recompute. Each leg
// is isolated so one failing collaborator cannot mask another.
func (o *Orchestrator) failPipeline(ctx context.Context, req *model.VerificationRequest, issue string, start time.Time) {
	if err := o.requests.ForceFail(ctx, req.ID, issue); err != nil {
		o.logger.ErrorContext(ctx, "failed to mark request failed",
			"request_id", req.ID, "error", err)
	}

	req.Status = model.StatusFailed
	req.Confidence = 0
	req.RiskScore = 0
	req.Issues = []string{issue}

	o.appendAudit(ctx, req, model.AuditPipelineFailed, issue)
	o.notifyVerdict(ctx, req)
	o.recomputeBulk(ctx, req)

	metrics.EmitPipelineOutcome(o.metrics, metrics.PipelineMetric{
		DocumentType: req.DocumentType,
		Status:       string(model.StatusFailed),
		Category:     string(model.AuditPipelineFailed),
		Duration:     o.now().Sub(start),
		Err:          errors.New(issue),
	})

	o.logger.ErrorContext(ctx, "verification pipeline failed",
		"request_id", req.ID, "issue", issue)
}

func (o *Orchestrator) enqueueVerify(ctx context.Context, requestID string) {
	if o.queue == nil {
		return
	}
	payload, err := json.Marshal(model.VerifyJobPayload{RequestID: requestID})
	if err != nil {
		return
	}
	if _, err := o.queue.Enqueue(ctx, queue.EnqueueRequest{
		Type:        model.JobTypeVerify,
		Payload:     payload,
		TrackingKey: requestID,
	}); err != nil {
		o.logger.WarnContext(ctx, "enqueue failed, request left for poller recovery",
			"request_id", requestID, "error", err)
	}
}

func (o *Orchestrator) appendAudit(ctx context.Context, req *model.VerificationRequest, category model.AuditCategory, detail string) {
	record := &model.AuditRecord{
		OwnerID:   req.OwnerID,
		RequestID: req.ID,
		Category:  category,
		Detail:    detail,
	}
	if err := o.audit.Append(ctx, record); err != nil {
		o.logger.ErrorContext(ctx, "failed to append audit record",
			"request_id", req.ID, "category", category, "error", err)
	}
}

func (o *Orchestrator) notifyVerdict(ctx context.Context, req *model.VerificationRequest) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.TriggerVerification(ctx, req); err != nil {
		o.logger.ErrorContext(ctx, "failed to dispatch verdict notification",
			"request_id", req.ID, "error", err)
	}
}

func (o *Orchestrator) recomputeBulk(ctx context.Context, req *model.VerificationRequest) {
	if o.bulk == nil || req.BulkJobID == nil {
		return
	}
	if _, err := o.bulk.Recompute(ctx, *req.BulkJobID); err != nil {
		o.logger.ErrorContext(ctx, "failed to recompute bulk aggregate",
			"request_id", req.ID, "bulk_job_id", *req.BulkJobID, "error", err)
	}
}

func buildExtractionRequest(req *model.VerificationRequest, cfg *model.DocumentTypeConfig) *model.ExtractionRequest {
	out := &model.ExtractionRequest{
		FileURL:      req.FileURL,
		DocumentType: req.DocumentType,
		Metadata:     req.Metadata,
	}
	if cfg != nil {
		out.RequiredFields = cfg.RequiredFields
		out.ValidationRules = cfg.ValidationRules
	}
	return out
}

// classifyOutcome picks the audit category for a completed run. Override
// conditions win over plain validation failures.
func classifyOutcome(verdict ScoreVerdict, ext *model.ExtractionResult, validation ValidationResult) model.AuditCategory {
	switch {
	case verdict.WrongDocument:
		return model.AuditWrongDocument
	case ext.AuthenticityChecks != nil && ext.AuthenticityChecks.TamperingDetected:
		return model.AuditTamperingSuspected
	case len(ext.FraudIndicators) > 0 || (ext.IsGenuine != nil && !*ext.IsGenuine):
		return model.AuditFraudSuspected
	case !validation.Passed:
		return model.AuditValidationFailed
	default:
		return model.AuditNormal
	}
}
