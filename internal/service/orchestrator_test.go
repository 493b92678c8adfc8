package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/docuvet/docuvet/internal/core"
	"github.com/docuvet/docuvet/internal/data"
	"github.com/docuvet/docuvet/internal/domain/model"
	"github.com/docuvet/docuvet/internal/domain/queue"
	"github.com/docuvet/docuvet/internal/mocks"
)

type fakeRequestRepo struct {
	mu          sync.Mutex
	reqs        map[string]*model.VerificationRequest
	finalized   map[string]model.Verdict
	forceFailed map[string]string
	rearmed     []string
	nextID      int
}

var _ core.VerificationRepository = (*fakeRequestRepo)(nil)

func newFakeRequestRepo(reqs ...*model.VerificationRequest) *fakeRequestRepo {
	r := &fakeRequestRepo{
		reqs:        map[string]*model.VerificationRequest{},
		finalized:   map[string]model.Verdict{},
		forceFailed: map[string]string{},
	}
	for _, req := range reqs {
		r.reqs[req.ID] = req
	}
	return r
}

func (r *fakeRequestRepo) Create(_ context.Context, req *model.CreateVerificationRequest) (*model.VerificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	created := &model.VerificationRequest{
		ID:           fmt.Sprintf("req-%d", r.nextID),
		ClientRef:    req.ClientRef,
		OwnerID:      req.OwnerID,
		DocumentType: req.DocumentType,
		FileURL:      req.FileURL,
		Metadata:     req.Metadata,
		BulkJobID:    req.BulkJobID,
		Status:       model.StatusAccepted,
	}
	r.reqs[created.ID] = created
	return created, nil
}

func (r *fakeRequestRepo) GetByID(_ context.Context, id string) (*model.VerificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return nil, data.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *fakeRequestRepo) BeginProcessing(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok || req.Status != model.StatusAccepted {
		return false, nil
	}
	req.Status = model.StatusProcessing
	return true, nil
}

func (r *fakeRequestRepo) Rearm(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok || req.Status != model.StatusProcessing {
		return false, nil
	}
	req.Status = model.StatusAccepted
	r.rearmed = append(r.rearmed, id)
	return true, nil
}

func (r *fakeRequestRepo) FinalizeVerdict(_ context.Context, params core.FinalizeVerdictParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[params.RequestID]
	if !ok {
		return data.ErrNotFound
	}
	r.finalized[params.RequestID] = params.Verdict
	req.Status = params.Verdict.Status
	req.Confidence = params.Verdict.Confidence
	req.RiskScore = params.Verdict.RiskScore
	req.Issues = params.Verdict.Issues
	req.ExtractedData = params.Verdict.ExtractedData
	return nil
}

func (r *fakeRequestRepo) ForceFail(_ context.Context, id, issue string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forceFailed[id] = issue
	if req, ok := r.reqs[id]; ok {
		req.Status = model.StatusFailed
		req.Issues = []string{issue}
	}
	return nil
}

func (r *fakeRequestRepo) Reprocess(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok || !req.Status.Terminal() {
		return false, nil
	}
	req.Status = model.StatusAccepted
	req.Confidence = 0
	req.RiskScore = 0
	req.Issues = nil
	req.ExtractedData = nil
	return true, nil
}

func (r *fakeRequestRepo) ListAcceptedIDs(_ context.Context, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id, req := range r.reqs {
		if req.Status == model.StatusAccepted && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *fakeRequestRepo) status(id string) model.RequestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reqs[id].Status
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	records []*model.AuditRecord
}

func (r *fakeAuditRepo) Append(_ context.Context, record *model.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeAuditRepo) categories() []model.AuditCategory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AuditCategory, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Category)
	}
	return out
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []model.RequestStatus
}

func (n *recordingNotifier) TriggerVerification(_ context.Context, req *model.VerificationRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, req.Status)
	return nil
}

type recordingRecomputer struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingRecomputer) Recompute(_ context.Context, bulkJobID string) (*model.BulkJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, bulkJobID)
	return &model.BulkJob{ID: bulkJobID}, nil
}

type staticResolver struct {
	cfg *model.DocumentTypeConfig
	err error
}

func (r staticResolver) Resolve(context.Context, string, string) (*model.DocumentTypeConfig, error) {
	return r.cfg, r.err
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	reqs []queue.EnqueueRequest
	err  error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, req queue.EnqueueRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	return "job-1", e.err
}

type orchestratorFixture struct {
	repo      *fakeRequestRepo
	audit     *fakeAuditRepo
	notifier  *recordingNotifier
	bulk      *recordingRecomputer
	enqueuer  *recordingEnqueuer
	extractor *mocks.MockExtractor
	orch      *Orchestrator
}

func newOrchestratorFixture(t *testing.T, cfg *model.DocumentTypeConfig, reqs ...*model.VerificationRequest) *orchestratorFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	f := &orchestratorFixture{
		repo:      newFakeRequestRepo(reqs...),
		audit:     &fakeAuditRepo{},
		notifier:  &recordingNotifier{},
		bulk:      &recordingRecomputer{},
		enqueuer:  &recordingEnqueuer{},
		extractor: mocks.NewMockExtractor(ctrl),
	}
	f.orch = MustNewOrchestrator(OrchestratorOptions{
		Requests:  f.repo,
		DocTypes:  staticResolver{cfg: cfg},
		Extractor: f.extractor,
		Validator: newTestValidator(),
		Engine:    NewRuleEngine(RuleEngineOptions{}),
		Audit:     f.audit,
		Queue:     f.enqueuer,
		Notifier:  f.notifier,
		Bulk:      f.bulk,
		Now:       fixedClock,
	})
	return f
}

func acceptedRequest(id string) *model.VerificationRequest {
	return &model.VerificationRequest{
		ID:           id,
		OwnerID:      "owner-1",
		DocumentType: "pan",
		FileURL:      "https://files.example.com/doc.pdf",
		Metadata:     map[string]string{"name": "Asha Verma"},
		Status:       model.StatusAccepted,
	}
}

func TestOrchestrator_Process_VerifiedEndToEnd(t *testing.T) {
	f := newOrchestratorFixture(t, panConfig(), acceptedRequest("req-1"))

	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.ExtractionRequest) (*model.ExtractionResult, error) {
			assert.Equal(t, "https://files.example.com/doc.pdf", req.FileURL)
			assert.Equal(t, "pan", req.DocumentType)
			assert.Equal(t, []string{"pan_number", "name"}, req.RequiredFields)
			res := cleanPANExtraction(92, 0.05)
			res.ExtractedData["date_of_birth"] = "1990-04-21"
			res.Raw = json.RawMessage(`{"ok":true}`)
			return res, nil
		})

	require.NoError(t, f.orch.Process(context.Background(), "req-1"))

	assert.Equal(t, model.StatusVerified, f.repo.status("req-1"))
	verdict := f.repo.finalized["req-1"]
	assert.Equal(t, 92, verdict.Confidence)
	assert.InDelta(t, 0.05, verdict.RiskScore, 1e-9)
	assert.Equal(t, json.RawMessage(`{"ok":true}`), verdict.RawResponse)
	assert.NotEmpty(t, verdict.ExtractedData)

	assert.Equal(t, []model.AuditCategory{model.AuditNormal}, f.audit.categories())
	assert.Equal(t, []model.RequestStatus{model.StatusVerified}, f.notifier.statuses)
	assert.Empty(t, f.bulk.ids)
}

func TestOrchestrator_Process_IdempotencyGuard(t *testing.T) {
	req := acceptedRequest("req-1")
	req.Status = model.StatusProcessing
	f := newOrchestratorFixture(t, panConfig(), req)

	// The extractor must never be called for a non-accepted request.
	require.NoError(t, f.orch.Process(context.Background(), "req-1"))

	assert.Equal(t, model.StatusProcessing, f.repo.status("req-1"))
	assert.Empty(t, f.audit.categories())
	assert.Empty(t, f.notifier.statuses)
}

func TestOrchestrator_Process_MissingRequestIsNoop(t *testing.T) {
	f := newOrchestratorFixture(t, panConfig())
	require.NoError(t, f.orch.Process(context.Background(), "ghost"))
}

func TestOrchestrator_Process_WrongDocumentClearsExtractedData(t *testing.T) {
	f := newOrchestratorFixture(t, panConfig(), acceptedRequest("req-1"))

	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		Return(&model.ExtractionResult{
			DocumentTypeMatch:    false,
			DetectedDocumentType: "aadhaar",
			Status:               string(model.StatusVerified),
			Confidence:           95,
			RiskScore:            0.02,
			ExtractedData:        map[string]string{"aadhaar_number": "234512345678"},
		}, nil)

	require.NoError(t, f.orch.Process(context.Background(), "req-1"))

	assert.Equal(t, model.StatusRejected, f.repo.status("req-1"))
	verdict := f.repo.finalized["req-1"]
	assert.Equal(t, 0, verdict.Confidence)
	assert.Equal(t, 1.0, verdict.RiskScore)
	assert.Nil(t, verdict.ExtractedData)
	assert.Equal(t, []model.AuditCategory{model.AuditWrongDocument}, f.audit.categories())
	assert.Equal(t, []model.RequestStatus{model.StatusRejected}, f.notifier.statuses)
}

func TestOrchestrator_Process_TransientExtractorErrorRearms(t *testing.T) {
	f := newOrchestratorFixture(t, panConfig(), acceptedRequest("req-1"))

	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connect: connection refused"))

	err := f.orch.Process(context.Background(), "req-1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection refused")

	// Handed back to accepted so a retry (or the poller) can claim it.
	assert.Equal(t, model.StatusAccepted, f.repo.status("req-1"))
	assert.Contains(t, f.repo.rearmed, "req-1")
	assert.Empty(t, f.repo.forceFailed)
	assert.Empty(t, f.audit.categories())
	assert.Empty(t, f.notifier.statuses)
}

func TestOrchestrator_Process_MalformedResponseFailsPermanently(t *testing.T) {
	f := newOrchestratorFixture(t, panConfig(), acceptedRequest("req-1"))

	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: missing status field", core.ErrMalformedResponse))

	// Permanent: no error returned, nothing left for the queue to retry.
	require.NoError(t, f.orch.Process(context.Background(), "req-1"))

	assert.Equal(t, model.StatusFailed, f.repo.status("req-1"))
	assert.Contains(t, f.repo.forceFailed["req-1"], "malformed extractor response")
	assert.Equal(t, []model.AuditCategory{model.AuditPipelineFailed}, f.audit.categories())
	assert.Equal(t, []model.RequestStatus{model.StatusFailed}, f.notifier.statuses)
}

func TestOrchestrator_Process_ConfigResolutionFailureFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := newFakeRequestRepo(acceptedRequest("req-1"))
	audit := &fakeAuditRepo{}
	orch := MustNewOrchestrator(OrchestratorOptions{
		Requests:  repo,
		DocTypes:  staticResolver{err: errors.New("config store down")},
		Extractor: mocks.NewMockExtractor(ctrl),
		Validator: newTestValidator(),
		Engine:    NewRuleEngine(RuleEngineOptions{}),
		Audit:     audit,
		Now:       fixedClock,
	})

	require.NoError(t, orch.Process(context.Background(), "req-1"))

	assert.Equal(t, model.StatusFailed, repo.status("req-1"))
	assert.Contains(t, repo.forceFailed["req-1"], "config store down")
	assert.Equal(t, []model.AuditCategory{model.AuditPipelineFailed}, audit.categories())
}

func TestOrchestrator_Process_RecoversPanics(t *testing.T) {
	f := newOrchestratorFixture(t, panConfig(), acceptedRequest("req-1"))

	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *model.ExtractionRequest) (*model.ExtractionResult, error) {
			panic("extractor blew up")
		})

	require.NoError(t, f.orch.Process(context.Background(), "req-1"))

	assert.Equal(t, model.StatusFailed, f.repo.status("req-1"))
	assert.Contains(t, f.repo.forceFailed["req-1"], "pipeline panic")
	assert.Equal(t, []model.AuditCategory{model.AuditPipelineFailed}, f.audit.categories())
}

func TestOrchestrator_Process_BulkMemberTriggersRecompute(t *testing.T) {
	bulkID := "bulk-1"
	req := acceptedRequest("req-1")
	req.BulkJobID = &bulkID
	f := newOrchestratorFixture(t, panConfig(), req)

	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		Return(cleanPANExtraction(92, 0.05), nil)

	require.NoError(t, f.orch.Process(context.Background(), "req-1"))

	assert.Equal(t, []string{"bulk-1"}, f.bulk.ids)
}

func TestOrchestrator_Process_TamperingAuditCategory(t *testing.T) {
	f := newOrchestratorFixture(t, panConfig(), acceptedRequest("req-1"))

	ext := cleanPANExtraction(95, 0.10)
	ac := cleanAuthenticity()
	ac.TamperingDetected = true
	ext.AuthenticityChecks = ac
	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(ext, nil)

	require.NoError(t, f.orch.Process(context.Background(), "req-1"))

	assert.Equal(t, model.StatusRejected, f.repo.status("req-1"))
	assert.Equal(t, []model.AuditCategory{model.AuditTamperingSuspected}, f.audit.categories())
}

func TestOrchestrator_HandlePermanentFailure(t *testing.T) {
	f := newOrchestratorFixture(t, panConfig(), acceptedRequest("req-1"))

	job := &model.Job{
		ID:      "job-1",
		Type:    model.JobTypeVerify,
		Payload: json.RawMessage(`{"request_id":"req-1"}`),
		Attempt: 3,
	}
	f.orch.HandlePermanentFailure(context.Background(), job, errors.New("extraction unavailable"))

	assert.Equal(t, model.StatusFailed, f.repo.status("req-1"))
	assert.Contains(t, f.repo.forceFailed["req-1"], "verification attempts exhausted")
	assert.Equal(t, []model.AuditCategory{model.AuditPipelineFailed}, f.audit.categories())
	assert.Equal(t, []model.RequestStatus{model.StatusFailed}, f.notifier.statuses)
}

func TestOrchestrator_Submit(t *testing.T) {
	f := newOrchestratorFixture(t, panConfig())

	t.Run("rejects invalid submissions", func(t *testing.T) {
		_, err := f.orch.Submit(context.Background(), &model.CreateVerificationRequest{
			OwnerID:      "owner-1",
			DocumentType: "pan",
			FileURL:      "not-a-url",
		})
		require.Error(t, err)
	})

	t.Run("creates and enqueues", func(t *testing.T) {
		created, err := f.orch.Submit(context.Background(), &model.CreateVerificationRequest{
			OwnerID:      "owner-1",
			DocumentType: "pan",
			FileURL:      "https://files.example.com/doc.pdf",
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusAccepted, created.Status)

		require.Len(t, f.enqueuer.reqs, 1)
		assert.Equal(t, model.JobTypeVerify, f.enqueuer.reqs[0].Type)
		assert.Equal(t, created.ID, f.enqueuer.reqs[0].TrackingKey)
	})
}

func TestOrchestrator_SubmitBulk(t *testing.T) {
	f := newOrchestratorFixture(t, panConfig())
	bulkSvc, err := NewBulkService(BulkServiceOptions{Repo: newFakeBulkRepo()})
	require.NoError(t, err)

	items := []*model.CreateVerificationRequest{
		{DocumentType: "pan", FileURL: "https://files.example.com/1.pdf"},
		{DocumentType: "aadhaar", FileURL: "https://files.example.com/2.pdf"},
	}
	job, created, err := f.orch.SubmitBulk(context.Background(), "owner-1", items, bulkSvc)
	require.NoError(t, err)

	assert.Equal(t, 2, job.Total)
	require.Len(t, created, 2)
	for _, req := range created {
		require.NotNil(t, req.BulkJobID)
		assert.Equal(t, job.ID, *req.BulkJobID)
		assert.Equal(t, "owner-1", req.OwnerID)
	}
	assert.Len(t, f.enqueuer.reqs, 2)

	t.Run("rejects batch with invalid item before writing", func(t *testing.T) {
		before := len(f.repo.reqs)
		_, _, err := f.orch.SubmitBulk(context.Background(), "owner-1", []*model.CreateVerificationRequest{
			{DocumentType: "pan", FileURL: "https://files.example.com/ok.pdf"},
			{DocumentType: "", FileURL: "https://files.example.com/bad.pdf"},
		}, bulkSvc)
		require.Error(t, err)
		assert.Len(t, f.repo.reqs, before)
	})
}

func TestOrchestrator_Reprocess(t *testing.T) {
	req := acceptedRequest("req-1")
	req.Status = model.StatusRejected
	f := newOrchestratorFixture(t, panConfig(), req)

	ok, err := f.orch.Reprocess(context.Background(), "req-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.StatusAccepted, f.repo.status("req-1"))
	require.Len(t, f.enqueuer.reqs, 1)
	assert.Equal(t, "req-1", f.enqueuer.reqs[0].TrackingKey)

	t.Run("non-terminal request is not reprocessed", func(t *testing.T) {
		ok, err := f.orch.Reprocess(context.Background(), "req-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
