package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/docuvet/docuvet/config"
	"github.com/docuvet/docuvet/internal/adapters/extractor"
	"github.com/docuvet/docuvet/internal/adapters/poller"
	"github.com/docuvet/docuvet/internal/adapters/worker"
	"github.com/docuvet/docuvet/internal/core"
	"github.com/docuvet/docuvet/internal/data"
	"github.com/docuvet/docuvet/internal/domain/queue"
	"github.com/docuvet/docuvet/internal/observability/statsd"
	"github.com/docuvet/docuvet/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	DocTypes     *service.DocTypeService
	Dispatcher   *service.Dispatcher
	Bulk         *service.BulkService
	Orchestrator *service.Orchestrator
	Worker       *worker.Runner
	Poller       *poller.Runner
	Metrics      statsd.Sink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	DB     *sql.DB
	Redis  *redis.Client // nil when the config cache is disabled
	Config *config.AppConfig
	Logger *slog.Logger
}

// serviceRepositories groups data adapters backing service ports; no business rules here.
type serviceRepositories struct {
	verifications *data.VerificationRepo
	doctypes      *data.DocTypeRepo
	bulks         *data.BulkJobRepo
	webhooks      *data.WebhookRepo
	audit         *data.AuditRepo
}

func buildRepositories(db *sql.DB) *serviceRepositories {
	return &serviceRepositories{
		verifications: data.NewVerificationRepo(db),
		doctypes:      data.NewDocTypeRepo(db),
		bulks:         data.NewBulkJobRepo(db),
		webhooks:      data.NewWebhookRepo(db),
		audit:         data.NewAuditRepo(db),
	}
}

// buildMetrics configures the StatsD sink. A dial failure downgrades to
// disabled metrics rather than blocking startup.
func buildMetrics(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) statsd.Sink {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  "docuvet",
		Logger:  logger,
	})
	if err != nil {
		logger.Warn("statsd client unavailable, metrics disabled", "error", err)
		return nil
	}
	return client
}

// queueHandle defers queue resolution so the orchestrator can enqueue into a
// queue that is constructed after it.
type queueHandle struct {
	q atomic.Pointer[queue.Queue]
}

func (h *queueHandle) set(q *queue.Queue) {
	h.q.Store(q)
}

// Enqueue forwards to the resolved queue. Until the worker is built the
// orchestrator treats the error as non-fatal and leaves recovery to the poller.
func (h *queueHandle) Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error) {
	q := h.q.Load()
	if q == nil {
		return "", errors.New("job queue not started")
	}
	return q.Enqueue(ctx, req)
}

// NewServices wires repositories, domain services, and runners from config.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.DB == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps require a database and config")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repos := buildRepositories(deps.DB)
	metrics := buildMetrics(logger, cfg.Observability.Metrics)

	var cache core.ConfigCache
	if deps.Redis != nil {
		cache = data.NewRedisConfigCache(deps.Redis)
	}

	doctypes, err := service.NewDocTypeService(service.DocTypeServiceOptions{
		Repo:     repos.doctypes,
		Cache:    cache,
		CacheTTL: cfg.Cache.DocTypeTTL,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build doctype service: %w", err)
	}

	extractorClient, err := extractor.NewClient(extractor.Options{
		BaseURL:    cfg.Extraction.BaseURL,
		APIKey:     cfg.Extraction.APIKey,
		HTTPClient: &http.Client{Timeout: cfg.Extraction.Timeout},
		Logger:     logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build extraction client: %w", err)
	}

	dispatcher, err := service.NewDispatcher(service.DispatcherOptions{
		Webhooks:         repos.webhooks,
		HTTPClient:       &http.Client{Timeout: cfg.Webhook.Timeout},
		MaxResponseBytes: cfg.Webhook.MaxResponseBytes,
		MaxFailures:      cfg.Webhook.MaxFailures,
		Metrics:          metrics,
		Logger:           logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build dispatcher: %w", err)
	}

	bulk, err := service.NewBulkService(service.BulkServiceOptions{
		Repo:     repos.bulks,
		Notifier: dispatcher,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build bulk service: %w", err)
	}

	handle := &queueHandle{}
	orchestrator, err := service.NewOrchestrator(service.OrchestratorOptions{
		Requests:  repos.verifications,
		DocTypes:  doctypes,
		Extractor: extractorClient,
		Validator: service.NewValidator(service.ValidatorOptions{}),
		Engine:    service.NewRuleEngine(service.RuleEngineOptions{Logger: logger}),
		Audit:     repos.audit,
		Queue:     handle,
		Notifier:  dispatcher,
		Bulk:      bulk,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build orchestrator: %w", err)
	}

	workerRunner, err := worker.NewRunner(worker.RunnerOptions{
		Processor:   orchestrator,
		Concurrency: cfg.Worker.Concurrency,
		MaxAttempts: cfg.Worker.MaxAttempts,
		BackoffBase: cfg.Worker.BackoffBase,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build worker: %w", err)
	}
	handle.set(workerRunner.Queue())

	pollerRunner, err := poller.NewRunner(poller.RunnerOptions{
		Requests:  repos.verifications,
		Queue:     workerRunner.Queue(),
		Interval:  cfg.Poller.Interval,
		BatchSize: cfg.Poller.BatchSize,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build poller: %w", err)
	}

	return ServiceContainer{
		DocTypes:     doctypes,
		Dispatcher:   dispatcher,
		Bulk:         bulk,
		Orchestrator: orchestrator,
		Worker:       workerRunner,
		Poller:       pollerRunner,
		Metrics:      metrics,
	}, nil
}

// RunServicesWithShutdown starts the enabled runners and blocks until a
// shutdown signal is received or a runner fails.
func RunServicesWithShutdown(cfg *config.AppConfig, services ServiceContainer, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("app config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if enabled[config.ServiceModeWorker] {
		g.Go(func() error {
			if runErr := services.Worker.Run(ctx); runErr != nil {
				return fmt.Errorf("worker: %w", runErr)
			}
			return nil
		})
	}
	if enabled[config.ServiceModePoller] {
		g.Go(func() error {
			if runErr := services.Poller.Run(ctx); runErr != nil {
				return fmt.Errorf("poller: %w", runErr)
			}
			return nil
		})
	}

	logger.Info("services started", "services", GetEnabledServices(cfg))

	if waitErr := g.Wait(); waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}

	logger.Info("services stopped")
	return nil
}
