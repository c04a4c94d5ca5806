package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/accruals-router/internal/config"
	"github.com/kirillkom/accruals-router/internal/core/ports"
	"github.com/kirillkom/accruals-router/internal/core/usecase"
	"github.com/kirillkom/accruals-router/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/accruals-router/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/accruals-router/internal/infrastructure/locking"
	"github.com/kirillkom/accruals-router/internal/infrastructure/queue/nats"
	"github.com/kirillkom/accruals-router/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/accruals-router/internal/infrastructure/resilience"
	"github.com/kirillkom/accruals-router/internal/infrastructure/sheets/xlsx"
	"github.com/kirillkom/accruals-router/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/accruals-router/internal/observability/logging"
	"github.com/kirillkom/accruals-router/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     *nats.Queue
	Intake    ports.DocumentIntake
	Lifecycle ports.LifecycleService
	Metrics   *metrics.PipelineMetrics

	closeFn func()
}

// New wires the pipeline for service. Pipeline metrics register on registry,
// or on a private one when it is nil.
func New(ctx context.Context, cfg config.Config, service string, registry *prometheus.Registry) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	tables, err := xlsx.New(cfg.LogsPath)
	if err != nil {
		return nil, fmt.Errorf("init log store: %w", err)
	}
	files, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}

	queueExecutor := resilience.NewExecutor(resilience.BrokerPolicy(),
		resilience.WithDependency("nats"), resilience.WithLogger(logger))
	queue, err := nats.New(cfg.NATSURL,
		nats.Subjects{StatusChanges: cfg.NATSStatusSubject, Transitions: cfg.NATSEventsSubject},
		nats.WithExecutor(queueExecutor), nats.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	var db *sql.DB
	var messages ports.MessageLedger
	if cfg.PostgresDSN != "" {
		db, err = postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			queue.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		ledger := postgres.NewMessageLedger(db)
		if err := ledger.EnsureSchema(ctx); err != nil {
			queue.Close()
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		messages = ledger
	} else {
		logger.Info("message_ledger_disabled", "reason", "POSTGRES_DSN is empty")
	}

	extractor := pdftext.NewExtractor()
	var classifier ports.InvoiceClassifier
	if cfg.ClassifierEnabled {
		classifierPolicy := resilience.ClassifierPolicy(cfg.ClassifierRatePerSec, cfg.ClassifierRetries)
		client := ollama.New(cfg.ClassifierURL, cfg.ClassifierModel, ollama.Options{
			APIKey:  cfg.ClassifierAPIKey,
			Timeout: cfg.ClassifierTimeout,
			ResilienceExecutor: resilience.NewExecutor(classifierPolicy,
				resilience.WithDependency("classifier"), resilience.WithLogger(logger)),
		})
		classifier = ollama.NewClassifier(client, extractor)
	} else {
		logger.Warn("classifier_disabled", "fallback", "heuristic")
	}

	pipelineMetrics := metrics.NewPipelineMetrics(service, registry)
	opts := []usecase.Option{
		usecase.WithLogger(logger),
		usecase.WithMetrics(pipelineMetrics),
		usecase.WithIDPrefix(cfg.IDPrefix),
		usecase.WithRules(rules),
	}

	locker := locking.NewCompanyLocker(cfg.LockTimeout)
	router := usecase.NewFolderRouter(files)
	adapter := usecase.NewClassificationAdapter(classifier, extractor, opts...)

	intake := usecase.NewIntakeUseCase(tables, files, router, adapter, locker, messages, opts...)
	lifecycle := usecase.NewLifecycleUseCase(tables, files, router, adapter, locker, queue, opts...)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Queue:     queue,
		Intake:    intake,
		Lifecycle: lifecycle,
		Metrics:   pipelineMetrics,

		closeFn: func() {
			queue.Close()
			if db != nil {
				_ = db.Close()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
