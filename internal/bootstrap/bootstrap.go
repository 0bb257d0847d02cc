package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docflowlabs/docqc/internal/config"
	"github.com/docflowlabs/docqc/internal/core/ports"
	"github.com/docflowlabs/docqc/internal/core/usecase"
	"github.com/docflowlabs/docqc/internal/infrastructure/extractor/rulemap"
	"github.com/docflowlabs/docqc/internal/infrastructure/identity"
	"github.com/docflowlabs/docqc/internal/infrastructure/queue/nats"
	"github.com/docflowlabs/docqc/internal/infrastructure/repository/postgres"
	"github.com/docflowlabs/docqc/internal/infrastructure/resilience"
	"github.com/docflowlabs/docqc/internal/infrastructure/tasks"
	"github.com/docflowlabs/docqc/internal/observability/logging"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     *nats.Queue
	Docs      ports.DocumentReader
	WorkQueue ports.QueueReader
	MappingUC ports.ScanMapper
	IntakeUC  ports.DocumentIntake
	ReviewUC  ports.ReviewService
	MonitorUC ports.AccuracyMonitor

	closeFn func()
}

func New(ctx context.Context, service string, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	docStore := postgres.NewDocumentStore(db)
	queueStore := postgres.NewQueueStore(db)
	reviewStore := postgres.NewReviewStore(db)
	escalationStore := postgres.NewEscalationStore(db)
	correctionStore := postgres.NewCorrectionStore(db)
	ruleStore := postgres.NewRuleStore(db)
	appStore := postgres.NewApplicationStore(db)
	rollbackStore := postgres.NewRollbackStore(db)

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSExtractedSubject, nats.Options{
		ScanSubject:        cfg.NATSScannedSubject,
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event queue: %w", err)
	}
	notifier := nats.NewNotifier(queue, cfg.NATSNotifySubject)
	auditor := nats.NewAuditor(queue, cfg.NATSAuditSubject)

	runner := tasks.NewRunner(cfg.TaskMaxConcurrent, time.Duration(cfg.TaskTimeoutSeconds)*time.Second)
	ident := identity.NewStatic(cfg.SupervisorIDs)
	mapper := rulemap.NewMapper(logger)

	mappingUC := usecase.NewMappingUseCase(ruleStore, mapper)
	intakeUC := usecase.NewIntakeUseCase(
		docStore,
		queueStore,
		appStore,
		cfg.CriticalFields,
		time.Duration(cfg.HistoryWindowHours)*time.Hour,
	)
	reviewUC := usecase.NewReviewWorkflow(
		reviewStore,
		escalationStore,
		correctionStore,
		ruleStore,
		ident,
		notifier,
		auditor,
		runner,
		cfg.SuggestionThreshold,
		time.Duration(cfg.SuggestionWindowDays)*24*time.Hour,
	)
	engine := usecase.NewRollbackEngine(
		ruleStore,
		rollbackStore,
		notifier,
		time.Duration(cfg.RollbackCooldownMinutes)*time.Minute,
	)
	monitorUC := usecase.NewAccuracyMonitorUseCase(ruleStore, appStore, engine, usecase.MonitorConfig{
		WindowHours:   cfg.MonitorWindowHours,
		MinSampleSize: cfg.MonitorMinSamples,
		DropThreshold: cfg.MonitorDropThreshold,
		MaxParallel:   cfg.MonitorMaxParallel,
	})

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:     queue,
		Docs:      docStore,
		WorkQueue: queueStore,
		MappingUC: mappingUC,
		IntakeUC:  intakeUC,
		ReviewUC:  reviewUC,
		MonitorUC: monitorUC,

		closeFn: func() {
			runner.Close()
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
