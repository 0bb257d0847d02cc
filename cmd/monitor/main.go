package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docflowlabs/docqc/internal/bootstrap"
	"github.com/docflowlabs/docqc/internal/config"
	"github.com/docflowlabs/docqc/internal/core/domain"
	"github.com/docflowlabs/docqc/internal/infrastructure/scheduler"
	"github.com/docflowlabs/docqc/internal/observability/metrics"
)

const service = "docqc-monitor"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, service, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	m := metrics.NewMonitorMetrics(service)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MonitorMetricsPort,
		Handler: m.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("metrics_server_error", "error", err)
		}
	}()

	sched, err := scheduler.New(cfg.MonitorSchedule, app.Logger)
	if err != nil {
		log.Fatalf("invalid monitor schedule %q: %v", cfg.MonitorSchedule, err)
	}

	sched.Run(ctx, "accuracy_monitoring_pass", func(passCtx context.Context) error {
		result, err := app.MonitorUC.RunMonitoringPass(passCtx)
		if err != nil {
			return err
		}

		m.ObservePass(service, result.Duration, result.RulesProcessed, result.RulesSkipped, result.RulesRolledBack, len(result.Errors))
		for i := 0; i < result.RulesRolledBack; i++ {
			m.RecordRollback(service, string(domain.TriggerAuto))
		}
		for ruleID, accuracy := range result.RuleAccuracies {
			m.SetRuleAccuracy(service, ruleID, accuracy)
		}

		app.Logger.Info("monitoring_pass_finished",
			"duration_ms", result.Duration.Milliseconds(),
			"rules_processed", result.RulesProcessed,
			"rules_skipped", result.RulesSkipped,
			"rules_rolled_back", result.RulesRolledBack,
			"rule_errors", len(result.Errors),
		)
		return nil
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
