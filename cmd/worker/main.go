package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docflowlabs/docqc/internal/bootstrap"
	"github.com/docflowlabs/docqc/internal/config"
	"github.com/docflowlabs/docqc/internal/core/domain"
	"github.com/docflowlabs/docqc/internal/observability/metrics"
)

const service = "docqc-worker"

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
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: m.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("metrics_server_error", "error", err)
		}
	}()

	intake := func(handlerCtx context.Context, doc domain.ExtractedDocument) error {
		m.StartIntake()
		m.ObserveExtractionLag(service, time.Since(doc.ExtractedAt))
		start := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, 2*time.Minute)
		defer cancel()
		_, err := app.IntakeUC.IntakeExtracted(processCtx, doc)

		m.FinishIntake(service, time.Since(start), err)
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		app.Logger.Info("worker_subscribed", "subject", cfg.NATSExtractedSubject)
		return app.Queue.SubscribeDocumentExtracted(groupCtx, intake)
	})
	group.Go(func() error {
		app.Logger.Info("worker_subscribed", "subject", cfg.NATSScannedSubject)
		return app.Queue.SubscribeDocumentScanned(groupCtx, func(handlerCtx context.Context, raw domain.RawDocument) error {
			mapCtx, cancel := context.WithTimeout(handlerCtx, 2*time.Minute)
			defer cancel()

			doc, err := app.MappingUC.MapScanned(mapCtx, raw)
			if err != nil {
				return err
			}
			return intake(handlerCtx, *doc)
		})
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		log.Fatalf("worker subscribe error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
