package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/document-intake/internal/bootstrap"
	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/observability/logging"
	"github.com/kirillkom/document-intake/internal/observability/metrics"
)

const (
	serviceName   = "intake-worker"
	uploadTimeout = 5 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	pipelineMetrics := metrics.NewPipelineMetrics(serviceName, workerMetrics.Registerer())

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Observer: pipelineMetrics,
		QueueLag: workerMetrics.ObserveQueueLag,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeUploadQueued(ctx, func(handlerCtx context.Context, uploadID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, uploadTimeout)
		defer cancel()

		workerMetrics.StartUpload()
		started := time.Now()
		err := app.ProcessUC.ProcessByID(processCtx, uploadID)
		duration := time.Since(started)
		workerMetrics.FinishUpload(duration, err)
		if err != nil {
			return err
		}
		logger.Info("upload_processed", "upload_id", uploadID, "duration_ms", duration.Milliseconds())
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}
