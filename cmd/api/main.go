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

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	httpadapter "github.com/kirillkom/document-intake/internal/adapters/http"
	"github.com/kirillkom/document-intake/internal/bootstrap"
	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/observability/logging"
	"github.com/kirillkom/document-intake/internal/observability/metrics"
)

const serviceName = "intake-api"

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

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	pipelineMetrics := metrics.NewPipelineMetrics(serviceName, httpMetrics.Registerer())

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Observer: pipelineMetrics})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Pipeline:    app.Pipeline,
		Entities:    app.Entities,
		Ingestor:    app.IngestUC,
		Uploads:     app.Uploads,
		Recommender: app.RecommendUC,
		Exporter:    app.ExportUC,
		Resumes:     app.ResumeUC,
	}).WithMetrics(httpMetrics)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           h2c.NewHandler(router.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Synchronous uploads wait on OCR and two model calls.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
