package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/document-intake/internal/adapters/mcp"
	"github.com/kirillkom/document-intake/internal/bootstrap"
	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/observability/logging"
)

const (
	serviceName = "intake-mcp"
	version     = "0.1.0"
)

// Stdout carries the MCP stream, so logs go to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(os.Stderr, serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{WithoutQueue: true})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(app.Pipeline, app.Entities).WithResumes(app.ResumeUC)
	if err := server.ServeStdio(tools.Server(serviceName, version)); err != nil {
		logger.Error("mcp_serve_failed", "error", err)
	}
}
