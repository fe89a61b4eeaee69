package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/contextkit/orchestrator/internal/approval"
	"github.com/contextkit/orchestrator/internal/assistant"
	"github.com/contextkit/orchestrator/internal/config"
	"github.com/contextkit/orchestrator/internal/diff"
	"github.com/contextkit/orchestrator/internal/domain"
	"github.com/contextkit/orchestrator/internal/observability"
	"github.com/contextkit/orchestrator/internal/orchestrator"
	"github.com/contextkit/orchestrator/internal/pipeline"
	"github.com/contextkit/orchestrator/internal/store"
	"github.com/contextkit/orchestrator/internal/telemetry"
	"github.com/contextkit/orchestrator/internal/tools"
	v1 "github.com/contextkit/orchestrator/internal/transport/http/v1"
	"github.com/contextkit/orchestrator/policy"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogJSON)

	logger.Info("starting orchestrator",
		"http_port", cfg.HTTPPort,
		"database", cfg.DatabaseDSN,
		"context_repo", cfg.ContextRepoPath)

	db, err := store.NewSQLiteStore(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	registry, err := tools.NewRegistry(tools.Builtin())
	if err != nil {
		log.Fatalf("Failed to build tool registry: %v", err)
	}

	writer := telemetry.NewWriter(db, logger)
	approvals := approval.NewStore(db, logger, cfg.ApprovalTTL)
	runner := pipeline.NewExecRunner(cfg.PipelineCommand, cfg.PipelineTimeout)
	pipelines := pipeline.NewOrchestrator(runner, logger)

	dispatcher := orchestrator.New(registry, policyEngine, writer, approvals, runner, diff.UnifiedPreviewer{}, logger)
	svc := assistant.NewService(db, registry, writer, approvals, nil, logger)

	// Expired approvals fail their telemetry records.
	go approvals.RunExpirySweeper(ctx, cfg.SweepInterval, func(sweepCtx context.Context, expired []domain.PendingAction) {
		dispatcher.ExpireActions(sweepCtx, expired)
	})

	h := v1.NewHandler(svc, dispatcher, approvals, pipelines, cfg.ContextRepoPath)

	server := echo.New()
	server.HideBanner = true
	server.Use(middleware.Logger())
	server.Use(middleware.Recover())
	server.Use(middleware.CORS())
	h.RegisterRoutes(server)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	logger.Info("orchestrator started", "port", cfg.HTTPPort)

	<-ctx.Done()
	logger.Info("shutting down orchestrator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown server gracefully", "error", err)
	}

	logger.Info("orchestrator stopped")
}
