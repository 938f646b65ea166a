package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mgarridoc/orienta/backend/internal/config"
	"github.com/mgarridoc/orienta/backend/internal/handler"
	"github.com/mgarridoc/orienta/backend/internal/model/graph"
	"github.com/mgarridoc/orienta/backend/internal/service/ai"
	"github.com/mgarridoc/orienta/backend/internal/service/analysis"
	"github.com/mgarridoc/orienta/backend/internal/service/insight"
	"github.com/mgarridoc/orienta/backend/internal/service/registry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	graphStore := graph.NewMemoryStore(graph.Seed())

	reg := registry.New(graphStore, cfg.Session, logger)
	go reg.Run(ctx)

	var orchestrator *analysis.Orchestrator
	var insights *insight.Controller
	if cfg.AI.Enabled() {
		gateway, gwErr := ai.NewModelGateway(ctx, cfg.AI, logger)
		if gwErr != nil {
			logger.Warn("failed to initialize model gateway, analysis endpoints disabled", zap.Error(gwErr))
		} else {
			composer := ai.NewComposer(cfg.AI.MaxPromptChars)
			orchestrator = analysis.NewOrchestrator(reg, graphStore, composer, gateway, logger)
			insights = insight.NewController(graphStore, composer, gateway, cfg.Stream, logger)
			logger.Info("model gateway initialized", zap.String("model", cfg.AI.Model))
		}
	} else {
		logger.Info("ark credentials not configured, analysis endpoints disabled")
	}

	router := handler.NewRouter(graphStore, orchestrator, insights)

	startServer(ctx, cfg.Server, router, reg, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, reg *registry.Registry, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("orienta analysis backend listening", zap.String("addr", serverCfg.Addr))
	if err := runServer(ctx, srv, reg); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server, reg *registry.Registry) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		// Drain: reject new session work, let in-flight turns finish.
		reg.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
