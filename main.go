package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/careassist/internal/adapter/openai"
	"github.com/xiaot623/careassist/internal/config"
	"github.com/xiaot623/careassist/internal/hub"
	"github.com/xiaot623/careassist/internal/policy"
	store "github.com/xiaot623/careassist/internal/repository"
	"github.com/xiaot623/careassist/internal/service"
	handler "github.com/xiaot623/careassist/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "careassist: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting careassist",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("database", cfg.DatabaseURL),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("mock", cfg.MockMode()),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Duration("run_timeout", cfg.RunTimeout))

	// Missing credentials only disable the conversation endpoints.
	if err := cfg.Credentials().Validate(); err != nil {
		logger.Warn("assistant credentials are not usable", zap.Error(err))
	}

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize policy engine
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	eventHub := hub.NewHub(logger.Named("hub"))
	client := openai.NewCompletionService(cfg, logger)
	svc := service.New(db, client, cfg, policyEngine, eventHub, logger.Named("service"))
	server := handler.NewServer(svc, eventHub, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		eventHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		logger.Info("http server listening", zap.String("addr", addr))
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down careassist")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown http server gracefully", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("careassist stopped")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
