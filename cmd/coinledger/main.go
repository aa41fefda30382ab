// Package main запускает HTTP-сервер журнала монет.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/coin-ledger/internal/config"
	"github.com/mmeshcher/coin-ledger/internal/handler"
	"github.com/mmeshcher/coin-ledger/internal/logger"
	"github.com/mmeshcher/coin-ledger/internal/middleware"
	"github.com/mmeshcher/coin-ledger/internal/notifier"
	"github.com/mmeshcher/coin-ledger/internal/repository"
	"github.com/mmeshcher/coin-ledger/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}

	repo, err := newRepository(cfg, log)
	if err != nil {
		log.Error("storage initialization error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log, repo)
	stop()

	if err != nil {
		log.Error("application terminated with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

// run обслуживает HTTP до отмены ctx или первой ошибки и всегда закрывает хранилище.
func run(ctx context.Context, cfg *config.Config, log *zap.Logger, repo service.Repository) error {
	sugar := log.Sugar()

	g, ctx := errgroup.WithContext(ctx)

	var publisher notifier.Publisher
	if cfg.NotifyWebhookURL != "" {
		webhook := notifier.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyQueueSize, log)
		publisher = webhook

		// Доставка событий на вебхук
		g.Go(func() error {
			return webhook.Run(ctx)
		})
	} else {
		publisher = notifier.NewLogNotifier(log)
	}

	svc := service.NewService(repo, publisher,
		service.WithLogger(log),
		service.WithMinWithdrawal(cfg.MinWithdrawal),
	)
	defer func() {
		if err := svc.Close(); err != nil {
			sugar.Errorw("storage close error", "error", err)
		}
	}()

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, log, authMiddleware, cfg.CoinValue)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting coin ledger server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

func newRepository(cfg *config.Config, log *zap.Logger) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		log.Warn("DATABASE_URI is empty, using in-memory ledger")
		return repository.NewMemoryRepository(), nil
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	return repo, nil
}
