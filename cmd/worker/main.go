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

	"github.com/kirillkom/accruals-router/internal/bootstrap"
	"github.com/kirillkom/accruals-router/internal/config"
	"github.com/kirillkom/accruals-router/internal/core/domain"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker", nil)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	app.Logger.Info("worker_subscribed", "subject", cfg.NATSStatusSubject)
	err = app.Queue.SubscribeStatusChanges(ctx, func(handlerCtx context.Context, change domain.StatusChange) error {
		applyCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()
		result, err := app.Lifecycle.Apply(applyCtx, change)
		if err != nil {
			return err
		}
		app.Logger.Info("status_change_applied",
			"company", change.Company,
			"transition", result.Transition,
			"row", change.Row,
		)
		return nil
	})
	if err != nil {
		app.Logger.Error("worker_subscribe_failed", "error", err)
	}
}
