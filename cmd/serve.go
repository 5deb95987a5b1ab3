package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/promptsched/internal/gateway"
	"github.com/nextlevelbuilder/promptsched/internal/notify"
	"github.com/nextlevelbuilder/promptsched/internal/scheduler"
	"github.com/nextlevelbuilder/promptsched/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler loop and notification gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("starting promptsched", "config", a.cfg.Redacted())

	shutdownTracing, err := tracing.Setup(ctx, a.cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	hub := gateway.NewHub(a.cfg.JWTSecret, slog.Default())
	defer hub.Close()

	links := notify.NewLinks(a.cfg.WebUIURL, a.cfg.Port)
	notifier := notify.NewNotifier(hub, hub, links, notify.NewNtfyClient(slog.Default()), slog.Default())

	loop := scheduler.NewLoop(a.jobs, a.newRunner(notifier), a.cfg.CheckInterval, slog.Default())
	if err := loop.Start(ctx); err != nil {
		return err
	}
	defer loop.Stop()

	mux := http.NewServeMux()
	mux.Handle("/ws/notifications", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("gateway server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("gateway shutdown failed", "error", err)
	}
	return nil
}
