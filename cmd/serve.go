package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Boot the runtime and serve diagnostics",
	Long: `Boot every service, then serve the diagnostics HTTP surface until
SIGINT or SIGTERM. With diagnostics disabled the runtime still boots and
waits for a signal.

Example:
  overlay serve                        # DIAGNOSTICS_ADDR or 127.0.0.1:8787
  overlay serve --addr 127.0.0.1:9000
  overlay serve -e .env -e .env.local`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (overrides DIAGNOSTICS_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer application.Shutdown()
	logger := application.Logger()

	if err := application.Boot(ctx); err != nil {
		return err
	}

	cfg := application.Config()
	if !cfg.Diagnostics.Enabled {
		logger.Info("diagnostics disabled, waiting for signal")
		<-ctx.Done()
		return nil
	}

	router, err := application.Router()
	if err != nil {
		return fmt.Errorf("resolving diagnostics router: %w", err)
	}
	addr := cfg.Diagnostics.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("diagnostics listening", zap.String("addr", addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("diagnostics server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down diagnostics server: %w", err)
	}
	return nil
}
