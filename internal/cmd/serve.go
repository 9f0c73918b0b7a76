package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pacelens/pacelens/internal/config"
	"github.com/pacelens/pacelens/internal/core/engine"
	errwrap "github.com/pacelens/pacelens/internal/errors"
	"github.com/pacelens/pacelens/internal/observability"
	"github.com/pacelens/pacelens/internal/server"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status server",
	Long: `Start the status server with graceful shutdown support.

The server exposes health probes, version info, and the limiter status and
reporting API. Limiter state is hydrated from the store on startup and
flushed back periodically and on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		if cfg == nil {
			cfg = config.Get()
		}

		if cmd.Flags().Changed("host") {
			cfg.Server.Host = serverHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = serverPort
		}

		observability.InitServerLogger("pacelens", cfg.Logging.Level)
		logger := observability.ServerLogger

		logger.Info("Initializing status server",
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))

		db, err := openStore(cmd.Context())
		if err != nil {
			return errwrap.WrapDatabaseError(cmd.Context(), err, "failed to open limiter state store")
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		manager := engine.NewManager(engineLimits(cfg))
		if err := manager.Hydrate(cmd.Context(), db); err != nil {
			return errwrap.WrapDatabaseError(cmd.Context(), err, "failed to hydrate limiter state")
		}

		srv := server.New(cfg.Server, manager, versionInfo.Version)
		srv.RegisterHealthChecker("store", db)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Periodic state flush so a crash loses at most one interval.
		flushInterval := cfg.FlushInterval
		if flushInterval <= 0 {
			flushInterval = 30 * time.Second
		}
		go func() {
			ticker := time.NewTicker(flushInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := manager.Flush(ctx, db); err != nil {
						logger.Warn("Periodic state flush failed", zap.Error(err))
					}
				}
			}
		}()

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		select {
		case err := <-errChan:
			return errwrap.WrapInternal(ctx, err, "server error")
		case <-ctx.Done():
		}

		logger.Info("Shutdown signal received")

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(shutdownCtx, err, "server shutdown failed")
		}

		if err := manager.Flush(shutdownCtx, db); err != nil {
			logger.Warn("Final state flush failed", zap.Error(err))
		}

		logger.Info("Status server stopped gracefully")
		if err := logger.Sync(); err != nil {
			// Sync errors are often benign (stdout/stderr already closed)
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	},
}

// engineLimits converts configured limit overrides into engine configs.
func engineLimits(cfg *config.Config) map[string]engine.Config {
	limits := make(map[string]engine.Config, len(cfg.Limits))
	for endpoint, lc := range cfg.Limits {
		limits[endpoint] = engine.Config{
			MaxRequests: lc.MaxRequests,
			MinRequests: lc.MinRequests,
			Window:      lc.Window(),
		}
	}
	return limits
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "127.0.0.1", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8490, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
