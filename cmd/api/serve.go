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

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/analytics-bridge/internal/infra/httpserver"
	"github.com/bryanwahyu/analytics-bridge/internal/middleware"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec)
		go limiter.Run(ctx, 5*time.Minute, 10*time.Minute)

		handler := httpserver.NewRouter(a.svc, a.aiSvc, httpserver.Options{
			Log:            log,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Limiter:        limiter,
			Checks:         a.checks(),
			MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		})

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		srv := &http.Server{
			Addr:        addr,
			Handler:     handler,
			ReadTimeout: 2 * time.Minute,
			// analyze calls wait up to the upstream budget
			WriteTimeout: cfg.AnalyzeTimeout() + cfg.DetailTimeout() + 15*time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", addr).Str("upstream", cfg.Upstream.BaseURL).Msg("server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		// graceful shutdown
		log.Info().Msg("shutting down server...")
		ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx2); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
}
