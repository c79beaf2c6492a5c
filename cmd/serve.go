package cmd

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

	"github.com/khanhnv2901/webrecon/internal/api"
	"github.com/khanhnv2901/webrecon/internal/application"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run webrecon as a REST API service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		srvCfg := appCtx.Config.Server
		logger := appCtx.Logger.Desugar()

		cfg, err := appCtx.containerConfig(true)
		if err != nil {
			return err
		}
		cfg.RuntimeMetrics = true
		c, err := application.NewContainer(cfg)
		if err != nil {
			return err
		}

		if n, err := c.Preload(cmd.Context()); err != nil {
			appCtx.Logger.Warnw("failed to preload archived scans", "error", err)
		} else if n > 0 {
			appCtx.Logger.Infow("archived scans restored", "count", n)
		}

		server := api.NewServer(api.Config{
			Scans:       c.Orchestrator,
			Feed:        c.Tasks,
			Health:      c,
			Metrics:     c.Metrics.Handler(),
			AuthToken:   srvCfg.AuthToken,
			ListLimit:   srvCfg.ListLimit,
			Logger:      logger.Named("api"),
			CORSOrigins: srvCfg.CORSOrigins,
			RateLimit:   srvCfg.RateLimit,
			RateBurst:   srvCfg.RateBurst,
		})
		defer server.Close()

		httpServer := &http.Server{
			Addr:              srvCfg.Addr,
			Handler:           server,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// the scan stream is long-lived
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		}

		// Channel to listen for errors from the server
		serverErrors := make(chan error, 1)

		go func() {
			archive := "disabled"
			if c.Archive != nil {
				archive = c.Archive.Path()
			}
			fmt.Printf("%s API server listening on %s (archive: %s)\n", colorInfo("→"), srvCfg.Addr, archive)
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		var runErr error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				runErr = fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			ctx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				// Force close if graceful shutdown fails
				if closeErr := httpServer.Close(); closeErr != nil {
					runErr = fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				} else {
					runErr = fmt.Errorf("failed to gracefully shutdown server: %w", err)
				}
			}
		}

		// in-flight scans are cancelled and finalized before the archive closes
		ctx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
		defer cancel()
		if err := c.Close(ctx); err != nil {
			runErr = errors.Join(runErr, err)
		}
		if runErr == nil {
			fmt.Printf("%s Server shutdown complete\n", colorInfo("✓"))
		}
		return runErr
	},
}

func init() {
	s := &cliConfig.Server
	serveCmd.Flags().StringVar(&s.Addr, "addr", s.Addr, "Address for the API server")
	serveCmd.Flags().StringVar(&s.AuthToken, "auth-token", s.AuthToken, "Optional shared secret for API requests")
	serveCmd.Flags().DurationVar(&s.ShutdownTimeout, "shutdown-timeout", s.ShutdownTimeout, "Graceful shutdown timeout")
	serveCmd.Flags().StringSliceVar(&s.CORSOrigins, "cors-origins", s.CORSOrigins, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().IntVar(&s.RateLimit, "rate-limit", s.RateLimit, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().IntVar(&s.RateBurst, "rate-burst", s.RateBurst, "Rate limit burst size")
	addScannerFlags(serveCmd.Flags())
}
