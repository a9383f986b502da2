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

	"github.com/khanhnv2901/seca-posture/internal/api"
	"github.com/khanhnv2901/seca-posture/internal/fleet"
	"github.com/khanhnv2901/seca-posture/internal/posture"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the posture scoring REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		addr, _ := cmd.Flags().GetString("addr")
		authToken, _ := cmd.Flags().GetString("auth-token")
		shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
		corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origins")
		rateLimit, _ := cmd.Flags().GetInt("rate-limit")
		rateBurst, _ := cmd.Flags().GetInt("rate-burst")
		maxHosts, _ := cmd.Flags().GetInt("max-hosts")

		// Initialize structured logger
		logger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() {
			if err := logger.Sync(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
			}
		}()

		jobManager := api.NewJobManager()
		defer jobManager.Close()

		audit := appCtx.Config.Audit
		server := api.NewServer(api.Config{
			Engine: appCtx.Engine,
			Runner: &fleet.Runner{
				Concurrency: audit.Concurrency,
				RateLimit:   audit.RateLimit,
				Timeout:     time.Duration(audit.TimeoutSecs) * time.Second,
				Engine:      appCtx.Engine,
			},
			Jobs:        jobManager,
			Health:      &engineHealth{engine: appCtx.Engine},
			AuthToken:   authToken,
			Logger:      logger,
			CORSOrigins: corsOrigins,
			RateLimit:   rateLimit,
			RateBurst:   rateBurst,
			MaxHosts:    maxHosts,
		})
		defer server.Close()

		httpServer := &http.Server{
			Addr:              addr,
			Handler:           server,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		// Channel to listen for errors from the server
		serverErrors := make(chan error, 1)

		out := cmd.OutOrStdout()
		go func() {
			fmt.Fprintf(out, "%s API server listening on %s\n", colorInfo("→"), addr)
			fmt.Fprintf(out, "%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Fprintf(out, "\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				// Force close if graceful shutdown fails
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}

			fmt.Fprintf(out, "%s Server shutdown complete\n", colorInfo("✓"))
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Address for the API server")
	serveCmd.Flags().String("auth-token", "", "Optional shared secret for API requests")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", 10, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().Int("rate-burst", 20, "Rate limit burst size")
	serveCmd.Flags().Int("max-hosts", 500, "Maximum hosts per audit request (0 = unlimited)")
}

// engineHealth reports the service healthy while its policy stays valid.
type engineHealth struct {
	engine *posture.Engine
}

func (h *engineHealth) Check(ctx context.Context) error {
	if h.engine == nil {
		return errors.New("scoring engine not configured")
	}
	return h.engine.Policy().Validate()
}

func (h *engineHealth) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.Check(ctx)
}
