package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-aggregator/internal/api"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Serves POST /agent/aggregator and POST /company/classification, plus /health and /metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAggregator(cfg, "serve")
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		return runServer(ctx, newServer(env, port))
	},
}

// newServer builds the HTTP server for env. The per-request deadline
// leaves headroom over the pipeline's own run timeout.
func newServer(env *aggregatorEnv, port int) *http.Server {
	var requestTimeout time.Duration
	if cfg.Pipeline.RunTimeoutSecs > 0 {
		requestTimeout = time.Duration(cfg.Pipeline.RunTimeoutSecs)*time.Second + 5*time.Second
	}

	handler := api.NewRouter(api.Deps{
		Pipeline:       env.Pipeline,
		Classifier:     env.Classifier,
		Health:         env.Checker,
		Metrics:        env.MetricsHandler(),
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: requestTimeout,
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// runServer serves until ctx is cancelled, then drains in-flight requests.
func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
