package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/buildbuildio/fusion"
	"github.com/buildbuildio/fusion/config"
	"github.com/buildbuildio/fusion/diagnostics"
	"github.com/buildbuildio/fusion/executor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the composed schema over HTTP",
		Long: `Serve the composed schema over HTTP.

Queries and mutations are accepted as POST requests on /graphql, subscriptions
over websocket (graphql-ws) on the same path.

Example:
  fusion serve --config ./fusion.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tp, shutdownTracing, err := diagnostics.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.Service, cfg.Telemetry.Environment)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	execOptions := []executor.Option{
		executor.WithSink(diagnostics.NewTelemetry(tp, logger)),
		executor.WithMaxConcurrency(cfg.Execution.MaxConcurrency),
	}
	if cfg.Execution.Trace {
		execOptions = append(execOptions, executor.WithTrace(cfg.Telemetry.Service, cfg.Telemetry.Environment))
	}

	gw, err := newGateway(cfg, logger, fusion.WithExecutorOptions(execOptions...))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", gw.Handler)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gateway listening", zap.String("addr", cfg.Listen), zap.Strings("sources", sourceNames(cfg)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("gateway shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func sourceNames(cfg *config.Config) []string {
	names := make([]string, len(cfg.Sources))
	for i, s := range cfg.Sources {
		names[i] = s.Name
	}
	return names
}
