package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/erosion-api/internal/analysis"
	"github.com/sells-group/erosion-api/internal/api"
	"github.com/sells-group/erosion-api/internal/catalog"
	"github.com/sells-group/erosion-api/internal/config"
	"github.com/sells-group/erosion-api/internal/merge"
	"github.com/sells-group/erosion-api/internal/observability"
	"github.com/sells-group/erosion-api/internal/resilience"
	"github.com/sells-group/erosion-api/internal/validate"
	"github.com/sells-group/erosion-api/pkg/rusle"
	"github.com/sells-group/erosion-api/pkg/sentinel"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the erosion analysis API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := buildServer(cfg, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		probeBackend(ctx, env.Backend, 2, time.Second)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           env.Handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// serverEnv is the wired HTTP handler and the collaborators behind it.
type serverEnv struct {
	Handler http.Handler
	Backend rusle.Client
	Metrics *observability.Collector
}

// buildServer wires clients, the orchestrator and the router from config.
func buildServer(c *config.Config, reg prometheus.Registerer) (*serverEnv, error) {
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Load()
	if err != nil {
		return nil, err
	}

	backend := rusle.NewClient(
		rusle.WithBaseURL(c.Backend.BaseURL),
		rusle.WithComputeTimeout(c.Backend.ComputeTimeout()),
		rusle.WithHotspotTimeout(c.Backend.HotspotTimeout()),
		rusle.WithHealthTimeout(c.Backend.HealthTimeout()),
	)

	tokenOpts := []sentinel.TokenOption{}
	if c.Sentinel.TokenURL != "" {
		tokenOpts = append(tokenOpts, sentinel.WithTokenURL(c.Sentinel.TokenURL))
	}
	tokens := sentinel.NewTokenSource(c.Sentinel.ClientID, c.Sentinel.ClientSecret, tokenOpts...)

	imageryOpts := []sentinel.Option{
		sentinel.WithMaxAttempts(c.Sentinel.MaxRetries),
		sentinel.WithImageSize(c.Sentinel.ImageSize),
		sentinel.WithMaxCloudCoverage(int(c.Sentinel.MaxCloudCoverage)),
	}
	if c.Sentinel.ProcessURL != "" {
		imageryOpts = append(imageryOpts, sentinel.WithProcessURL(c.Sentinel.ProcessURL))
	}
	if c.Sentinel.TimeoutSecs > 0 {
		imageryOpts = append(imageryOpts, sentinel.WithTimeout(time.Duration(c.Sentinel.TimeoutSecs)*time.Second))
	}
	imagery := sentinel.NewClient(tokens, imageryOpts...)

	bc := resilience.BreakerFromConfig("hotspots", c.HotspotBreaker)
	bc.OnStateChange = func(name string, _, to resilience.State) {
		metrics.SetBreakerState(name, int(to))
	}

	limits := validate.LimitsFromConfig(c.Validation)
	orch := analysis.New(
		validate.New(limits),
		backend,
		imagery,
		merge.New(cat),
		analysis.WithBufferDeg(c.Validation.BufferDeg),
		analysis.WithHotspotBreaker(resilience.NewBreaker(bc)),
		analysis.WithMetrics(metrics),
	)

	handler := api.NewRouter(api.Deps{
		Analyzer:       orch,
		Catalog:        cat,
		Limits:         limits,
		Metrics:        metrics,
		Server:         c.Server,
		ComputeTimeout: c.Backend.ComputeTimeout(),
		Version:        version,
	})

	return &serverEnv{Handler: handler, Backend: backend, Metrics: metrics}, nil
}

// probeBackend logs the readiness of the computation backend, retrying
// unreachable backends with backoff. It never fails startup.
func probeBackend(ctx context.Context, backend rusle.Client, retries int, backoff time.Duration) {
	var status *rusle.HealthStatus
	err := resilience.Backoff(ctx, retries, backoff, func(ctx context.Context) error {
		s, err := backend.Health(ctx)
		if err != nil {
			return err
		}
		status = s
		return nil
	})
	if err != nil {
		zap.L().Warn("backend health check failed", zap.Error(err))
		return
	}
	if !status.Ready() {
		zap.L().Warn("backend not ready",
			zap.String("rusle_service", status.RUSLEService),
			zap.String("ml_service", status.MLService),
		)
		return
	}
	zap.L().Info("backend ready")
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
