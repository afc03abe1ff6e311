package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/poolkeeper/pkg/logger"
	"github.com/ajitpratap0/poolkeeper/pkg/observability"
	"github.com/ajitpratap0/poolkeeper/pkg/pool"
	"github.com/ajitpratap0/poolkeeper/pkg/registry"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(flags *globalFlags) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the configured pools and serve metrics and health",
		Long: `Create a pool for every configured endpoint, keep them healthy in the
background and serve /metrics (Prometheus) and /healthz (JSON) until
interrupted.

Example:
  poolkeeper serve --config poolkeeper.yaml --address :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if address != "" {
				f.Metrics.Address = address
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logger.Get().With(zap.String("component", "serve"))

			if f.Tracing.Enabled {
				shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
					ServiceName:    "poolkeeper",
					ServiceVersion: version,
					SamplingRate:   f.Tracing.SamplingRate,
				})
				if err != nil {
					return err
				}
				defer func() { _ = shutdownTracing(context.Background()) }()
			}

			reg, err := registry.FromConfig(ctx, f)
			if err != nil {
				return err
			}
			defer reg.Shutdown(context.Background())

			srv := &http.Server{
				Addr:              f.Metrics.Address,
				Handler:           newMux(reg, f.Metrics.Enabled),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("serving", zap.String("address", srv.Addr), zap.Int("pools", reg.PoolCount()))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				log.Info("shutting down")
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Listen address (overrides metrics.address)")
	return cmd
}

func newMux(reg *registry.Registry, withMetrics bool) *http.ServeMux {
	mux := http.NewServeMux()
	if withMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/healthz", healthHandler(reg))
	return mux
}

// healthReport is the body of /healthz and the output of check.
type healthReport struct {
	Status pool.Status            `json:"status"`
	Pools  map[string]pool.Health `json:"pools"`
}

func buildHealthReport(reg *registry.Registry) healthReport {
	report := healthReport{Status: pool.StatusHealthy, Pools: reg.AllHealthStatus()}
	for _, h := range report.Pools {
		switch h.Status {
		case pool.StatusCritical:
			report.Status = pool.StatusCritical
		case pool.StatusWarning:
			if report.Status == pool.StatusHealthy {
				report.Status = pool.StatusWarning
			}
		}
	}
	return report
}

// healthHandler reports every pool. Critical pools turn the response into a
// 503 so that load balancers can act on it.
func healthHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := buildHealthReport(reg)

		w.Header().Set("Content-Type", "application/json")
		if report.Status == pool.StatusCritical {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(report); err != nil {
			logger.Warn("failed to encode health report", zap.Error(err))
		}
	}
}
