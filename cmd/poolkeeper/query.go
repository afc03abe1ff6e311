package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/poolkeeper/pkg/config"
	"github.com/ajitpratap0/poolkeeper/pkg/driver"
	"github.com/ajitpratap0/poolkeeper/pkg/logger"
	"github.com/ajitpratap0/poolkeeper/pkg/registry"
)

func newQueryCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "query <endpoint> <query> [params...]",
		Short: "Run one query through a pool",
		Long: `Run a query through a pool and print the result as JSON. <endpoint> is
either the name of a configured endpoint or a connection URL.

Examples:
  poolkeeper query orders "SELECT id, status FROM orders WHERE id = $1" 42
  poolkeeper query redis://localhost:6379/0 GET session:abc
  poolkeeper query mongodb://localhost/app '{"count": "users"}'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadConfig(flags)
			if err != nil {
				return err
			}

			url, cfg, err := resolveEndpoint(f, args[0])
			if err != nil {
				return err
			}

			params := make([]interface{}, 0, len(args)-2)
			for _, p := range args[2:] {
				params = append(params, p)
			}

			ctx := context.WithValue(cmd.Context(), logger.EndpointKey, driver.Redact(url))
			log := logger.WithContext(ctx)
			reg := registry.New()
			defer reg.Shutdown(ctx)

			if _, err := reg.CreatePool(ctx, url, cfg); err != nil {
				return err
			}
			result, err := reg.ExecuteQuery(ctx, url, args[1], params...)
			if err != nil {
				log.Warn("query failed", zap.Error(err))
				return err
			}
			log.Debug("query completed", zap.Int("params", len(params)))

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

// resolveEndpoint maps a configured endpoint name or a URL to the URL and
// effective pool config to use. Ad-hoc URLs get a single-connection pool
// with the configured defaults otherwise.
func resolveEndpoint(f *config.File, arg string) (string, config.PoolConfig, error) {
	for _, ep := range f.Endpoints {
		if ep.Name == arg || ep.URL == arg {
			return ep.URL, f.PoolConfigFor(ep), nil
		}
	}
	if !strings.Contains(arg, "://") {
		return "", config.PoolConfig{}, fmt.Errorf("unknown endpoint %q", arg)
	}

	cfg := f.Defaults
	cfg.MinConnections = 1
	cfg.MaxConnections = 1
	return arg, cfg, nil
}
