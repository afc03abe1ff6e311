package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/poolkeeper/pkg/pool"
	"github.com/ajitpratap0/poolkeeper/pkg/registry"
)

func newCheckCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Connect to every configured endpoint and report pool health",
		Long: `Create the configured pools, run one health sweep on all of them and
print the resulting health report as JSON. Exits non-zero if any pool is
critical or has no healthy connection.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadConfig(flags)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			reg, err := registry.FromConfig(ctx, f)
			if err != nil {
				return err
			}
			defer reg.Shutdown(ctx)

			reg.PerformGlobalHealthCheck(ctx)
			report := buildHealthReport(reg)

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			return verdict(report)
		},
	}
}

// verdict turns a health report into the exit status of check.
func verdict(report healthReport) error {
	for endpoint, h := range report.Pools {
		if h.Status == pool.StatusCritical {
			return fmt.Errorf("pool %s is critical", endpoint)
		}
		if h.Stats.Healthy == 0 {
			return fmt.Errorf("pool %s has no healthy connection", endpoint)
		}
	}
	return nil
}
