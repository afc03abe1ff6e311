package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/poolkeeper/pkg/config"
	"github.com/ajitpratap0/poolkeeper/pkg/driver"
	"github.com/ajitpratap0/poolkeeper/pkg/logger"

	// Import all available drivers to register them
	_ "github.com/ajitpratap0/poolkeeper/pkg/driver/mongodb"
	_ "github.com/ajitpratap0/poolkeeper/pkg/driver/mysql"
	_ "github.com/ajitpratap0/poolkeeper/pkg/driver/postgres"
	_ "github.com/ajitpratap0/poolkeeper/pkg/driver/redis"
	_ "github.com/ajitpratap0/poolkeeper/pkg/driver/snowflake"
)

var version = "0.1.0"

// globalFlags are shared by every command.
type globalFlags struct {
	configFile string
	logLevel   string
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "poolkeeper",
		Short: "poolkeeper - multi-backend connection pool manager",
		Long: `poolkeeper keeps bounded, health-checked connection pools to PostgreSQL,
MySQL, Snowflake, MongoDB and Redis endpoints, and exposes their state as
Prometheus metrics and JSON health reports.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to YAML configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "poolkeeper v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "drivers",
		Short: "List registered backend drivers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Available drivers:")
			for _, kind := range driver.Default().Kinds() {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", kind)
			}
		},
	})

	root.AddCommand(newServeCommand(flags))
	root.AddCommand(newCheckCommand(flags))
	root.AddCommand(newQueryCommand(flags))

	return root
}

// loadConfig reads the configuration file, or returns defaults when none is
// given, and installs the configured logger.
func loadConfig(flags *globalFlags) (*config.File, error) {
	f := config.NewFile()
	if flags.configFile != "" {
		var err error
		if f, err = config.Load(flags.configFile); err != nil {
			return nil, err
		}
	}

	if flags.logLevel != "" {
		f.Log.Level = flags.logLevel
	}
	if err := logger.Init(f.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return f, nil
}
