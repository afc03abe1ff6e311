package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. POOLKEEPER_DEFAULTS_MAX_CONNECTIONS.
const EnvPrefix = "POOLKEEPER"

// Load reads a YAML configuration file. ${VAR_NAME} references are
// substituted before parsing and POOLKEEPER_* environment variables override
// individual keys afterwards.
func Load(filePath string) (*File, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes the same way Load does.
func Parse(data []byte) (*File, error) {
	v := newViper()

	content := substituteEnvVars(string(data))
	if err := v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := NewFile()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves a configuration to a YAML file
func Save(filePath string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// newViper returns a viper instance that knows every scalar key, so that
// AutomaticEnv can override keys missing from the file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := NewFile()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	v.SetDefault("defaults.max_connections", d.Defaults.MaxConnections)
	v.SetDefault("defaults.min_connections", d.Defaults.MinConnections)
	v.SetDefault("defaults.acquire_timeout", d.Defaults.AcquireTimeout)
	v.SetDefault("defaults.idle_timeout", d.Defaults.IdleTimeout)
	v.SetDefault("defaults.health_check_interval", d.Defaults.HealthCheckInterval)
	v.SetDefault("defaults.max_query_time", d.Defaults.MaxQueryTime)
	v.SetDefault("defaults.retry_attempts", d.Defaults.RetryAttempts)
	v.SetDefault("defaults.retry_delay", d.Defaults.RetryDelay)
	return v
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
