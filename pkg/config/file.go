package config

import (
	"github.com/ajitpratap0/poolkeeper/pkg/errors"
	"github.com/ajitpratap0/poolkeeper/pkg/logger"
)

// File is the on-disk configuration of a poolkeeper deployment.
type File struct {
	Log       logger.Config    `yaml:"log" json:"log" mapstructure:"log"`
	Metrics   MetricsConfig    `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Tracing   TracingConfig    `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
	Defaults  PoolConfig       `yaml:"defaults" json:"defaults" mapstructure:"defaults"`
	Endpoints []EndpointConfig `yaml:"endpoints" json:"endpoints" mapstructure:"endpoints"`
}

// MetricsConfig controls the prometheus listener of the serve command
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" json:"address" mapstructure:"address"`
}

// TracingConfig controls span export
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate" mapstructure:"sampling_rate"`
}

// EndpointConfig names one backend endpoint and its pool overrides.
type EndpointConfig struct {
	Name string         `yaml:"name" json:"name" mapstructure:"name"`
	URL  string         `yaml:"url" json:"url" mapstructure:"url"`
	Pool *PoolOverrides `yaml:"pool,omitempty" json:"pool,omitempty" mapstructure:"pool"`
}

// NewFile returns a File with every section defaulted and no endpoints.
func NewFile() *File {
	return &File{
		Log:      logger.DefaultConfig(),
		Metrics:  MetricsConfig{Enabled: true, Address: ":9090"},
		Tracing:  TracingConfig{SamplingRate: 1.0},
		Defaults: DefaultPoolConfig(),
	}
}

// PoolConfigFor returns the effective pool configuration of an endpoint.
func (f *File) PoolConfigFor(ep EndpointConfig) PoolConfig {
	return ep.Pool.Apply(f.Defaults)
}

// Validate checks the defaults, every endpoint and its effective pool config.
func (f *File) Validate() error {
	if err := f.Defaults.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid defaults")
	}

	seen := make(map[string]struct{}, len(f.Endpoints))
	for i, ep := range f.Endpoints {
		if ep.URL == "" {
			return errors.Newf(errors.ErrorTypeConfig, "endpoint %d has no url", i)
		}
		if _, dup := seen[ep.URL]; dup {
			return errors.Newf(errors.ErrorTypeConfig, "endpoint %q listed twice", ep.Name).
				WithDetail("index", i)
		}
		seen[ep.URL] = struct{}{}

		if err := f.PoolConfigFor(ep).Validate(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid pool config for endpoint "+ep.Name)
		}
	}
	return nil
}
