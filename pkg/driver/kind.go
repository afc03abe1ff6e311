package driver

import (
	"net/url"
	"strings"

	"github.com/ajitpratap0/poolkeeper/pkg/errors"
)

// Kind names a family of backends served by one driver.
type Kind string

const (
	KindPostgres  Kind = "postgres"
	KindMySQL     Kind = "mysql"
	KindSnowflake Kind = "snowflake"
	KindMongoDB   Kind = "mongodb"
	KindRedis     Kind = "redis"
	// KindMemory is served by the in-process test driver.
	KindMemory Kind = "memory"
)

var schemeKinds = map[string]Kind{
	"postgres":    KindPostgres,
	"postgresql":  KindPostgres,
	"mysql":       KindMySQL,
	"snowflake":   KindSnowflake,
	"mongodb":     KindMongoDB,
	"mongodb+srv": KindMongoDB,
	"redis":       KindRedis,
	"rediss":      KindRedis,
	"memory":      KindMemory,
}

// DetectKind classifies an endpoint by its URL scheme. It has no side
// effects and performs no I/O.
func DetectKind(endpoint string) (Kind, error) {
	idx := strings.Index(endpoint, "://")
	if idx <= 0 {
		return "", errors.New(errors.ErrorTypeUnsupportedBackend, "endpoint has no scheme").
			WithDetail("endpoint", Redact(endpoint))
	}

	scheme := strings.ToLower(endpoint[:idx])
	kind, ok := schemeKinds[scheme]
	if !ok {
		return "", errors.Newf(errors.ErrorTypeUnsupportedBackend, "no driver for scheme %q", scheme).
			WithDetail("endpoint", Redact(endpoint))
	}
	return kind, nil
}

// Redact hides the password of an endpoint URL so it can be logged or used
// as a metric label. Endpoints that do not parse are returned as scheme only.
func Redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		if idx := strings.Index(endpoint, "://"); idx > 0 {
			return endpoint[:idx] + "://<unparseable>"
		}
		return "<unparseable>"
	}
	return u.Redacted()
}
