package driver

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/poolkeeper/pkg/errors"
	"github.com/ajitpratap0/poolkeeper/pkg/logger"
)

// Registry binds backend kinds to drivers.
type Registry struct {
	drivers map[Kind]Driver
	mu      sync.RWMutex
	logger  *zap.Logger
}

// Global registry instance, populated by driver packages in init().
var defaultRegistry = NewRegistry()

// NewRegistry creates an empty driver registry
func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[Kind]Driver),
		logger:  logger.Get().With(zap.String("component", "driver_registry")),
	}
}

// Default returns the process-wide registry that driver packages register
// themselves into.
func Default() *Registry {
	return defaultRegistry
}

// Register adds d under its Kind. Registering a kind twice is an error.
func (r *Registry) Register(d Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := d.Kind()
	if _, exists := r.drivers[kind]; exists {
		return errors.Newf(errors.ErrorTypeConflict, "driver %s already registered", kind)
	}

	r.drivers[kind] = d
	r.logger.Debug("driver registered", zap.String("kind", string(kind)))
	return nil
}

// MustRegister is Register for use in init functions.
func (r *Registry) MustRegister(d Driver) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns the driver registered for kind.
func (r *Registry) Lookup(kind Kind) (Driver, error) {
	r.mu.RLock()
	d, exists := r.drivers[kind]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedBackend, "no driver registered for %s", kind)
	}
	return d, nil
}

// ForEndpoint detects the endpoint's kind and returns its driver.
func (r *Registry) ForEndpoint(endpoint string) (Driver, error) {
	kind, err := DetectKind(endpoint)
	if err != nil {
		return nil, err
	}
	return r.Lookup(kind)
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.drivers))
	for kind := range r.drivers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Has checks if a driver is registered for kind
func (r *Registry) Has(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.drivers[kind]
	return exists
}

// Register registers a driver in the default registry
func Register(d Driver) error {
	return defaultRegistry.Register(d)
}
