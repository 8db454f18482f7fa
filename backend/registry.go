package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/rhi"
)

var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNilDevice is returned when a factory returns neither a device nor an
	// error.
	ErrNilDevice = errors.New("backend: factory returned a nil device")
)

// Factory opens a new device.
type Factory func() (rhi.Device, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for Default (first registered wins).
	backendPriority = []string{"noop", "capture"}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it is replaced.
// Register panics if factory is nil.
func Register(name string, factory Factory) {
	if factory == nil {
		panic("backend: Register factory is nil for " + name)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Backends returns the sorted names of registered backends.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Count returns the number of registered backends.
func Count() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(factories)
}

// Open opens a device of the named backend.
func Open(name string) (rhi.Device, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrBackendNotAvailable, name, Backends())
	}
	return open(name, factory)
}

// MustOpen is like Open but panics on error.
func MustOpen(name string) rhi.Device {
	d, err := Open(name)
	if err != nil {
		panic(err)
	}
	return d
}

// Default opens the best available backend. Backends in the priority list
// are tried first, then the rest in name order.
func Default() (rhi.Device, error) {
	names := Backends()
	order := make([]string, 0, len(names))
	for _, name := range backendPriority {
		if slices.Contains(names, name) {
			order = append(order, name)
		}
	}
	for _, name := range names {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}

	var errs []error
	for _, name := range order {
		d, err := Open(name)
		if err == nil {
			return d, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrBackendNotAvailable
	}
	return nil, errors.Join(errs...)
}

func open(name string, factory Factory) (rhi.Device, error) {
	d, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend: open %q: %w", name, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: %q", ErrNilDevice, name)
	}
	rhi.Logger().Debug("backend: opened", "backend", name, "device", d.Name())
	return d, nil
}
