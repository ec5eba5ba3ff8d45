package datasource

import (
	"context"
	"sort"
	"sync"
)

// QueryExecutorFactory creates a query executor from connection settings.
type QueryExecutorFactory func(ctx context.Context, cfg *Config) (QueryExecutor, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]QueryExecutorFactory)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(driver string, factory QueryExecutorFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[driver] = factory
}

// RegisteredDrivers returns the names of all registered adapters, sorted.
func RegisteredDrivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	drivers := make([]string, 0, len(registry))
	for driver := range registry {
		drivers = append(drivers, driver)
	}
	sort.Strings(drivers)
	return drivers
}

// GetQueryExecutorFactory returns the factory for a driver name.
// Returns nil if the driver is not registered.
func GetQueryExecutorFactory(driver string) QueryExecutorFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[driver]
}

// IsRegistered checks if an adapter is available for the driver name.
func IsRegistered(driver string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[driver]
	return ok
}
