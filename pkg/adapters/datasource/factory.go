package datasource

import (
	"context"
	"fmt"
)

// New creates a query executor for the named driver.
// The driver must have been registered by importing its adapter package.
func New(ctx context.Context, driver string, cfg *Config) (QueryExecutor, error) {
	factory := GetQueryExecutorFactory(driver)
	if factory == nil {
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}
	return factory(ctx, cfg)
}
