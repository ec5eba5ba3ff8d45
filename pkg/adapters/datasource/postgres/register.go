package postgres

import (
	"context"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/adapters/datasource"
)

func init() {
	datasource.Register("postgres", func(ctx context.Context, shared *datasource.Config) (datasource.QueryExecutor, error) {
		return NewExecutor(ctx, FromConfig(shared))
	})
}
