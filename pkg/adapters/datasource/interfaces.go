// Package datasource defines the read-only query contract shared by the
// relational adapters, plus a registry the adapters install themselves into.
package datasource

import "context"

// MaxQueryLimit is the hard cap on rows returned by Query methods.
// This protects against unbounded queries that could crash the server.
const MaxQueryLimit = 1000

// QueryExecutor executes read-only SQL against a relational datasource.
//
// Queries are ALWAYS wrapped with a dialect-specific limit:
//   - SQL Server: SELECT TOP (n) * FROM (query) AS _limited
//   - PostgreSQL: SELECT * FROM (query) AS _limited LIMIT n
//
// Limit behavior:
//   - limit <= 0: uses MaxQueryLimit
//   - limit > MaxQueryLimit: capped to MaxQueryLimit
//   - otherwise: uses the specified limit
//
// Each implementation owns its connection and must be closed when done.
type QueryExecutor interface {
	// Query runs a SELECT statement and returns bounded results.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// QueryWithParams runs a parameterized SELECT with bounded results.
	// The SQL should use $1, $2, etc. for parameter placeholders; adapters
	// whose dialect expects a different placeholder style convert internally.
	QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*QueryExecutionResult, error)

	// TestConnection verifies the database is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // Database type name (e.g., "TEXT", "INT4", "VARCHAR")
}

// QueryExecutionResult holds the results from executing a query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// Config carries connection settings common to all relational adapters.
// Adapters pick the fields their dialect uses and apply their own defaults
// for anything left zero-valued.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// SQL Server options.
	Encrypt                bool
	TrustServerCertificate bool

	// PostgreSQL options.
	SSLMode string // "disable", "require", "verify-ca", "verify-full"

	// ConnectionTimeout in seconds. 0 means adapter default.
	ConnectionTimeout int
}
