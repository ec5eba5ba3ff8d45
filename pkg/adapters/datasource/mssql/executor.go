package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/ksandersbbb5/crm-query-assistant/pkg/adapters/datasource"
)

// Executor provides SQL Server query execution.
type Executor struct {
	config *Config
	db     *sql.DB
}

// NewExecutor connects to SQL Server and returns a query executor.
// The connection is verified with a ping before returning.
func NewExecutor(ctx context.Context, cfg *Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := openConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &Executor{config: cfg, db: db}, nil
}

// openConnection creates a connection using SQL Server authentication.
func openConnection(cfg *Config) (*sql.DB, error) {
	query := url.Values{}
	query.Add("database", cfg.Database)

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}

	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	connStr := fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		query.Encode(),
	)

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("open SQL auth connection: %w", err)
	}

	return db, nil
}

// Query runs a SELECT statement and returns bounded results.
// See datasource.QueryExecutor for limit behavior.
func (e *Executor) Query(ctx context.Context, sqlQuery string, limit int) (*datasource.QueryExecutionResult, error) {
	return e.run(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a parameterized SELECT with bounded results.
// Positional $1, $2, ... placeholders are converted to SQL Server's
// @p1, @p2, ... named parameters.
func (e *Executor) QueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	return e.run(ctx, convertPositionalParams(sqlQuery), params, limit)
}

func (e *Executor) run(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.QueryExecutionResult, error) {
	// Always wrap with a bounded limit using SQL Server's TOP clause.
	effectiveLimit := limit
	if effectiveLimit <= 0 || effectiveLimit > datasource.MaxQueryLimit {
		effectiveLimit = datasource.MaxQueryLimit
	}
	queryToRun := fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", effectiveLimit, sqlQuery)

	namedParams := make([]any, len(params))
	for i, param := range params {
		namedParams[i] = sql.Named(fmt.Sprintf("p%d", i+1), param)
	}

	rows, err := e.db.QueryContext(ctx, queryToRun, namedParams...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]datasource.ColumnInfo, len(columnNames))
	for i, colName := range columnNames {
		columns[i] = datasource.ColumnInfo{
			Name: colName,
			Type: mapSQLServerType(columnTypes[i].DatabaseTypeName()),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any)
		for i, col := range columnNames {
			val := values[i]

			// CHAR, VARCHAR, NCHAR, NVARCHAR and TEXT scan as []byte.
			// Convert to string so the JSON encoder does not base64 them.
			if val != nil {
				if b, ok := val.([]byte); ok && isStringType(columnTypes[i].DatabaseTypeName()) {
					val = string(b)
				}
			}

			rowMap[col] = val
		}
		resultRows = append(resultRows, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// TestConnection verifies the database is reachable with valid credentials.
func (e *Executor) TestConnection(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	// Run a simple query to ensure we have database access
	var result int
	if err := e.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	return nil
}

// Close releases the database connection.
func (e *Executor) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// convertPositionalParams converts positional parameters ($1, $2, ...) to
// SQL Server named parameters (@p1, @p2, ...).
var positionalParamPattern = regexp.MustCompile(`\$(\d+)`)

func convertPositionalParams(query string) string {
	return positionalParamPattern.ReplaceAllStringFunc(query, func(match string) string {
		num, err := strconv.Atoi(match[1:]) // skip the $
		if err != nil {
			return match
		}
		return fmt.Sprintf("@p%d", num)
	})
}

// Ensure Executor implements datasource.QueryExecutor at compile time.
var _ datasource.QueryExecutor = (*Executor)(nil)
