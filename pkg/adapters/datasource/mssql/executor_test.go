package mssql

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockExecutor(t *testing.T) (*Executor, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &Executor{db: db}, mock
}

func TestExecutor_Query_WrapsWithTopClause(t *testing.T) {
	exec, mock := newMockExecutor(t)

	rows := sqlmock.NewRows([]string{"AppID", "dba"}).
		AddRow(int64(101), "Acme Plumbing").
		AddRow(int64(102), "Bay State Roofing")
	mock.ExpectQuery("SELECT TOP (25) * FROM (SELECT AppID, dba FROM Applications) AS _limited").
		WillReturnRows(rows)

	result, err := exec.Query(context.Background(), "SELECT AppID, dba FROM Applications", 25)
	require.NoError(t, err)

	assert.Equal(t, 2, result.RowCount)
	assert.Len(t, result.Columns, 2)
	assert.Equal(t, "AppID", result.Columns[0].Name)
	assert.Equal(t, int64(101), result.Rows[0]["AppID"])
	assert.Equal(t, "Bay State Roofing", result.Rows[1]["dba"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_Query_LimitBounds(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantedTop string
	}{
		{"zero uses max", 0, "SELECT TOP (1000) * FROM (SELECT 1 AS n) AS _limited"},
		{"negative uses max", -5, "SELECT TOP (1000) * FROM (SELECT 1 AS n) AS _limited"},
		{"above max is capped", 5000, "SELECT TOP (1000) * FROM (SELECT 1 AS n) AS _limited"},
		{"in range passes through", 25, "SELECT TOP (25) * FROM (SELECT 1 AS n) AS _limited"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, mock := newMockExecutor(t)
			mock.ExpectQuery(tt.wantedTop).
				WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))

			_, err := exec.Query(context.Background(), "SELECT 1 AS n", tt.limit)
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExecutor_QueryWithParams_ConvertsPlaceholders(t *testing.T) {
	exec, mock := newMockExecutor(t)

	mock.ExpectQuery("SELECT TOP (50) * FROM (SELECT * FROM Applications WHERE app_status = @p1) AS _limited").
		WithArgs(sql.Named("p1", "approved")).
		WillReturnRows(sqlmock.NewRows([]string{"AppID"}).AddRow(int64(7)))

	result, err := exec.QueryWithParams(context.Background(),
		"SELECT * FROM Applications WHERE app_status = $1", []any{"approved"}, 50)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RowCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_Query_StringColumnsDecoded(t *testing.T) {
	exec, mock := newMockExecutor(t)

	// NVARCHAR values arrive from the driver as []byte; the executor must
	// hand them back as strings.
	cols := []*sqlmock.Column{
		sqlmock.NewColumn("AppID").OfType("BIGINT", int64(0)),
		sqlmock.NewColumn("city").OfType("NVARCHAR", ""),
	}
	rows := sqlmock.NewRowsWithColumnDefinition(cols...).
		AddRow(int64(101), []byte("Boston"))
	mock.ExpectQuery("SELECT TOP (10) * FROM (SELECT AppID, city FROM Applications) AS _limited").
		WillReturnRows(rows)

	result, err := exec.Query(context.Background(), "SELECT AppID, city FROM Applications", 10)
	require.NoError(t, err)

	assert.Equal(t, "Boston", result.Rows[0]["city"])
	assert.Equal(t, "BIGINT", result.Columns[0].Type)
	assert.Equal(t, "VARCHAR", result.Columns[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutor_Query_PropagatesError(t *testing.T) {
	exec, mock := newMockExecutor(t)

	mock.ExpectQuery("SELECT TOP (1000) * FROM (SELECT * FROM NoSuchTable) AS _limited").
		WillReturnError(sql.ErrConnDone)

	_, err := exec.Query(context.Background(), "SELECT * FROM NoSuchTable", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute query")
}

func TestExecutor_TestConnection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))

	exec := &Executor{db: db}
	require.NoError(t, exec.TestConnection(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvertPositionalParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "single parameter",
			query: "SELECT * FROM Applications WHERE AppID = $1",
			want:  "SELECT * FROM Applications WHERE AppID = @p1",
		},
		{
			name:  "multiple parameters",
			query: "SELECT * FROM Applications WHERE state = $1 AND app_status = $2",
			want:  "SELECT * FROM Applications WHERE state = @p1 AND app_status = @p2",
		},
		{
			name:  "two digit parameter",
			query: "SELECT $12",
			want:  "SELECT @p12",
		},
		{
			name:  "no parameters unchanged",
			query: "SELECT COUNT(*) FROM Applications",
			want:  "SELECT COUNT(*) FROM Applications",
		},
		{
			name:  "bare dollar sign unchanged",
			query: "SELECT '$' AS currency",
			want:  "SELECT '$' AS currency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convertPositionalParams(tt.query))
		})
	}
}
