//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/testhelpers"
)

// newIntegrationExecutor connects an Executor to the shared test container.
func newIntegrationExecutor(t *testing.T) *Executor {
	t.Helper()

	testDB := testhelpers.GetTestDB(t)

	exec, err := NewExecutor(context.Background(), &Config{
		Host:     testDB.Host,
		Port:     testDB.Port,
		User:     "crm",
		Password: "test_password",
		Database: "crm_test",
		SSLMode:  "disable",
	})
	require.NoError(t, err, "failed to connect executor to test container")

	t.Cleanup(func() { _ = exec.Close() })

	return exec
}

func TestExecutor_Query_CountsApplications(t *testing.T) {
	exec := newIntegrationExecutor(t)

	result, err := exec.Query(context.Background(),
		`SELECT COUNT(*) AS count FROM "Applications"`, 10)
	require.NoError(t, err)

	require.Equal(t, 1, result.RowCount)
	assert.EqualValues(t, 8, result.Rows[0]["count"])
}

func TestExecutor_Query_AppliesLimit(t *testing.T) {
	exec := newIntegrationExecutor(t)

	result, err := exec.Query(context.Background(),
		`SELECT "AppID", dba FROM "Applications" ORDER BY "AppID"`, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, result.RowCount)
	assert.Len(t, result.Rows, 3)
}

func TestExecutor_QueryWithParams(t *testing.T) {
	exec := newIntegrationExecutor(t)

	result, err := exec.QueryWithParams(context.Background(),
		`SELECT dba, city FROM "Applications" WHERE app_status = $1 ORDER BY "AppID"`,
		[]any{"approved"}, 50)
	require.NoError(t, err)

	require.Equal(t, 4, result.RowCount)
	assert.Equal(t, "Acme Hardware", result.Rows[0]["dba"])
	assert.Equal(t, "Boston", result.Rows[0]["city"])
}

func TestExecutor_Query_ColumnMetadata(t *testing.T) {
	exec := newIntegrationExecutor(t)

	result, err := exec.Query(context.Background(),
		`SELECT "AppID", dba, balance FROM "Applications"`, 1)
	require.NoError(t, err)

	require.Len(t, result.Columns, 3)
	assert.Equal(t, "AppID", result.Columns[0].Name)
	assert.Equal(t, "INT4", result.Columns[0].Type)
	assert.Equal(t, "dba", result.Columns[1].Name)
	assert.Equal(t, "TEXT", result.Columns[1].Type)
	assert.Equal(t, "balance", result.Columns[2].Name)
	assert.Equal(t, "NUMERIC", result.Columns[2].Type)
}

func TestExecutor_Query_GroupedAggregate(t *testing.T) {
	exec := newIntegrationExecutor(t)

	// Shape produced by the grouped-count template
	result, err := exec.Query(context.Background(),
		`SELECT app_status, COUNT(*) AS count FROM "Applications" GROUP BY app_status ORDER BY count DESC`, 50)
	require.NoError(t, err)

	require.Equal(t, 4, result.RowCount)
	assert.Equal(t, "approved", result.Rows[0]["app_status"])
	assert.EqualValues(t, 4, result.Rows[0]["count"])
}

func TestExecutor_Query_InvalidSQL(t *testing.T) {
	exec := newIntegrationExecutor(t)

	_, err := exec.Query(context.Background(),
		`SELECT nope FROM "Applications"`, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute query")
}

func TestExecutor_TestConnection(t *testing.T) {
	exec := newIntegrationExecutor(t)

	require.NoError(t, exec.TestConnection(context.Background()))
}
