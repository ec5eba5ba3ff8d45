package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresTestImage is the stock PostgreSQL image used for integration tests.
const PostgresTestImage = "postgres:16-alpine"

// TestDB holds a shared test database container and connection pool.
// The database is seeded with a small fixed Applications table so the
// canned query templates and the status probe resolve against it.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresTestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "crm_test",
			"POSTGRES_USER":     "crm",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The stock image emits this line twice: once during the init
		// bootstrap and once when the final server starts.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://crm:test_password@%s:%s/crm_test?sslmode=disable",
		host, port.Port())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if err := seedApplications(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to seed Applications table: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		Host:      host,
		Port:      port.Int(),
	}, nil
}

// seedApplications creates the mixed-case Applications table and loads a
// fixed dataset. The table and id column are quoted because the production
// schema uses mixed-case identifiers; the remaining columns are lowercase.
func seedApplications(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := `CREATE TABLE IF NOT EXISTS "Applications" (
		"AppID"    SERIAL PRIMARY KEY,
		app_status TEXT NOT NULL,
		dba        TEXT,
		city       TEXT,
		state      TEXT,
		balance    NUMERIC(12,2)
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	var existing int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM "Applications"`).Scan(&existing); err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	if existing > 0 {
		return nil
	}

	rows := []struct {
		status  string
		dba     string
		city    string
		state   string
		balance float64
	}{
		{"approved", "Acme Hardware", "Boston", "MA", 1200.50},
		{"pending", "Bay State Diner", "Boston", "MA", 355.00},
		{"approved", "Cape Cafe", "Hartford", "CT", 90.00},
		{"rejected", "Downtown Deli", "Providence", "RI", 4100.75},
		{"pending", "East Side Market", "Portland", "ME", 0},
		{"approved", "Fenway Florist", "Boston", "MA", 775.25},
		{"approved", "Granite Goods", "Concord", "NH", 150.00},
		{"withdrawn", "Harbor Supply", "Providence", "RI", 2200.00},
	}
	for _, r := range rows {
		_, err := pool.Exec(ctx,
			`INSERT INTO "Applications" (app_status, dba, city, state, balance) VALUES ($1, $2, $3, $4, $5)`,
			r.status, r.dba, r.city, r.state, r.balance)
		if err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}

	return nil
}
