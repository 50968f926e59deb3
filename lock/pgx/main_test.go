package pgx

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestMain starts a PostgreSQL container when TEST_POSTGRES_CONTAINER is set
// and no TEST_DATABASE_URL is given.
func TestMain(m *testing.M) {
	if os.Getenv("TEST_DATABASE_URL") != "" || os.Getenv("TEST_POSTGRES_CONTAINER") == "" {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("locks"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres container: %v\n", err)
		os.Exit(1)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(ctr)
		fmt.Fprintf(os.Stderr, "postgres connection string: %v\n", err)
		os.Exit(1)
	}
	os.Setenv("TEST_DATABASE_URL", dsn)

	code := m.Run()
	_ = testcontainers.TerminateContainer(ctr)
	os.Exit(code)
}
