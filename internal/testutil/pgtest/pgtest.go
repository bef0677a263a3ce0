// Package pgtest provides a migrated Postgres for integration tests. It uses
// DATABASE_URL when set and otherwise starts a throwaway container; tests are
// skipped when neither is available.
package pgtest

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/ledger-core/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// lockAddr serialises test binaries that share one DATABASE_URL; go test runs
// packages in parallel and every package truncates the same tables.
const lockAddr = "127.0.0.1:45432"

var (
	envOnce       sync.Once
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
	container     *tcpostgres.PostgresContainer
	migrated      sync.Once
)

// Main wraps testing.M for packages with integration tests.
func Main(m *testing.M) {
	release := acquireLock()
	code := m.Run()
	if container != nil {
		_ = container.Terminate(context.Background())
	}
	release()
	os.Exit(code)
}

func acquireLock() func() {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Pool returns a pool on a freshly truncated, fully migrated schema.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in -short mode")
	}

	envOnce.Do(loadDotEnv)
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		testcontainers.SkipIfProviderIsNotHealthy(t)
		containerOnce.Do(func() { containerDSN, containerErr = startContainer() })
		if containerErr != nil {
			t.Skipf("skipping integration test: %v", containerErr)
		}
		dsn = containerDSN
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	t.Cleanup(pool.Close)

	var migrateErr error
	migrated.Do(func() { migrateErr = db.Migrate(pool) })
	if migrateErr != nil {
		t.Fatalf("migrate test database: %v", migrateErr)
	}

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE audit_log, outbox_events, transfers, accounts, owners, idempotency_keys RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate test database: %v", err)
	}
	return pool
}

func startContainer() (string, error) {
	ctx := context.Background()
	c, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("ledger_test"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", err
	}
	container = c
	return c.ConnectionString(ctx, "sslmode=disable")
}

// loadDotEnv picks up the repository .env from whichever package directory the
// test binary runs in.
func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			_ = godotenv.Load(candidate)
			return
		}
		dir = filepath.Dir(dir)
	}
}
