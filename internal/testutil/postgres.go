package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaLock serializes packages that rebuild the shared test schema.
const schemaLock int64 = 0x5D1E7

// FreshDatabase takes the schema lock for the rest of the test and
// rebuilds every table from the migrations.
func FreshDatabase(t testing.TB, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", schemaLock); err != nil {
		conn.Release()
		t.Fatalf("take schema lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", schemaLock)
		conn.Release()
	})

	if err := ResetSchema(ctx, pool); err != nil {
		t.Fatal(err)
	}
}

// MigrationFiles lists migrations ending in suffix ("up.sql" or
// "down.sql"), oldest first.
func MigrationFiles(suffix string) ([]string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return nil, err
	}
	files, err := filepath.Glob(filepath.Join(root, "migrations", "*."+suffix))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(files)
	return files, nil
}

// ResetSchema runs every down migration newest first, then every up
// migration oldest first.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	downs, err := MigrationFiles("down.sql")
	if err != nil {
		return err
	}
	ups, err := MigrationFiles("up.sql")
	if err != nil {
		return err
	}
	slices.Reverse(downs)

	for _, path := range append(downs, ups...) {
		if err := ApplyFile(ctx, pool, path); err != nil {
			return err
		}
	}
	return nil
}

// ApplyFile executes one SQL file.
func ApplyFile(ctx context.Context, pool *pgxpool.Pool, path string) error {
	sql, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply %s: %w", filepath.Base(path), err)
	}
	return nil
}
