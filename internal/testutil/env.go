// Package testutil holds helpers for integration tests that need a live
// Postgres or Redis. Those tests carry the "integration" build tag and skip
// themselves when the backing service is not configured.
package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// RequireEnv returns the value of key, skipping the test when it is unset
// or when running with -short.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// ProjectRoot is the module root, found relative to this file.
func ProjectRoot() (string, error) {
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("testutil: cannot locate source file")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(self), "..", "..")), nil
}
