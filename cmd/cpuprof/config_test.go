package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/getsentry/cpuprof/internal/testutil"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := loadConfig("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := ServiceConfig{
			Environment:       "development",
			Port:              "8080",
			LogLevel:          "info",
			Backend:           "accelerated",
			Workers:           5,
			ProfilesBucketURL: "mem://",
		}
		if diff := testutil.Diff(c, want); diff != "" {
			t.Fatalf("Result mismatch: got - want +\n%s", diff)
		}
	})

	t.Run("file and env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		err := os.WriteFile(path, []byte("sentry_dsn: https://key@example.com/1\ninterval: 100\n"), 0o600)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		t.Setenv("CPUPROF_INTERVAL", "250")

		c, err := loadConfig(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.SentryDSN != "https://key@example.com/1" || c.Interval != 250 {
			t.Fatalf("unexpected config %+v", c)
		}
	})
}
