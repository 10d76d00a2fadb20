package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"golemfacade/internal/config"
)

// ConfigOption adjusts a test config. root is the temp directory that holds
// every path of the config.
type ConfigOption func(t testing.TB, cfg *config.Config, root string)

// NewConfig returns defaults rooted in a fresh temp directory, with suspend
// detection off and the HTTP API on an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Journal.Path = filepath.Join(cfg.Paths.LogDir, "jobs.db")
	cfg.Lifecycle.SuspendDetection = false
	for _, opt := range opts {
		opt(t, &cfg, root)
	}
	return &cfg
}

// WithAppKey forces the yagna app key.
func WithAppKey(key string) ConfigOption {
	return func(_ testing.TB, cfg *config.Config, _ string) { cfg.Yagna.AppKey = key }
}

// WithAPIURL points the REST client at url, typically an httptest server.
func WithAPIURL(url string) ConfigOption {
	return func(_ testing.TB, cfg *config.Config, _ string) { cfg.Yagna.APIURL = url }
}

// WithStubbedBinaries installs executables that exit 0 under root/bin and
// points paths.binaries_dir there. Without names, yagna and ya-provider are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	if len(names) == 0 {
		names = []string{"yagna", "ya-provider"}
	}
	return func(t testing.TB, cfg *config.Config, root string) {
		t.Helper()
		bin := filepath.Join(root, "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", bin, err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		cfg.Paths.BinariesDir = bin
	}
}
