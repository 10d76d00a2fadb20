package preflight

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"golemfacade/internal/config"
)

// Result is the outcome of one check. Detail explains a failure or, for a
// pass, what was found.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll runs the checks that can be made before the daemons are launched.
// The yagna API is left out because it is expected to be down at that point.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	dirs := []struct{ name, path string }{
		{"Data directory", cfg.Paths.DataDir},
		{"Log directory", cfg.Paths.LogDir},
	}
	if cfg.Journal.Enabled {
		if dir := filepath.Dir(cfg.JournalPath()); dir != cfg.Paths.LogDir && dir != cfg.Paths.DataDir {
			dirs = append(dirs, struct{ name, path string }{"Journal directory", dir})
		}
	}
	results := make([]Result, 0, len(dirs)+1)
	for _, d := range dirs {
		results = append(results, CheckDirectoryAccess(d.name, d.path))
	}
	if bind := strings.TrimSpace(cfg.Paths.APIBind); bind != "" {
		results = append(results, CheckBindAddress(ctx, "HTTP API", bind))
	}
	return results
}

// CheckBindAddress verifies that addr can be listened on right now.
func CheckBindAddress(ctx context.Context, name, addr string) Result {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", addr, err)}
	}
	_ = ln.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (available)", addr)}
}
