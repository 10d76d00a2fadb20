package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"golemfacade/internal/config"
	"golemfacade/internal/deps"
	"golemfacade/internal/logging"
	"golemfacade/internal/services"
	"golemfacade/internal/yagna"
)

// CheckYagnaAPI asks the yagna REST API who it is. A passing check carries
// the node id in Detail.
func CheckYagnaAPI(ctx context.Context, apiURL, appKey string) Result {
	const name = "Yagna API"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := yagna.NewClient(apiURL, logging.NewNop(), yagna.WithAppKey(appKey))
	me, err := client.Me(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeAPIError(err)}
	}
	return Result{Name: name, Passed: true, Detail: me.Identity}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the daemon binaries and exe-unit descriptors.
// Both the daemon and the CLI status command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.Check(deps.GolemRequirements(cfg)...)
}

func summarizeAPIError(err error) string {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return "auth failed (app key rejected)"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out (yagna unresponsive)"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "not reachable (is yagna running?)"
	}
	return err.Error()
}
