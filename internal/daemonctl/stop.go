package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"golemfacade/internal/config"
	"golemfacade/internal/ipc"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult describes how the daemon went away.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult combines the stop and start halves of Restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// StopAndTerminate stops the facade, asks the daemon to exit and sends
// SIGKILL if the process is still alive after gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracePeriod)
	defer cancel()

	var result StopResult
	var lockPath string
	if status, err := client.Status(ctx); err == nil {
		result.PID = status.PID
		lockPath = status.LockFilePath
	}
	// The facade stops first so the last job transitions reach the journal
	// even when the process has to be killed.
	_, _ = client.StopGolem(ctx)
	resp, err := client.Shutdown(ctx)
	_ = client.Close()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return StopResult{}, err
	}
	if resp != nil {
		result.StopAcknowledged = resp.Accepted
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), gracePeriod)
	gone := poll(waitCtx, func() bool { return !socketLive(socketPath) && !processAlive(result.PID) }) == nil
	waitCancel()
	if gone {
		return result, nil
	}

	files, err := runtimeFiles(lockPath, cfg)
	if err != nil {
		return result, err
	}
	killed, err := ForceKill(files.pid, files.lock, result.PID)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(ctx context.Context, socketPath string, cfg *config.Config, executable string, opts LaunchOptions, stopGrace, startWait time.Duration) (RestartResult, error) {
	stopped, stopErr := StopAndTerminate(socketPath, cfg, stopGrace)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}
	started, err := EnsureStarted(ctx, socketPath, executable, opts, startWait, false)
	if err != nil {
		return RestartResult{}, err
	}
	return RestartResult{WasRunning: stopErr == nil, Stop: stopped, Start: started}, nil
}

// ForceKill sends SIGKILL to the daemon and removes its pid and lock files.
// The pid file wins over fallbackPID when it holds a valid pid.
func ForceKill(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	switch {
	case pid <= 0:
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	case pid == os.Getpid():
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// readPIDFile returns 0 without error when the file is missing or empty.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid < 0 {
		return 0, nil
	}
	return pid, nil
}

type daemonFiles struct {
	pid  string
	lock string
}

// runtimeFiles locates the pid and lock files. The daemon reports its lock
// path; the config is the fallback when it could not be asked.
func runtimeFiles(reportedLock string, cfg *config.Config) (daemonFiles, error) {
	if reportedLock != "" {
		dir := filepath.Dir(reportedLock)
		return daemonFiles{pid: filepath.Join(dir, "golemfacade.pid"), lock: reportedLock}, nil
	}
	if cfg != nil && strings.TrimSpace(cfg.Paths.LogDir) != "" {
		return daemonFiles{pid: cfg.PIDPath(), lock: cfg.LockPath()}, nil
	}
	return daemonFiles{}, errors.New("unable to determine daemon log directory")
}

func socketLive(socketPath string) bool {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return false
	}
	_ = client.Close()
	return true
}

// processAlive reports whether pid exists. An unknown pid counts as gone.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
