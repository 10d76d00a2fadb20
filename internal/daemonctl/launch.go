package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golemfacade/internal/ipc"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions are the flags handed to a freshly launched daemon.
type LaunchOptions struct {
	SocketPath  string
	ConfigPath  string
	Diagnostic  bool
	NoAutoStart bool
}

// Args returns the daemon command line for opts.
func (o LaunchOptions) Args() []string {
	args := []string{"daemon"}
	if v := strings.TrimSpace(o.SocketPath); v != "" {
		args = append(args, "--socket", v)
	}
	if v := strings.TrimSpace(o.ConfigPath); v != "" {
		args = append(args, "--config", v)
	}
	if o.Diagnostic {
		args = append(args, "--diagnostic")
	}
	if o.NoAutoStart {
		args = append(args, "--no-autostart")
	}
	return args
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	StartStateRequested      StartState = "start_requested"
)

// StartResult describes what EnsureStarted did.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// Launch starts a daemon in its own session so it outlives the CLI.
func Launch(executable string, opts LaunchOptions) error {
	if strings.TrimSpace(executable) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	cmd := exec.Command(executable, opts.Args()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return cmd.Process.Release()
}

// EnsureStarted launches the daemon when its socket is not reachable. With
// startGolem the facade is started too and the call blocks until it is
// Ready or failed.
func EnsureStarted(ctx context.Context, socketPath, executable string, opts LaunchOptions, waitTimeout time.Duration, startGolem bool) (StartResult, error) {
	result := StartResult{State: StartStateAlreadyRunning}
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if err := Launch(executable, opts); err != nil {
			return StartResult{}, err
		}
		waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
		client, err = dialWhenReady(waitCtx, socketPath)
		cancel()
		if err != nil {
			return StartResult{}, err
		}
		result = StartResult{State: StartStateStarted, Launched: true}
	}
	defer client.Close()

	if !startGolem {
		return result, nil
	}
	if status, err := client.Status(ctx); err == nil && status.Golem.Status == "ready" {
		return result, nil
	}
	resp, err := client.StartGolem(ctx)
	if err != nil {
		return StartResult{}, err
	}
	result.Message = strings.TrimSpace(resp.Message)
	if !resp.Ok {
		result.State = StartStateRequested
		if result.Message == "" {
			result.Message = "golem start did not complete"
		}
		return result, fmt.Errorf("golem start failed: %s", result.Message)
	}
	result.State = StartStateStarted
	return result, nil
}

// dialWhenReady retries the socket until it accepts a connection.
func dialWhenReady(ctx context.Context, socketPath string) (*ipc.Client, error) {
	var client *ipc.Client
	var lastErr error
	err := poll(ctx, func() bool {
		client, lastErr = ipc.Dial(socketPath)
		return lastErr == nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
	}
	return client, nil
}

// poll calls done every pollInterval until it reports true or ctx ends.
func poll(ctx context.Context, done func() bool) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
