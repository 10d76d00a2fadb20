package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"golemfacade/internal/config"
	"golemfacade/internal/ipc"
)

// rpcTimeout bounds quick IPC calls. Lifecycle calls use the configured
// startup and grace periods instead.
const rpcTimeout = 10 * time.Second

// commandContext carries the persistent flags and the lazily loaded config
// shared by every subcommand.
type commandContext struct {
	socketFlag string
	configFlag string

	load   sync.Once
	cfg    *config.Config
	cfgErr error
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.configFlag)
}

// ensureConfig loads the config file once and creates its directories.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.load.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		if err != nil {
			c.cfgErr = err
			return
		}
		c.cfg = cfg
	})
	return c.cfg, c.cfgErr
}

// configValue is ensureConfig for callers that can fall back to defaults.
func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// socketPath resolves the daemon socket: --socket, then the loaded config,
// then the default log directory.
func (c *commandContext) socketPath() string {
	if socket := strings.TrimSpace(c.socketFlag); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	if dir, err := config.ExpandPath("~/.local/share/golemfacade/logs"); err == nil {
		return filepath.Join(dir, "golemfacade.sock")
	}
	return filepath.Join(os.TempDir(), "golemfacade.sock")
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return explainDialError(err, socket)
	}
	defer client.Close()
	return fn(client)
}

// lifecycleTimeout covers a full golem start or stop as seen from the CLI.
func (c *commandContext) lifecycleTimeout() time.Duration {
	cfg := c.configValue()
	if cfg == nil {
		return 2 * time.Minute
	}
	return cfg.YagnaStartupTimeout() + 2*cfg.StopGrace() + 30*time.Second
}

func rpcContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}

func explainDialError(err error, socket string) error {
	if errors.Is(err, syscall.ENOENT) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `golemfacade start`", socket)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func skipsConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
