package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	BinariesDir string `toml:"binaries_dir"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Yagna configures the network/payment daemon and its REST API.
type Yagna struct {
	APIURL                string `toml:"api_url"`
	GSBURL                string `toml:"gsb_url"`
	NetBindURL            string `toml:"net_bind_url"`
	AppKey                string `toml:"app_key"`
	PrivateKey            string `toml:"private_key"`
	RelayHost             string `toml:"relay_host"`
	SSLCertFile           string `toml:"ssl_cert_file"`
	Debug                 bool   `toml:"debug"`
	StartupTimeoutSeconds int    `toml:"startup_timeout_seconds"`
}

// Provider configures the ya-provider process.
type Provider struct {
	Network                string        `toml:"network"`
	ExeUnitPath            string        `toml:"exe_unit_path"`
	Debug                  bool          `toml:"debug"`
	MinAgreementExpiration string        `toml:"min_agreement_expiration"`
	InitPresets            bool          `toml:"init_presets"`
	Price                  ProviderPrice `toml:"price"`
}

// ProviderPrice is the offer price applied to every default preset. Values
// are decimal strings; leave all empty to keep the presets' current prices.
type ProviderPrice struct {
	GPUPerSec      string `toml:"gpu_per_sec"`
	DurationPerSec string `toml:"duration_per_sec"`
	PerRequest     string `toml:"per_request"`
	StartPrice     string `toml:"start_price"`
}

// Configured reports whether any price component is set.
func (p ProviderPrice) Configured() bool {
	return p.GPUPerSec != "" || p.DurationPerSec != "" || p.PerRequest != "" || p.StartPrice != ""
}

// Lifecycle contains the timing knobs of the orchestrator and reconciliation loops.
type Lifecycle struct {
	StopGraceSeconds          int  `toml:"stop_grace_seconds"`
	ErrorStopGraceMillis      int  `toml:"error_stop_grace_millis"`
	ActivityReconnectSeconds  int  `toml:"activity_reconnect_seconds"`
	InvoicePollTimeoutSeconds int  `toml:"invoice_poll_timeout_seconds"`
	InvoiceHTTPRetryMillis    int  `toml:"invoice_http_retry_millis"`
	InvoiceErrorRetrySeconds  int  `toml:"invoice_error_retry_seconds"`
	OrphanCleanup             bool `toml:"orphan_cleanup"`
	SuspendDetection          bool `toml:"suspend_detection"`
	SuspendCheckSeconds       int  `toml:"suspend_check_seconds"`
	SuspendJumpSeconds        int  `toml:"suspend_jump_seconds"`
}

// Journal configures the SQLite job journal.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	Errors             bool   `toml:"errors"`
	JobFinished        bool   `toml:"job_finished"`
	PaymentSettled     bool   `toml:"payment_settled"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for the facade.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories, binaries and API bind address
//   - Yagna: daemon endpoints, identity and app key overrides
//   - Provider: payment network and exe-unit location
//   - Lifecycle: grace periods, reconnect windows and retry backoffs
//   - Journal: SQLite job history
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Yagna         Yagna         `toml:"yagna"`
	Provider      Provider      `toml:"provider"`
	Lifecycle     Lifecycle     `toml:"lifecycle"`
	Journal       Journal       `toml:"journal"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("golemfacade.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.YagnaDataDir(), c.ProviderDataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// YagnaBinary returns the yagna executable, honouring paths.binaries_dir.
func (c *Config) YagnaBinary() string {
	return c.binary("yagna")
}

// ProviderBinary returns the ya-provider executable, honouring paths.binaries_dir.
func (c *Config) ProviderBinary() string {
	return c.binary("ya-provider")
}

func (c *Config) binary(name string) string {
	if dir := strings.TrimSpace(c.Paths.BinariesDir); dir != "" {
		return filepath.Join(dir, name)
	}
	return name
}

// YagnaDataDir is the yagna data directory beneath paths.data_dir.
func (c *Config) YagnaDataDir() string {
	return filepath.Join(c.Paths.DataDir, "yagna")
}

// ProviderDataDir is the ya-provider data directory beneath paths.data_dir.
func (c *Config) ProviderDataDir() string {
	return filepath.Join(c.Paths.DataDir, "provider")
}

// StopGrace is how long each daemon gets to exit on a user-requested stop.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Lifecycle.StopGraceSeconds) * time.Second
}

// ErrorStopGrace is the short grace used when tearing down after a failure.
func (c *Config) ErrorStopGrace() time.Duration {
	return time.Duration(c.Lifecycle.ErrorStopGraceMillis) * time.Millisecond
}

// ActivityReconnect is the minimum spacing between monitor stream attempts.
func (c *Config) ActivityReconnect() time.Duration {
	return time.Duration(c.Lifecycle.ActivityReconnectSeconds) * time.Second
}

// InvoicePollTimeout is the long-poll timeout sent to the invoice events endpoint.
func (c *Config) InvoicePollTimeout() time.Duration {
	return time.Duration(c.Lifecycle.InvoicePollTimeoutSeconds) * time.Second
}

// InvoiceHTTPRetry is the wait after a non-success invoice events response.
func (c *Config) InvoiceHTTPRetry() time.Duration {
	return time.Duration(c.Lifecycle.InvoiceHTTPRetryMillis) * time.Millisecond
}

// InvoiceErrorRetry is the wait after a transport or decode failure.
func (c *Config) InvoiceErrorRetry() time.Duration {
	return time.Duration(c.Lifecycle.InvoiceErrorRetrySeconds) * time.Second
}

// SuspendCheckInterval is the wall-clock sampling period of the suspend detector.
func (c *Config) SuspendCheckInterval() time.Duration {
	return time.Duration(c.Lifecycle.SuspendCheckSeconds) * time.Second
}

// SuspendJumpThreshold is the unexplained clock jump treated as a resume.
func (c *Config) SuspendJumpThreshold() time.Duration {
	return time.Duration(c.Lifecycle.SuspendJumpSeconds) * time.Second
}

// YagnaStartupTimeout bounds how long Start waits for the REST API to answer.
func (c *Config) YagnaStartupTimeout() time.Duration {
	return time.Duration(c.Yagna.StartupTimeoutSeconds) * time.Second
}

// JournalPath returns the journal database location.
func (c *Config) JournalPath() string {
	if strings.TrimSpace(c.Journal.Path) != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.Paths.LogDir, "jobs.db")
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "golemfacade.sock")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "golemfacade.lock")
}

// PIDPath returns the file the daemon writes its process id to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "golemfacade.pid")
}

// CurrentLogPath is the link to the log file of the latest daemon run.
func (c *Config) CurrentLogPath() string {
	return filepath.Join(c.Paths.LogDir, "golemfacade.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
