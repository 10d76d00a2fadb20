package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
	"golemfacade/internal/procexec"
	"golemfacade/internal/services"
	"golemfacade/internal/yagna"
)

// InitialPriceKey names the fixed start price in preset price arguments.
const InitialPriceKey = "Initial"

// ExeUnit describes an installed runtime.
type ExeUnit struct {
	Name           string         `json:"name"`
	Version        string         `json:"version"`
	SupervisorPath string         `json:"supervisor-path"`
	RuntimePath    string         `json:"runtime-path,omitempty"`
	ExtraArgs      []string       `json:"extra-args,omitempty"`
	Description    string         `json:"description,omitempty"`
	Properties     map[string]any `json:"properties,omitempty"`
}

// NodeConfig is the provider's global configuration.
type NodeConfig struct {
	NodeName string `json:"node_name,omitempty"`
	Subnet   string `json:"subnet,omitempty"`
	Account  string `json:"account,omitempty"`
}

// Profile is a hardware resource limit set.
type Profile struct {
	CPUThreads int     `json:"cpu_threads"`
	MemGiB     float64 `json:"mem_gib"`
	StorageGiB float64 `json:"storage_gib"`
}

// Preset binds an exe-unit to a pricing model.
type Preset struct {
	Name         string                     `json:"name"`
	ExeUnitName  string                     `json:"exeunit-name"`
	PricingModel string                     `json:"pricing-model,omitempty"`
	InitialPrice *decimal.Decimal           `json:"initial-price,omitempty"`
	UsageCoeffs  map[string]decimal.Decimal `json:"usage-coeffs,omitempty"`
}

// Price reads the preset's coefficients. Missing counters are zero.
func (p Preset) Price() jobs.Price {
	price := jobs.Price{
		GPU:      p.UsageCoeffs[yagna.CounterGPUSec],
		Duration: p.UsageCoeffs[yagna.CounterDurationSec],
		Requests: p.UsageCoeffs[yagna.CounterRequests],
	}
	if p.InitialPrice != nil {
		price.Start = *p.InitialPrice
	}
	return price
}

// CLI wraps the ya-provider command-line tool.
type CLI struct {
	binary string
	env    []string
	exec   procexec.Executor
	logger *slog.Logger
}

// NewCLI constructs a CLI wrapper. env must carry the same data directory
// and exe-unit path the service runs with.
func NewCLI(binary string, env []string, exec procexec.Executor, logger *slog.Logger) *CLI {
	if exec == nil {
		exec = procexec.CommandExecutor{}
	}
	return &CLI{
		binary: strings.TrimSpace(binary),
		env:    env,
		exec:   exec,
		logger: logging.NewComponentLogger(logger, "provider-cli"),
	}
}

func (c *CLI) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "provider-cli", "run", "ya-provider binary not configured", nil)
	}
	c.logger.Debug("ya-provider command", logging.String("args", strings.Join(args, " ")))
	out, err := c.exec.Run(ctx, c.binary, args, c.env)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrDaemon, "provider-cli", strings.Join(args, " "), "", err)
	}
	return out, nil
}

func (c *CLI) runJSON(ctx context.Context, target any, args ...string) error {
	out, err := c.run(ctx, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bytes.TrimSpace(out), target); err != nil {
		return services.Wrap(services.ErrDecode, "provider-cli", strings.Join(args, " "), "", err)
	}
	return nil
}

// ExeUnits lists the installed runtimes.
func (c *CLI) ExeUnits(ctx context.Context) ([]ExeUnit, error) {
	var units []ExeUnit
	if err := c.runJSON(ctx, &units, "--json", "exe-unit", "list"); err != nil {
		return nil, err
	}
	return units, nil
}

// Config reads the provider's node configuration.
func (c *CLI) Config(ctx context.Context) (NodeConfig, error) {
	var cfg NodeConfig
	if err := c.runJSON(ctx, &cfg, "config", "get", "--json"); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

// SetConfig writes the non-empty fields of cfg and returns the result.
func (c *CLI) SetConfig(ctx context.Context, cfg NodeConfig) (NodeConfig, error) {
	args := []string{"--json", "config", "set"}
	if cfg.Subnet != "" {
		args = append(args, "--subnet", cfg.Subnet)
	}
	if cfg.NodeName != "" {
		args = append(args, "--node-name", cfg.NodeName)
	}
	if cfg.Account != "" {
		args = append(args, "--account", cfg.Account)
	}
	var updated NodeConfig
	if err := c.runJSON(ctx, &updated, args...); err != nil {
		return NodeConfig{}, err
	}
	return updated, nil
}

// Profiles lists hardware profiles by name.
func (c *CLI) Profiles(ctx context.Context) (map[string]Profile, error) {
	profiles := map[string]Profile{}
	if err := c.runJSON(ctx, &profiles, "--json", "profile", "list"); err != nil {
		return nil, err
	}
	return profiles, nil
}

// UpdateProfile sets one resource limit on the default profile. param is
// one of cpu-threads, mem-gib or storage-gib.
func (c *CLI) UpdateProfile(ctx context.Context, param, value string) error {
	_, err := c.run(ctx, "profile", "update", "--"+strings.TrimPrefix(param, "--"), value, "default")
	return err
}

// Presets lists every configured preset.
func (c *CLI) Presets(ctx context.Context) ([]Preset, error) {
	var presets []Preset
	if err := c.runJSON(ctx, &presets, "preset", "--json", "list"); err != nil {
		return nil, err
	}
	return presets, nil
}

// ActivePresets lists the names of active presets.
func (c *CLI) ActivePresets(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.runJSON(ctx, &names, "--json", "preset", "active"); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *CLI) ActivatePreset(ctx context.Context, name string) error {
	_, err := c.run(ctx, "preset", "activate", name)
	return err
}

func (c *CLI) DeactivatePreset(ctx context.Context, name string) error {
	_, err := c.run(ctx, "preset", "deactivate", name)
	return err
}

// CreatePreset creates a linear-priced preset for exeUnit.
func (c *CLI) CreatePreset(ctx context.Context, name, exeUnit string, price jobs.Price) error {
	args := []string{"preset", "create", "--no-interactive", "--preset-name", name, "--exe-unit", exeUnit}
	args = append(args, priceArgs(price)...)
	_, err := c.run(ctx, args...)
	return err
}

// UpdatePrice rewrites the coefficients of an existing preset.
func (c *CLI) UpdatePrice(ctx context.Context, preset string, price jobs.Price) error {
	args := []string{"preset", "update", "--no-interactive", "--name", preset}
	args = append(args, priceArgs(price)...)
	_, err := c.run(ctx, args...)
	return err
}

// DefaultPresetName is the preset the facade maintains for an exe-unit.
func DefaultPresetName(unit ExeUnit) string {
	return unit.Name
}

// InitializeDefaultPresets ensures every exe-unit has an active preset of the
// same name and deactivates every other preset.
func (c *CLI) InitializeDefaultPresets(ctx context.Context) error {
	units, err := c.ExeUnits(ctx)
	if err != nil {
		return err
	}
	presets, err := c.Presets(ctx)
	if err != nil {
		return err
	}
	active, err := c.ActivePresets(ctx)
	if err != nil {
		return err
	}

	defaults := make([]string, 0, len(units))
	for _, unit := range units {
		name := DefaultPresetName(unit)
		defaults = append(defaults, name)
		exists := slices.ContainsFunc(presets, func(p Preset) bool { return p.Name == name })
		if !exists {
			c.logger.Info("creating preset", logging.String("preset", name), logging.String("exe_unit", unit.Name))
			if err := c.CreatePreset(ctx, name, unit.Name, jobs.Price{}); err != nil {
				return err
			}
		}
		if !slices.Contains(active, name) {
			if err := c.ActivatePreset(ctx, name); err != nil {
				return err
			}
			active = append(active, name)
		}
	}

	for _, name := range active {
		if slices.Contains(defaults, name) {
			continue
		}
		c.logger.Info("deactivating preset", logging.String("preset", name))
		if err := c.DeactivatePreset(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// DefaultPresets returns the presets InitializeDefaultPresets maintains.
func (c *CLI) DefaultPresets(ctx context.Context) ([]Preset, error) {
	units, err := c.ExeUnits(ctx)
	if err != nil {
		return nil, err
	}
	presets, err := c.Presets(ctx)
	if err != nil {
		return nil, err
	}
	var out []Preset
	for _, preset := range presets {
		if slices.ContainsFunc(units, func(u ExeUnit) bool { return DefaultPresetName(u) == preset.Name }) {
			out = append(out, preset)
		}
	}
	return out, nil
}

// UpdateAllPrices applies price to every default preset.
func (c *CLI) UpdateAllPrices(ctx context.Context, price jobs.Price) error {
	units, err := c.ExeUnits(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, unit := range units {
		name := DefaultPresetName(unit)
		if seen[name] {
			continue
		}
		seen[name] = true
		if err := c.UpdatePrice(ctx, name, price); err != nil {
			return err
		}
	}
	return nil
}

// priceArgs renders --price flags in a stable order.
func priceArgs(price jobs.Price) []string {
	pairs := []struct {
		key   string
		value decimal.Decimal
	}{
		{yagna.CounterRequests, price.Requests},
		{yagna.CounterDurationSec, price.Duration},
		{yagna.CounterGPUSec, price.GPU},
		{InitialPriceKey, price.Start},
	}
	args := make([]string, 0, 2*len(pairs))
	for _, pair := range pairs {
		args = append(args, "--price", fmt.Sprintf("%s=%s", pair.key, pair.value.String()))
	}
	return args
}
