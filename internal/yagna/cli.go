package yagna

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"golemfacade/internal/clock"
	"golemfacade/internal/logging"
	"golemfacade/internal/procexec"
	"golemfacade/internal/services"
)

// DefaultAppKeyName is the app key yagna creates on first start.
const DefaultAppKeyName = "default"

// IdentityInfo describes a node identity.
type IdentityInfo struct {
	Alias   string `json:"alias"`
	Default bool   `json:"default"`
	Locked  bool   `json:"locked"`
	NodeID  string `json:"nodeId"`
}

// KeyInfo describes an app key.
type KeyInfo struct {
	Name    string     `json:"name"`
	Key     string     `json:"key"`
	ID      string     `json:"id"`
	Role    string     `json:"role"`
	Created *time.Time `json:"created,omitempty"`
}

// StatValue is one bucket of payment totals.
type StatValue struct {
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	AgreementsCount uint            `json:"agreementsCount"`
}

// StatusNotes groups payment totals by stage.
type StatusNotes struct {
	Requested *StatValue `json:"requested,omitempty"`
	Accepted  *StatValue `json:"accepted,omitempty"`
	Confirmed *StatValue `json:"confirmed,omitempty"`
}

// PaymentStatus is the wallet summary reported by `payment status`.
type PaymentStatus struct {
	Amount   decimal.Decimal `json:"amount"`
	Reserved decimal.Decimal `json:"reserved"`
	Outgoing *StatusNotes    `json:"outgoing,omitempty"`
	Incoming *StatusNotes    `json:"incoming,omitempty"`
	Driver   string          `json:"driver"`
	Network  string          `json:"network"`
	Token    string          `json:"token"`
}

// ActivityCounters counts activities per state.
type ActivityCounters struct {
	New        *int `json:"New,omitempty"`
	Ready      *int `json:"Ready,omitempty"`
	Terminated *int `json:"Terminated,omitempty"`
	Deployed   *int `json:"Deployed,omitempty"`
}

// ActivityStatus is the output of `activity status`.
type ActivityStatus struct {
	Last1h *ActivityCounters `json:"last1h,omitempty"`
	Total  *ActivityCounters `json:"total,omitempty"`
}

// table is the tabular JSON some yagna commands emit.
type table struct {
	Headers []string `json:"headers"`
	Values  [][]any  `json:"values"`
}

// CLI wraps the yagna command-line tool.
type CLI struct {
	binary string
	env    []string
	exec   procexec.Executor
	clock  clock.Clock
	logger *slog.Logger

	// KeyListAttempts bounds how often AppKeys retries an empty listing.
	KeyListAttempts int
	KeyListInterval time.Duration
}

// NewCLI constructs a CLI wrapper. env is applied to every invocation so the
// tool reaches the same daemon instance as the service.
func NewCLI(binary string, env []string, exec procexec.Executor, clk clock.Clock, logger *slog.Logger) *CLI {
	if exec == nil {
		exec = procexec.CommandExecutor{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &CLI{
		binary:          strings.TrimSpace(binary),
		env:             env,
		exec:            exec,
		clock:           clk,
		logger:          logging.NewComponentLogger(logger, "yagna-cli"),
		KeyListAttempts: 10,
		KeyListInterval: time.Second,
	}
}

func (c *CLI) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "yagna-cli", "run", "yagna binary not configured", nil)
	}
	out, err := c.exec.Run(ctx, c.binary, args, c.env)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrDaemon, "yagna-cli", strings.Join(args, " "), "", err)
	}
	return out, nil
}

func (c *CLI) runJSON(ctx context.Context, out any, args ...string) error {
	payload, err := c.run(ctx, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(bytes.TrimSpace(payload), out); err != nil {
		return services.Wrap(services.ErrDecode, "yagna-cli", strings.Join(args, " "), "", err)
	}
	return nil
}

// IdentityShow returns the default node identity.
func (c *CLI) IdentityShow(ctx context.Context) (IdentityInfo, error) {
	var result struct {
		Ok  *IdentityInfo `json:"Ok"`
		Err any           `json:"Err"`
	}
	if err := c.runJSON(ctx, &result, "--json", "id", "show"); err != nil {
		return IdentityInfo{}, err
	}
	if result.Ok == nil {
		return IdentityInfo{}, services.Wrap(services.ErrDaemon, "yagna-cli", "id show", fmt.Sprint(result.Err), nil)
	}
	return *result.Ok, nil
}

// Identities lists every identity known to the daemon.
func (c *CLI) Identities(ctx context.Context) ([]IdentityInfo, error) {
	payload, err := c.run(ctx, "--json", "id", "list")
	if err != nil {
		return nil, err
	}
	payload = bytes.TrimSpace(payload)
	var ids []IdentityInfo
	if len(payload) > 0 && payload[0] == '[' {
		if err := json.Unmarshal(payload, &ids); err != nil {
			return nil, services.Wrap(services.ErrDecode, "yagna-cli", "id list", "", err)
		}
		return ids, nil
	}
	var tbl table
	if err := json.Unmarshal(payload, &tbl); err != nil {
		return nil, services.Wrap(services.ErrDecode, "yagna-cli", "id list", "", err)
	}
	for _, row := range tbl.rows() {
		ids = append(ids, IdentityInfo{
			Alias:   row["alias"],
			Default: row["default"] == "X",
			Locked:  row["locked"] == "X",
			NodeID:  firstNonEmpty(row["address"], row["nodeId"]),
		})
	}
	return ids, nil
}

// AppKeys lists app keys. yagna answers with an empty list for a while after
// startup, so an empty result is retried KeyListAttempts times.
func (c *CLI) AppKeys(ctx context.Context) ([]KeyInfo, error) {
	attempts := c.KeyListAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		keys, err := c.listAppKeys(ctx)
		if err == nil && len(keys) > 0 {
			return keys, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			lastErr = err
			c.logger.Debug("app key listing failed", logging.Error(err), logging.Int("attempt", i+1))
		}
		if i+1 < attempts && !clock.Sleep(ctx.Done(), c.clock, c.KeyListInterval) {
			return nil, ctx.Err()
		}
	}
	return nil, services.Wrap(services.ErrDaemon, "yagna-cli", "app-key list", "failed to obtain key list from yagna service", lastErr)
}

func (c *CLI) listAppKeys(ctx context.Context) ([]KeyInfo, error) {
	payload, err := c.run(ctx, "--json", "app-key", "list")
	if err != nil {
		return nil, err
	}
	payload = bytes.TrimSpace(payload)
	var keys []KeyInfo
	if len(payload) > 0 && payload[0] == '[' {
		if err := json.Unmarshal(payload, &keys); err != nil {
			return nil, services.Wrap(services.ErrDecode, "yagna-cli", "app-key list", "", err)
		}
		return keys, nil
	}
	var tbl table
	if err := json.Unmarshal(payload, &tbl); err != nil {
		return nil, services.Wrap(services.ErrDecode, "yagna-cli", "app-key list", "", err)
	}
	for _, row := range tbl.rows() {
		keys = append(keys, KeyInfo{Name: row["name"], Key: row["key"], ID: row["id"], Role: row["role"]})
	}
	return keys, nil
}

// AppKey returns the key named name. When only one key exists it is returned
// regardless of its name.
func (c *CLI) AppKey(ctx context.Context, name string) (KeyInfo, error) {
	keys, err := c.AppKeys(ctx)
	if err != nil {
		return KeyInfo{}, err
	}
	if len(keys) == 1 {
		return keys[0], nil
	}
	for _, k := range keys {
		if k.Name == name {
			return k, nil
		}
	}
	return KeyInfo{}, services.Wrap(services.ErrNotFound, "yagna-cli", "app-key", "no key named "+name, nil)
}

// PaymentStatus reports the wallet status on a payment network.
func (c *CLI) PaymentStatus(ctx context.Context, network, driver, account string) (PaymentStatus, error) {
	args := []string{"--json", "payment", "status", "--network", network, "--driver", driver}
	if account != "" {
		args = append(args, "--account", account)
	}
	var status PaymentStatus
	err := c.runJSON(ctx, &status, args...)
	return status, err
}

// PaymentInit registers the account as a payment receiver.
func (c *CLI) PaymentInit(ctx context.Context, network, driver, account string) error {
	args := []string{"payment", "init", "--receiver", "--network", network, "--driver", driver}
	if account != "" {
		args = append(args, "--account", account)
	}
	_, err := c.run(ctx, args...)
	return err
}

// ActivityStatus returns activity counters.
func (c *CLI) ActivityStatus(ctx context.Context) (ActivityStatus, error) {
	var status ActivityStatus
	err := c.runJSON(ctx, &status, "--json", "activity", "status")
	return status, err
}

func (t table) rows() []map[string]string {
	out := make([]map[string]string, 0, len(t.Values))
	for _, values := range t.Values {
		row := make(map[string]string, len(t.Headers))
		for i, header := range t.Headers {
			if i >= len(values) || values[i] == nil {
				continue
			}
			row[header] = fmt.Sprint(values[i])
		}
		out = append(out, row)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
