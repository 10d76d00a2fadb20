package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateYagna(); err != nil {
		return err
	}
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateLifecycle(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateYagna() error {
	parsed, err := url.Parse(c.Yagna.APIURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("yagna.api_url must be an http(s) URL, got %q", c.Yagna.APIURL)
	}
	if !strings.Contains(c.Yagna.GSBURL, "://") {
		return errors.New("yagna.gsb_url must include a scheme (e.g. tcp://127.0.0.1:11501)")
	}
	if !strings.Contains(c.Yagna.NetBindURL, "://") {
		return errors.New("yagna.net_bind_url must include a scheme (e.g. udp://0.0.0.0:12503)")
	}
	if c.Yagna.StartupTimeoutSeconds <= 0 {
		return errors.New("yagna.startup_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateProvider() error {
	if !slices.Contains(PaymentNetworks, c.Provider.Network) {
		return fmt.Errorf("provider.network must be one of %s, got %q", strings.Join(PaymentNetworks, ", "), c.Provider.Network)
	}
	if _, err := time.ParseDuration(c.Provider.MinAgreementExpiration); err != nil {
		return fmt.Errorf("provider.min_agreement_expiration: %w", err)
	}
	prices := map[string]string{
		"provider.price.gpu_per_sec":      c.Provider.Price.GPUPerSec,
		"provider.price.duration_per_sec": c.Provider.Price.DurationPerSec,
		"provider.price.per_request":      c.Provider.Price.PerRequest,
		"provider.price.start_price":      c.Provider.Price.StartPrice,
	}
	keys := make([]string, 0, len(prices))
	for key := range prices {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if prices[key] == "" {
			continue
		}
		value, err := decimal.NewFromString(prices[key])
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if value.IsNegative() {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	return nil
}

func (c *Config) validateLifecycle() error {
	if err := ensurePositiveMap(map[string]int{
		"lifecycle.stop_grace_seconds":           c.Lifecycle.StopGraceSeconds,
		"lifecycle.error_stop_grace_millis":      c.Lifecycle.ErrorStopGraceMillis,
		"lifecycle.activity_reconnect_seconds":   c.Lifecycle.ActivityReconnectSeconds,
		"lifecycle.invoice_poll_timeout_seconds": c.Lifecycle.InvoicePollTimeoutSeconds,
		"lifecycle.invoice_http_retry_millis":    c.Lifecycle.InvoiceHTTPRetryMillis,
		"lifecycle.invoice_error_retry_seconds":  c.Lifecycle.InvoiceErrorRetrySeconds,
	}); err != nil {
		return err
	}
	if !c.Lifecycle.SuspendDetection {
		return nil
	}
	if c.Lifecycle.SuspendCheckSeconds <= 0 {
		return errors.New("lifecycle.suspend_check_seconds must be positive")
	}
	if c.Lifecycle.SuspendJumpSeconds <= c.Lifecycle.SuspendCheckSeconds {
		return errors.New("lifecycle.suspend_jump_seconds must be greater than lifecycle.suspend_check_seconds")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
