package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeYagna(); err != nil {
		return err
	}
	if err := c.normalizeProvider(); err != nil {
		return err
	}
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.BinariesDir, err = expandPath(strings.TrimSpace(c.Paths.BinariesDir)); err != nil {
		return fmt.Errorf("paths.binaries_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeYagna() error {
	c.Yagna.APIURL = strings.TrimRight(strings.TrimSpace(c.Yagna.APIURL), "/")
	if c.Yagna.APIURL == "" {
		c.Yagna.APIURL = defaultYagnaAPIURL
	}
	if strings.TrimSpace(c.Yagna.GSBURL) == "" {
		c.Yagna.GSBURL = defaultYagnaGSBURL
	}
	if strings.TrimSpace(c.Yagna.NetBindURL) == "" {
		c.Yagna.NetBindURL = defaultYagnaNetBindURL
	}
	c.Yagna.AppKey = strings.TrimSpace(c.Yagna.AppKey)
	if c.Yagna.AppKey == "" {
		if value, ok := os.LookupEnv("YAGNA_APPKEY"); ok {
			c.Yagna.AppKey = strings.TrimSpace(value)
		}
	}
	c.Yagna.PrivateKey = strings.TrimSpace(c.Yagna.PrivateKey)
	c.Yagna.RelayHost = strings.TrimSpace(c.Yagna.RelayHost)
	if c.Yagna.SSLCertFile != "" {
		var err error
		if c.Yagna.SSLCertFile, err = expandPath(strings.TrimSpace(c.Yagna.SSLCertFile)); err != nil {
			return fmt.Errorf("yagna.ssl_cert_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeProvider() error {
	c.Provider.Network = strings.ToLower(strings.TrimSpace(c.Provider.Network))
	if c.Provider.Network == "" {
		c.Provider.Network = defaultPaymentNetwork
	}
	c.Provider.MinAgreementExpiration = strings.TrimSpace(c.Provider.MinAgreementExpiration)
	if c.Provider.MinAgreementExpiration == "" {
		c.Provider.MinAgreementExpiration = defaultMinAgreementExpiration
	}
	c.Provider.Price.GPUPerSec = strings.TrimSpace(c.Provider.Price.GPUPerSec)
	c.Provider.Price.DurationPerSec = strings.TrimSpace(c.Provider.Price.DurationPerSec)
	c.Provider.Price.PerRequest = strings.TrimSpace(c.Provider.Price.PerRequest)
	c.Provider.Price.StartPrice = strings.TrimSpace(c.Provider.Price.StartPrice)
	if c.Provider.ExeUnitPath != "" {
		var err error
		if c.Provider.ExeUnitPath, err = expandPath(strings.TrimSpace(c.Provider.ExeUnitPath)); err != nil {
			return fmt.Errorf("provider.exe_unit_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeJournal() error {
	if strings.TrimSpace(c.Journal.Path) == "" {
		return nil
	}
	var err error
	if c.Journal.Path, err = expandPath(strings.TrimSpace(c.Journal.Path)); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("GOLEM_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
