package config

const (
	defaultConfigPath                = "~/.config/golemfacade/config.toml"
	defaultDataDir                   = "~/.local/share/golemfacade"
	defaultLogDir                    = "~/.local/share/golemfacade/logs"
	defaultLogRetentionDays          = 30
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultAPIBind                   = "127.0.0.1:7488"
	defaultYagnaAPIURL               = "http://127.0.0.1:11502"
	defaultYagnaGSBURL               = "tcp://127.0.0.1:11501"
	defaultYagnaNetBindURL           = "udp://0.0.0.0:12503"
	defaultYagnaStartupTimeout       = 30
	defaultPaymentNetwork            = "holesky"
	defaultMinAgreementExpiration    = "30s"
	defaultStopGraceSeconds          = 30
	defaultErrorStopGraceMillis      = 500
	defaultActivityReconnectSeconds  = 10
	defaultInvoicePollTimeoutSeconds = 10
	defaultInvoiceHTTPRetryMillis    = 1000
	defaultInvoiceErrorRetrySeconds  = 5
	defaultSuspendCheckSeconds       = 5
	defaultSuspendJumpSeconds        = 30
	defaultNotifyRequestTimeout      = 10
	defaultNotifyDedupWindowSeconds  = 600
)

// PaymentNetworks lists the payment networks ya-provider accepts.
var PaymentNetworks = []string{"mainnet", "polygon", "holesky", "goerli", "mumbai", "rinkeby"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Yagna: Yagna{
			APIURL:                defaultYagnaAPIURL,
			GSBURL:                defaultYagnaGSBURL,
			NetBindURL:            defaultYagnaNetBindURL,
			StartupTimeoutSeconds: defaultYagnaStartupTimeout,
		},
		Provider: Provider{
			Network:                defaultPaymentNetwork,
			MinAgreementExpiration: defaultMinAgreementExpiration,
			InitPresets:            true,
		},
		Lifecycle: Lifecycle{
			StopGraceSeconds:          defaultStopGraceSeconds,
			ErrorStopGraceMillis:      defaultErrorStopGraceMillis,
			ActivityReconnectSeconds:  defaultActivityReconnectSeconds,
			InvoicePollTimeoutSeconds: defaultInvoicePollTimeoutSeconds,
			InvoiceHTTPRetryMillis:    defaultInvoiceHTTPRetryMillis,
			InvoiceErrorRetrySeconds:  defaultInvoiceErrorRetrySeconds,
			OrphanCleanup:             true,
			SuspendDetection:          true,
			SuspendCheckSeconds:       defaultSuspendCheckSeconds,
			SuspendJumpSeconds:        defaultSuspendJumpSeconds,
		},
		Journal: Journal{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			Errors:             true,
			JobFinished:        true,
			PaymentSettled:     true,
			DedupWindowSeconds: defaultNotifyDedupWindowSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
