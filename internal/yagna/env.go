package yagna

import (
	"slices"
	"strings"
)

// Default endpoints used when nothing else is configured.
const (
	DefaultGSBURL     = "tcp://127.0.0.1:11501"
	DefaultNetBindURL = "udp://0.0.0.0:12503"
)

// Named relay presets accepted in place of a host:port.
const (
	RelayPublic  = "public"
	RelayDevnet  = "devnet"
	RelayLocal   = "local"
	RelayCentral = "central"
)

// EnvBuilder assembles the environment shared by yagna, its CLI and
// ya-provider. The zero value is not usable; call NewEnvBuilder.
type EnvBuilder struct {
	vars map[string]string
}

// NewEnvBuilder returns a builder seeded with the daemon defaults.
func NewEnvBuilder() *EnvBuilder {
	return &EnvBuilder{vars: map[string]string{
		"GSB_URL":                  DefaultGSBURL,
		"YAGNA_API_URL":            DefaultAPIURL,
		"YA_PAYMENT_NETWORK_GROUP": "testnet",
		"YA_NET_BIND_URL":          DefaultNetBindURL,
	}}
}

func (b *EnvBuilder) set(key, value string) *EnvBuilder {
	if value = strings.TrimSpace(value); value != "" {
		b.vars[key] = value
	}
	return b
}

func (b *EnvBuilder) WithGSBURL(v string) *EnvBuilder       { return b.set("GSB_URL", v) }
func (b *EnvBuilder) WithAPIURL(v string) *EnvBuilder       { return b.set("YAGNA_API_URL", v) }
func (b *EnvBuilder) WithNetBindURL(v string) *EnvBuilder   { return b.set("YA_NET_BIND_URL", v) }
func (b *EnvBuilder) WithExeUnitPath(v string) *EnvBuilder  { return b.set("EXE_UNIT_PATH", v) }
func (b *EnvBuilder) WithDataDir(v string) *EnvBuilder      { return b.set("DATA_DIR", v) }
func (b *EnvBuilder) WithYagnaDataDir(v string) *EnvBuilder { return b.set("YAGNA_DATADIR", v) }
func (b *EnvBuilder) WithPrivateKey(v string) *EnvBuilder {
	return b.set("YAGNA_AUTOCONF_ID_SECRET", v)
}
func (b *EnvBuilder) WithAppKey(v string) *EnvBuilder      { return b.set("YAGNA_AUTOCONF_APPKEY", v) }
func (b *EnvBuilder) WithSSLCertFile(v string) *EnvBuilder { return b.set("SSL_CERT_FILE", v) }

// WithPaymentNetworkGroup selects "mainnet" or "testnet".
func (b *EnvBuilder) WithPaymentNetworkGroup(v string) *EnvBuilder {
	return b.set("YA_PAYMENT_NETWORK_GROUP", v)
}

// WithRelay configures the network relay. relay is either a preset name or a
// host:port.
func (b *EnvBuilder) WithRelay(relay string) *EnvBuilder {
	relay = strings.TrimSpace(relay)
	switch strings.ToLower(relay) {
	case "":
		return b
	case RelayPublic:
		b.vars["YA_NET_TYPE"] = "hybrid"
		b.vars["YA_NET_RELAY_HOST"] = "yacn2.dev.golem.network:7477"
	case RelayDevnet:
		b.vars["YA_NET_TYPE"] = "hybrid"
		b.vars["YA_NET_RELAY_HOST"] = "yacn2a.dev.golem.network:7477"
	case RelayLocal:
		b.vars["YA_NET_TYPE"] = "hybrid"
		b.vars["YA_NET_RELAY_HOST"] = "127.0.0.1:16464"
		b.vars["MEAN_CYCLIC_BCAST_INTERVAL"] = "3s"
	case RelayCentral:
		b.vars["YA_NET_TYPE"] = "central"
		delete(b.vars, "YA_NET_RELAY_HOST")
	default:
		b.vars["YA_NET_TYPE"] = "hybrid"
		b.vars["YA_NET_RELAY_HOST"] = relay
	}
	return b
}

// Get returns the value of key.
func (b *EnvBuilder) Get(key string) (string, bool) {
	v, ok := b.vars[key]
	return v, ok
}

// Build returns KEY=VALUE pairs sorted by key.
func (b *EnvBuilder) Build() []string {
	keys := make([]string, 0, len(b.vars))
	for k := range b.vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+b.vars[k])
	}
	return out
}
