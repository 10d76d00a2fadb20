package daemonrun

import (
	"slices"
	"testing"

	"golemfacade/internal/golem"
	"golemfacade/internal/logging"
	"golemfacade/internal/testsupport"
)

func TestDaemonEnvSharesDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAppKey("forced-key"))
	cfg.Provider.Network = "polygon"
	cfg.Provider.ExeUnitPath = "/opt/golem/exe-units/*.json"

	env := daemonEnv(cfg)
	for _, want := range []string{
		"YAGNA_DATADIR=" + cfg.YagnaDataDir(),
		"DATA_DIR=" + cfg.ProviderDataDir(),
		"EXE_UNIT_PATH=/opt/golem/exe-units/*.json",
		"YAGNA_AUTOCONF_APPKEY=forced-key",
		"YA_PAYMENT_NETWORK_GROUP=mainnet",
	} {
		if !slices.Contains(env, want) {
			t.Fatalf("env missing %q: %v", want, env)
		}
	}
}

func TestNetworkGroup(t *testing.T) {
	cases := map[string]string{
		"mainnet": "mainnet",
		"Polygon": "mainnet",
		"holesky": "testnet",
		"":        "testnet",
	}
	for network, want := range cases {
		if got := networkGroup(network); got != want {
			t.Fatalf("networkGroup(%q) = %q, want %q", network, got, want)
		}
	}
}

func TestBuildGolemRejectsBadPrice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Provider.Price.GPUPerSec = "not-a-number"
	if _, err := buildGolem(cfg, logging.NewNop(), false); err == nil {
		t.Fatal("expected invalid price to fail")
	}

	cfg.Provider.Price.GPUPerSec = "0.0001"
	g, err := buildGolem(cfg, logging.NewNop(), false)
	if err != nil {
		t.Fatalf("buildGolem: %v", err)
	}
	defer g.Close()
	if got := g.Status(); got != golem.StatusOff {
		t.Fatalf("new golem status = %q", got)
	}
}
