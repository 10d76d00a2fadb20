package daemonrun

import (
	"fmt"
	"log/slog"
	"strings"

	"golemfacade/internal/clock"
	"golemfacade/internal/config"
	"golemfacade/internal/golem"
	"golemfacade/internal/power"
	"golemfacade/internal/procexec"
	"golemfacade/internal/provider"
	"golemfacade/internal/yagna"
)

// daemonEnv is the environment shared by yagna, its CLI and ya-provider so
// all of them reach the same daemon instance and data directories.
func daemonEnv(cfg *config.Config) []string {
	return yagna.NewEnvBuilder().
		WithAPIURL(cfg.Yagna.APIURL).
		WithGSBURL(cfg.Yagna.GSBURL).
		WithNetBindURL(cfg.Yagna.NetBindURL).
		WithAppKey(cfg.Yagna.AppKey).
		WithPrivateKey(cfg.Yagna.PrivateKey).
		WithSSLCertFile(cfg.Yagna.SSLCertFile).
		WithRelay(cfg.Yagna.RelayHost).
		WithYagnaDataDir(cfg.YagnaDataDir()).
		WithDataDir(cfg.ProviderDataDir()).
		WithExeUnitPath(cfg.Provider.ExeUnitPath).
		WithPaymentNetworkGroup(networkGroup(cfg.Provider.Network)).
		Build()
}

func networkGroup(network string) string {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "mainnet", "polygon":
		return "mainnet"
	default:
		return "testnet"
	}
}

// buildGolem wires the facade to the real daemons.
func buildGolem(cfg *config.Config, logger *slog.Logger, unclean bool) (*golem.Golem, error) {
	clk := clock.Real()
	env := daemonEnv(cfg)
	launcher := procexec.NewExecLauncher(logger, clk)
	executor := procexec.CommandExecutor{}

	yagnaSvc := yagna.NewService(yagna.ServiceOptions{
		Binary: cfg.YagnaBinary(),
		Env:    env,
		Debug:  cfg.Yagna.Debug,
		Dir:    cfg.YagnaDataDir(),
	}, launcher, clk, logger)
	providerSvc := provider.NewService(provider.ServiceOptions{
		Binary:                 cfg.ProviderBinary(),
		Env:                    env,
		Network:                cfg.Provider.Network,
		Debug:                  cfg.Provider.Debug,
		MinAgreementExpiration: cfg.Provider.MinAgreementExpiration,
		Dir:                    cfg.ProviderDataDir(),
	}, launcher, logger)

	var clientOpts []yagna.Option
	if key := strings.TrimSpace(cfg.Yagna.AppKey); key != "" {
		clientOpts = append(clientOpts, yagna.WithAppKey(key))
	}
	client := yagna.NewClient(cfg.Yagna.APIURL, logger, clientOpts...)

	deps := golem.Deps{
		Yagna:           yagnaSvc,
		Provider:        providerSvc,
		API:             client,
		Keys:            yagna.NewCLI(cfg.YagnaBinary(), env, executor, clk, logger),
		Presets:         provider.NewCLI(cfg.ProviderBinary(), env, executor, logger),
		Clock:           clk,
		Logger:          logger,
		UncleanShutdown: unclean,
	}
	price, ok, err := provider.PriceFromConfig(cfg.Provider.Price)
	if err != nil {
		return nil, fmt.Errorf("provider price: %w", err)
	}
	if ok {
		deps.Price = &price
	}
	if cfg.Lifecycle.SuspendDetection {
		deps.Power = power.NewWatcher(clk, cfg.SuspendCheckInterval(), cfg.SuspendJumpThreshold(), logger)
	}
	return golem.New(cfg, deps), nil
}
