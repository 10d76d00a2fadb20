package deps

import (
	"fmt"
	"path/filepath"

	"golemfacade/internal/config"
)

// GolemRequirements lists what the facade needs to run a provider node: the
// two daemon binaries and, optionally, exe-unit descriptors.
func GolemRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "yagna",
			Command:     cfg.YagnaBinary(),
			Description: "Network and payment daemon",
		},
		{
			Name:        "ya-provider",
			Command:     cfg.ProviderBinary(),
			Description: "Provider agent that sells compute",
		},
		{
			Name:        "Exe units",
			Command:     cfg.Provider.ExeUnitPath,
			Description: "Runtime descriptors offered to requestors",
			Optional:    true,
			Probe:       probeDescriptors,
		},
	}
}

// probeDescriptors reports whether the exe-unit glob handed to ya-provider
// matches any file. An empty pattern leaves discovery to ya-provider.
func probeDescriptors(pattern string) (bool, string) {
	if pattern == "" {
		return true, "using ya-provider default"
	}
	matches, err := filepath.Glob(pattern)
	switch {
	case err != nil:
		return false, fmt.Sprintf("invalid pattern: %v", err)
	case len(matches) == 0:
		return false, "no descriptors match"
	}
	return true, fmt.Sprintf("%d descriptor(s)", len(matches))
}
