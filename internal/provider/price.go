package provider

import (
	"github.com/shopspring/decimal"

	"golemfacade/internal/config"
	"golemfacade/internal/jobs"
	"golemfacade/internal/services"
)

// PriceFromConfig parses the configured offer price. Components left empty
// are zero. The boolean is false when no component is configured.
func PriceFromConfig(cfg config.ProviderPrice) (jobs.Price, bool, error) {
	if !cfg.Configured() {
		return jobs.Price{}, false, nil
	}
	var price jobs.Price
	fields := []struct {
		raw    string
		target *decimal.Decimal
	}{
		{cfg.GPUPerSec, &price.GPU},
		{cfg.DurationPerSec, &price.Duration},
		{cfg.PerRequest, &price.Requests},
		{cfg.StartPrice, &price.Start},
	}
	for _, field := range fields {
		if field.raw == "" {
			continue
		}
		value, err := decimal.NewFromString(field.raw)
		if err != nil {
			return jobs.Price{}, false, services.Wrap(services.ErrConfiguration, "provider", "price", field.raw, err)
		}
		*field.target = value
	}
	return price, true, nil
}
