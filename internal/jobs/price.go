package jobs

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"golemfacade/internal/services"
	"golemfacade/internal/yagna"
)

const (
	// operandDigits is the precision of a float64 operand once the provider
	// daemon renders it as a decimal.
	operandDigits = 16
	// amountPlaces is the GLM token's decimal precision.
	amountPlaces = 18
)

// Price holds the linear pricing coefficients of an agreement. Start is a
// fixed fee charged once per job; the remaining fields are per-unit rates.
type Price struct {
	Start    decimal.Decimal `json:"start"`
	GPU      decimal.Decimal `json:"gpu_sec"`
	Duration decimal.Decimal `json:"duration_sec"`
	Requests decimal.Decimal `json:"requests"`
}

// Usage holds accumulated usage counters in the same shape as Price. Start
// is always one: the fixed fee applies once.
type Usage struct {
	Start    decimal.Decimal `json:"start"`
	GPU      decimal.Decimal `json:"gpu_sec"`
	Duration decimal.Decimal `json:"duration_sec"`
	Requests decimal.Decimal `json:"requests"`
}

// NewUsage returns usage with the start counter set and all rates zero.
func NewUsage() Usage {
	return Usage{Start: decimal.NewFromInt(1)}
}

// UsageFromCounters maps named usage counters from the activity monitor onto
// a Usage. Missing counters are zero.
func UsageFromCounters(counters map[string]decimal.Decimal) Usage {
	usage := NewUsage()
	usage.GPU = counters[yagna.CounterGPUSec]
	usage.Duration = counters[yagna.CounterDurationSec]
	usage.Requests = counters[yagna.CounterRequests]
	return usage
}

// UsageFromVector maps a positional usage vector using the counter names
// published in the agreement.
func UsageFromVector(names []string, values []decimal.Decimal) Usage {
	counters := make(map[string]decimal.Decimal, len(names))
	for i, name := range names {
		if i < len(values) {
			counters[name] = values[i]
		}
	}
	return UsageFromCounters(counters)
}

// Reward computes start + Σ rate×quantity the way the provider daemon
// invoices it: every operand passes through float64 and is read back with
// sixteen significant digits, the products are summed exactly and the total
// is rounded half away from zero to the token's eighteen decimal places.
func (u Usage) Reward(p Price) decimal.Decimal {
	total := asOperand(p.Start)
	total = total.Add(asOperand(p.GPU).Mul(asOperand(u.GPU)))
	total = total.Add(asOperand(p.Duration).Mul(asOperand(u.Duration)))
	total = total.Add(asOperand(p.Requests).Mul(asOperand(u.Requests)))
	return total.Round(amountPlaces)
}

// merge keeps the larger value of every counter so replayed or reordered
// monitor messages never move usage backwards.
func (u Usage) merge(other Usage) Usage {
	return Usage{
		Start:    decimal.Max(u.Start, other.Start),
		GPU:      decimal.Max(u.GPU, other.GPU),
		Duration: decimal.Max(u.Duration, other.Duration),
		Requests: decimal.Max(u.Requests, other.Requests),
	}
}

// Equal reports whether both usages hold the same counter values.
func (u Usage) Equal(other Usage) bool {
	return u.Start.Equal(other.Start) &&
		u.GPU.Equal(other.GPU) &&
		u.Duration.Equal(other.Duration) &&
		u.Requests.Equal(other.Requests)
}

// Equal reports whether both prices hold the same coefficients.
func (p Price) Equal(other Price) bool {
	return p.Start.Equal(other.Start) &&
		p.GPU.Equal(other.GPU) &&
		p.Duration.Equal(other.Duration) &&
		p.Requests.Equal(other.Requests)
}

func asOperand(d decimal.Decimal) decimal.Decimal {
	f, _ := d.Float64()
	out, err := decimal.NewFromString(strconv.FormatFloat(f, 'e', operandDigits-1, 64))
	if err != nil {
		return d
	}
	return out
}

// PriceFromAgreement derives the job price from the offer's usage vector and
// linear coefficients. The coefficient list carries one entry per counter
// plus the start price in last position.
func PriceFromAgreement(agreement *yagna.Agreement) (Price, error) {
	if agreement == nil {
		return Price{}, services.Wrap(services.ErrIncompleteAgreement, "jobs", "price", "agreement missing", nil)
	}
	names, err := agreement.Offer.UsageVector()
	if err != nil {
		return Price{}, services.Wrap(services.ErrIncompleteAgreement, "jobs", "price", agreement.AgreementID, err)
	}
	coeffs, err := agreement.Offer.LinearCoeffs()
	if err != nil {
		return Price{}, services.Wrap(services.ErrIncompleteAgreement, "jobs", "price", agreement.AgreementID, err)
	}
	if len(coeffs) != len(names)+1 {
		return Price{}, services.Wrap(
			services.ErrIncompleteAgreement,
			"jobs",
			"price",
			fmt.Sprintf("agreement %s has %d coefficients for %d counters", agreement.AgreementID, len(coeffs), len(names)),
			nil,
		)
	}

	price := Price{Start: coeffs[len(coeffs)-1]}
	for i, name := range names {
		switch name {
		case yagna.CounterGPUSec:
			price.GPU = coeffs[i]
		case yagna.CounterDurationSec:
			price.Duration = coeffs[i]
		case yagna.CounterRequests:
			price.Requests = coeffs[i]
		}
	}
	return price, nil
}
