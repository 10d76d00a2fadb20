package testsupport

import (
	"time"

	"golemfacade/internal/yagna"
)

// AgreementPrice lists offer coefficients in the order the provider
// publishes them.
type AgreementPrice struct {
	GPU      float64
	Duration float64
	Requests float64
	Start    float64
}

// NewAgreement builds an approved agreement whose offer prices the three
// standard counters.
func NewAgreement(id, requestorID string, price AgreementPrice) *yagna.Agreement {
	return &yagna.Agreement{
		AgreementID: id,
		State:       yagna.AgreementApproved,
		Timestamp:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Demand: yagna.AgreementDemand{
			RequestorID: requestorID,
		},
		Offer: yagna.AgreementOffer{
			ProviderID: "0xprovider",
			Properties: map[string]any{
				yagna.PropertyUsageVector: []any{
					yagna.CounterGPUSec,
					yagna.CounterDurationSec,
					yagna.CounterRequests,
				},
				yagna.PropertyLinearCoeffs: []any{
					price.GPU,
					price.Duration,
					price.Requests,
					price.Start,
				},
			},
		},
	}
}
