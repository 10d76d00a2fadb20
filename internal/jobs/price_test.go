package jobs_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"golemfacade/internal/jobs"
	"golemfacade/internal/services"
	"golemfacade/internal/testsupport"
	"golemfacade/internal/yagna"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func TestRewardCases(t *testing.T) {
	cases := []struct {
		name  string
		usage jobs.Usage
		price jobs.Price
		want  string
	}{
		{
			name:  "start fee counted once",
			usage: jobs.Usage{Start: dec(t, "1"), GPU: dec(t, "2"), Duration: dec(t, "1")},
			price: jobs.Price{Start: dec(t, "1"), GPU: dec(t, "2"), Duration: dec(t, "3")},
			want:  "8",
		},
		{
			name:  "happy path",
			usage: jobs.Usage{Start: dec(t, "0.333"), Duration: dec(t, "0.123"), GPU: dec(t, "0.234")},
			price: jobs.Price{Start: dec(t, "0.444"), Duration: dec(t, "0.321"), GPU: dec(t, "0.432"), Requests: dec(t, "12")},
			want:  "0.584571",
		},
		{
			name:  "sub wei price digits dropped",
			usage: jobs.Usage{Start: dec(t, "0.333"), Duration: dec(t, "0.123"), GPU: dec(t, "0.234")},
			price: jobs.Price{
				Start:    dec(t, "0.444000000000000001"),
				Duration: dec(t, "0.321000000000000001"),
				GPU:      dec(t, "0.432000000000000001"),
				Requests: dec(t, "12"),
			},
			want: "0.584571",
		},
		{
			name:  "non representable binary values",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "44.017951"), GPU: dec(t, "103.002864998")},
			price: jobs.Price{Duration: dec(t, "0.0001"), GPU: dec(t, "0.00005")},
			want:  "0.0095519383499",
		},
		{
			name:  "small product",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "24.141030488")},
			price: jobs.Price{Duration: dec(t, "0.002"), GPU: dec(t, "0.008")},
			want:  "0.048282060976",
		},
		{
			name:  "large product",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "44.094619588")},
			price: jobs.Price{Duration: dec(t, "0.002"), GPU: dec(t, "0.008")},
			want:  "0.088189239176",
		},
		{
			name:  "float operands carried to wei precision",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "959.0184787"), GPU: dec(t, "0.4584724"), Requests: dec(t, "62")},
			price: jobs.Price{Start: dec(t, "0.0007"), Duration: dec(t, "0.0003"), GPU: dec(t, "0.0005")},
			want:  "0.28863477980999997",
		},
		{
			name:  "requests priced at zero",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "538.8576082"), GPU: dec(t, "8.7264478"), Requests: dec(t, "27")},
			price: jobs.Price{Start: dec(t, "0.0002"), Duration: dec(t, "0.0004"), GPU: dec(t, "0.0003")},
			want:  "0.21836097762",
		},
		{
			name:  "sixteen digit usage",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "9.119924900000001")},
			price: jobs.Price{Start: dec(t, "0.0002"), Duration: dec(t, "0.0004"), GPU: dec(t, "0.0003")},
			want:  "0.00384796996",
		},
		{
			name:  "duration only",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "9.1072277")},
			price: jobs.Price{Start: dec(t, "0.0002"), Duration: dec(t, "0.0004"), GPU: dec(t, "0.0003")},
			want:  "0.00384289108",
		},
		{
			name:  "half wei rounds away from zero",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "474.6873272"), GPU: dec(t, "9.761029"), Requests: dec(t, "31")},
			price: jobs.Price{Duration: dec(t, "0.0003"), GPU: dec(t, "0.0005")},
			want:  "0.147286712660000001",
		},
		{
			name:  "float usage rendering adds wei",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "66.5695986")},
			price: jobs.Price{Duration: dec(t, "0.00025"), GPU: dec(t, "0.00025")},
			want:  "0.016642399650000003",
		},
		{
			name:  "gpu and duration at equal rates",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "41.4281323"), GPU: dec(t, "9.8315089"), Requests: dec(t, "1")},
			price: jobs.Price{Duration: dec(t, "0.00025"), GPU: dec(t, "0.00025")},
			want:  "0.0128149103",
		},
		{
			name:  "exact quarter rate",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "9.132793")},
			price: jobs.Price{Duration: dec(t, "0.00025"), GPU: dec(t, "0.00025")},
			want:  "0.00228319825",
		},
		{
			name:  "float rate rendering drops wei",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "88.9031127")},
			price: jobs.Price{Duration: dec(t, "0.00025"), GPU: dec(t, "0.00025")},
			want:  "0.022225778174999998",
		},
		{
			name:  "tenths accumulate exactly",
			usage: jobs.Usage{Start: dec(t, "1"), Duration: dec(t, "1"), GPU: dec(t, "1")},
			price: jobs.Price{Duration: dec(t, "0.1"), GPU: dec(t, "0.2")},
			want:  "0.3",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.usage.Reward(tc.price)
			if !got.Equal(dec(t, tc.want)) {
				t.Fatalf("Reward = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestUsageFromCountersDefaultsMissingToZero(t *testing.T) {
	usage := jobs.UsageFromCounters(map[string]decimal.Decimal{
		yagna.CounterGPUSec: dec(t, "12.5"),
	})
	if !usage.Start.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("start = %s, want 1", usage.Start)
	}
	if !usage.GPU.Equal(dec(t, "12.5")) {
		t.Fatalf("gpu = %s", usage.GPU)
	}
	if !usage.Duration.IsZero() || !usage.Requests.IsZero() {
		t.Fatalf("expected zero duration and requests, got %+v", usage)
	}
}

func TestUsageFromVectorFollowsAgreementOrder(t *testing.T) {
	names := []string{yagna.CounterRequests, yagna.CounterDurationSec}
	usage := jobs.UsageFromVector(names, []decimal.Decimal{dec(t, "4"), dec(t, "90")})
	if !usage.Requests.Equal(dec(t, "4")) || !usage.Duration.Equal(dec(t, "90")) {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if !usage.GPU.IsZero() {
		t.Fatalf("gpu = %s, want 0", usage.GPU)
	}
}

func TestPriceFromAgreement(t *testing.T) {
	agreement := testsupport.NewAgreement("A1", "0xrequestor", testsupport.AgreementPrice{
		GPU: 2, Duration: 3, Requests: 0, Start: 1,
	})
	price, err := jobs.PriceFromAgreement(agreement)
	if err != nil {
		t.Fatalf("PriceFromAgreement: %v", err)
	}
	want := jobs.Price{Start: dec(t, "1"), GPU: dec(t, "2"), Duration: dec(t, "3"), Requests: decimal.Zero}
	if !price.Equal(want) {
		t.Fatalf("price = %+v, want %+v", price, want)
	}
}

func TestPriceFromAgreementNestedProperties(t *testing.T) {
	agreement := &yagna.Agreement{
		AgreementID: "nested",
		Offer: yagna.AgreementOffer{Properties: map[string]any{
			"golem": map[string]any{
				"com": map[string]any{
					"usage": map[string]any{"vector": []any{yagna.CounterDurationSec}},
					"pricing": map[string]any{"model": map[string]any{"linear": map[string]any{
						"coeffs": []any{"0.5", "0.25"},
					}}},
				},
			},
		}},
	}
	price, err := jobs.PriceFromAgreement(agreement)
	if err != nil {
		t.Fatalf("PriceFromAgreement: %v", err)
	}
	if !price.Duration.Equal(dec(t, "0.5")) || !price.Start.Equal(dec(t, "0.25")) {
		t.Fatalf("unexpected price %+v", price)
	}
}

func TestPriceFromAgreementIncomplete(t *testing.T) {
	agreement := testsupport.NewAgreement("A2", "0xrequestor", testsupport.AgreementPrice{})
	delete(agreement.Offer.Properties, yagna.PropertyLinearCoeffs)
	if _, err := jobs.PriceFromAgreement(agreement); !errors.Is(err, services.ErrIncompleteAgreement) {
		t.Fatalf("expected ErrIncompleteAgreement, got %v", err)
	}

	short := testsupport.NewAgreement("A3", "0xrequestor", testsupport.AgreementPrice{})
	short.Offer.Properties[yagna.PropertyLinearCoeffs] = []any{1.0}
	if _, err := jobs.PriceFromAgreement(short); !errors.Is(err, services.ErrIncompleteAgreement) {
		t.Fatalf("expected ErrIncompleteAgreement for short coeffs, got %v", err)
	}
}
