package credit

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestConvertPrecision(t *testing.T) {
	cases := []struct {
		name     string
		amount   int64
		from, to uint8
		want     string
	}{
		{"widen", 1_500000, 6, 18, "1500000000000000000"},
		{"narrow truncates", 1_999999_999999, 12, 6, "1999999"},
		{"same", 42, 9, 9, "42"},
		{"narrow to zero", 999, 6, 0, "0"},
	}
	for _, tc := range cases {
		got := ConvertPrecision(big.NewInt(tc.amount), tc.from, tc.to)
		if got.String() != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
	if got := ConvertPrecision(nil, 6, 18); got.Sign() != 0 {
		t.Fatalf("nil amount: got %s", got)
	}
}

func TestRoundTripNeverGainsValue(t *testing.T) {
	desc := AssetDescriptor{Asset: assetA, Precision: 18, Mode: PriceModeOracle, OracleRef: "ETH/USD"}
	quote := Quote{Price: big.NewInt(3_33333333), Decimals: 8, UpdatedAt: testNow.Unix(), RoundComplete: true}
	amounts := []string{"1", "999", "1000000000000000000", "123456789123456789123", "7"}
	for _, raw := range amounts {
		amount, _ := new(big.Int).SetString(raw, 10)
		credits := creditValueAt(desc, quote, amount)
		back := assetValueAt(desc, quote, credits)
		if back.Cmp(amount) > 0 {
			t.Fatalf("round trip gained value: %s -> %s -> %s", amount, credits, back)
		}
	}
}

func TestQuoteStableNeedsNoOracle(t *testing.T) {
	pricing := NewPriceSource(nil, time.Hour)
	pricing.SetClock(func() time.Time { return testNow })
	quote, err := pricing.Quote(AssetDescriptor{Asset: assetA, Precision: 6, Mode: PriceModeStable})
	if err != nil {
		t.Fatalf("stable quote: %v", err)
	}
	if quote.Price.Cmp(big.NewInt(1)) != 0 || quote.Decimals != 0 {
		t.Fatalf("unexpected stable quote %+v", quote)
	}
}

func TestQuoteValidation(t *testing.T) {
	orc := newStubOracle()
	pricing := NewPriceSource(orc, time.Hour)
	pricing.SetClock(func() time.Time { return testNow })
	desc := AssetDescriptor{Asset: assetA, Precision: 18, Mode: PriceModeOracle, OracleRef: "ETH/USD"}

	if _, err := pricing.Quote(desc); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("missing feed: %v", err)
	}

	orc.quotes["ETH/USD"] = Quote{Price: big.NewInt(0), Decimals: 8, UpdatedAt: testNow.Unix(), RoundComplete: true}
	if _, err := pricing.Quote(desc); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero price: %v", err)
	}

	orc.quotes["ETH/USD"] = Quote{Price: big.NewInt(100), Decimals: 8, UpdatedAt: 0, RoundComplete: true}
	if _, err := pricing.Quote(desc); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero timestamp: %v", err)
	}

	orc.quotes["ETH/USD"] = Quote{Price: big.NewInt(100), Decimals: 8, UpdatedAt: testNow.Unix(), RoundComplete: false}
	if _, err := pricing.Quote(desc); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("incomplete round: %v", err)
	}

	orc.set("ETH/USD", big.NewInt(100), 8, testNow.Add(-61*time.Minute).Unix())
	if _, err := pricing.Quote(desc); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("stale: %v", err)
	}

	orc.set("ETH/USD", big.NewInt(100), 8, testNow.Add(-59*time.Minute).Unix())
	if _, err := pricing.Quote(desc); err != nil {
		t.Fatalf("fresh quote rejected: %v", err)
	}
}
