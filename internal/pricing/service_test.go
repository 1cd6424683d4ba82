package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func TestCalculateCallCost_DefaultRatesExample(t *testing.T) {
	svc, err := NewService(DefaultRates())
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	got, err := svc.CalculateCallCost(CallUsage{DurationSeconds: 120, InputTokens: 1000, OutputTokens: 500, TTSCharacters: 800})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	cases := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"stt", got.STT, "0.0086"},
		// 0.00045 rounded half away from zero at 4 places.
		{"llm", got.LLM, "0.0005"},
		{"tts", got.TTS, "0.024"},
		{"telephony", got.Telephony, "0.014"},
		{"total", got.Total, "0.0471"},
	}
	for _, tc := range cases {
		if !tc.got.Equal(mustDec(t, tc.want)) {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, tc.got)
		}
	}
}

func TestCalculateCallCost_ZeroUsage(t *testing.T) {
	got := Calculate(DefaultRates(), CallUsage{})
	if !got.Total.IsZero() {
		t.Fatalf("expected zero total, got %s", got.Total)
	}
}

func TestCalculateCallCost_ItemsRoundedBeforeSum(t *testing.T) {
	r := Rates{
		STTPerMinute:       mustDec(t, "0.00004"),
		TelephonyPerMinute: mustDec(t, "0.00004"),
	}
	// Each item is 0.00004 -> rounds to 0; unrounded sum would round to 0.0001.
	got := Calculate(r, CallUsage{DurationSeconds: 60})
	if !got.Total.IsZero() {
		t.Fatalf("expected items rounded before summing, got %s", got.Total)
	}
}

func TestCalculateCallCost_InjectedRates(t *testing.T) {
	r := DefaultRates()
	r.TelephonyPerMinute = mustDec(t, "0.01")
	got := Calculate(r, CallUsage{DurationSeconds: 90})
	if !got.Telephony.Equal(mustDec(t, "0.015")) {
		t.Fatalf("expected 0.015, got %s", got.Telephony)
	}
}

func TestCalculateCallCost_RejectsNegativeUsage(t *testing.T) {
	svc, _ := NewService(DefaultRates())
	if _, err := svc.CalculateCallCost(CallUsage{DurationSeconds: -1}); err != ErrInvalidPricingReq {
		t.Fatalf("expected ErrInvalidPricingReq, got %v", err)
	}
}

func TestNewService_RejectsNegativeRates(t *testing.T) {
	r := DefaultRates()
	r.STTPerMinute = mustDec(t, "-1")
	if _, err := NewService(r); err != ErrInvalidRates {
		t.Fatalf("expected ErrInvalidRates, got %v", err)
	}
}
