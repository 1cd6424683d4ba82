package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Places is the precision every cost is rounded to.
const Places = 4

var (
	ErrInvalidRates      = errors.New("pricing: invalid rates")
	ErrInvalidPricingReq = errors.New("pricing: invalid request")
)

var (
	sixty       = decimal.NewFromInt(60)
	oneThousand = decimal.NewFromInt(1000)
	oneMillion  = decimal.NewFromInt(1_000_000)
)

// Service costs calls against a fixed rate card.
//
// Contract:
// - Pure calculation, no I/O.
// - Decimal arithmetic end to end; rounding is half away from zero.
// - Each item is rounded before the total is summed.
type Service struct {
	rates Rates
}

func NewService(rates Rates) (*Service, error) {
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	return &Service{rates: rates}, nil
}

func (s *Service) Rates() Rates { return s.rates }

// Validate rejects negative rates. Zero is allowed for resources that are free.
func (r Rates) Validate() error {
	for _, d := range []decimal.Decimal{r.STTPerMinute, r.LLMInputPerMillion, r.LLMOutputPerMillion, r.TTSPerThousandChars, r.TelephonyPerMinute} {
		if d.IsNegative() {
			return ErrInvalidRates
		}
	}
	return nil
}

// CalculateCallCost returns the itemized cost of a call.
func (s *Service) CalculateCallCost(u CallUsage) (Breakdown, error) {
	if u.DurationSeconds < 0 || u.InputTokens < 0 || u.OutputTokens < 0 || u.TTSCharacters < 0 {
		return Breakdown{}, ErrInvalidPricingReq
	}
	return Calculate(s.rates, u), nil
}

// Calculate is the rate formula without input validation.
func Calculate(r Rates, u CallUsage) Breakdown {
	minutes := decimal.NewFromInt(int64(u.DurationSeconds)).Div(sixty)

	stt := minutes.Mul(r.STTPerMinute).Round(Places)
	llm := decimal.NewFromInt(int64(u.InputTokens)).Div(oneMillion).Mul(r.LLMInputPerMillion).
		Add(decimal.NewFromInt(int64(u.OutputTokens)).Div(oneMillion).Mul(r.LLMOutputPerMillion)).
		Round(Places)
	tts := decimal.NewFromInt(int64(u.TTSCharacters)).Div(oneThousand).Mul(r.TTSPerThousandChars).Round(Places)
	tel := minutes.Mul(r.TelephonyPerMinute).Round(Places)

	return Breakdown{
		STT:       stt,
		LLM:       llm,
		TTS:       tts,
		Telephony: tel,
		Total:     stt.Add(llm).Add(tts).Add(tel).Round(Places),
	}
}
