package pricing

import "github.com/shopspring/decimal"

// Rates are the per-resource prices used to cost a finished call.
// All amounts are in account currency.
type Rates struct {
	// STTPerMinute is the speech-recognition price per minute of call audio.
	STTPerMinute decimal.Decimal `json:"stt_per_minute"`

	// LLMInputPerMillion and LLMOutputPerMillion are language-model prices per million tokens.
	LLMInputPerMillion  decimal.Decimal `json:"llm_input_per_million"`
	LLMOutputPerMillion decimal.Decimal `json:"llm_output_per_million"`

	// TTSPerThousandChars is the speech-synthesis price per 1000 characters.
	TTSPerThousandChars decimal.Decimal `json:"tts_per_thousand_chars"`

	// TelephonyPerMinute is the carrier price per minute.
	TelephonyPerMinute decimal.Decimal `json:"telephony_per_minute"`
}

// DefaultRates are the list prices the service ships with.
func DefaultRates() Rates {
	return Rates{
		STTPerMinute:        decimal.RequireFromString("0.0043"),
		LLMInputPerMillion:  decimal.RequireFromString("0.15"),
		LLMOutputPerMillion: decimal.RequireFromString("0.60"),
		TTSPerThousandChars: decimal.RequireFromString("0.03"),
		TelephonyPerMinute:  decimal.RequireFromString("0.007"),
	}
}

// CallUsage is the metered input for one call.
type CallUsage struct {
	DurationSeconds int
	InputTokens     int
	OutputTokens    int
	TTSCharacters   int
}

// Breakdown is the itemized cost of one call. Every field is rounded to 4 places.
type Breakdown struct {
	STT       decimal.Decimal `json:"stt"`
	LLM       decimal.Decimal `json:"llm"`
	TTS       decimal.Decimal `json:"tts"`
	Telephony decimal.Decimal `json:"telephony"`
	Total     decimal.Decimal `json:"total"`
}
