package summary

import (
	"context"
	"encoding/json"

	"patient-followup/internal/transcript"
)

// Summary is the structured digest of a follow-up call.
type Summary struct {
	Sentiment      string   `json:"sentiment"`
	KeyPoints      []string `json:"key_points"`
	HealthConcerns []string `json:"health_concerns"`
	FollowUpNeeded bool     `json:"follow_up_needed"`
	FollowUpReason string   `json:"follow_up_reason"`
}

// Summarizer produces a Summary from a finished conversation.
// Implementations are best-effort; callers substitute Fallback on error.
type Summarizer interface {
	Summarize(ctx context.Context, turns []transcript.Turn) (Summary, error)
}

// Fallback is stored when no summary could be generated.
func Fallback() Summary {
	return Summary{
		Sentiment:      "unknown",
		KeyPoints:      []string{"Error generating summary"},
		HealthConcerns: []string{},
		FollowUpNeeded: false,
		FollowUpReason: "",
	}
}

// Encode serializes a summary for storage. Nil slices are written as empty arrays.
func (s Summary) Encode() (string, error) {
	if s.KeyPoints == nil {
		s.KeyPoints = []string{}
	}
	if s.HealthConcerns == nil {
		s.HealthConcerns = []string{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func Decode(raw string) (Summary, error) {
	var s Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Summary{}, err
	}
	return s, nil
}
