package calls

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Call is one outbound follow-up call to a patient.
//
// CallSID starts as a local placeholder and is replaced by the carrier's
// identifier once dispatch succeeds. Duration, Cost and EndedAt stay zero
// until the call is finalized.
type Call struct {
	ID        int64  `json:"id" db:"id"`
	PatientID int64  `json:"patient_id" db:"patient_id"`
	CallSID   string `json:"call_sid" db:"call_sid"`
	Status    Status `json:"status" db:"status"`

	// Duration is whole seconds between StartedAt and EndedAt.
	Duration int             `json:"duration" db:"duration"`
	Cost     decimal.Decimal `json:"cost" db:"cost"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at" db:"ended_at"`
}

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusRinging   Status = "ringing"
	StatusAnswered  Status = "answered"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from→to is a legal edge.
// Re-applying answered or completed is an idempotent no-op, not an edge.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusInitiated:
		return to == StatusRinging || to == StatusFailed
	case StatusRinging:
		return to == StatusAnswered
	case StatusAnswered:
		return to == StatusCompleted
	}
	return false
}

const placeholderPrefix = "pending-"

// PlaceholderSID is the provider id a call carries before dispatch succeeds.
func PlaceholderSID() string {
	return placeholderPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func IsPlaceholderSID(sid string) bool { return strings.HasPrefix(sid, placeholderPrefix) }

// Transcript is the stored outcome of a finished call. There is at most one per call.
type Transcript struct {
	ID     int64 `json:"id" db:"id"`
	CallID int64 `json:"call_id" db:"call_id"`

	// FullTranscript is {"conversation": [...], "call_ended_at": ...}.
	FullTranscript json.RawMessage `json:"full_transcript" db:"full_transcript"`
	// Summary is the structured summary or the fallback one.
	Summary json.RawMessage `json:"summary" db:"summary"`

	STTCost       decimal.Decimal `json:"stt_cost" db:"stt_cost"`
	LLMCost       decimal.Decimal `json:"llm_cost" db:"llm_cost"`
	TTSCost       decimal.Decimal `json:"tts_cost" db:"tts_cost"`
	TelephonyCost decimal.Decimal `json:"telephony_cost" db:"telephony_cost"`

	NeedsReview bool `json:"needs_review" db:"needs_review"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Finalization is everything written in the single finalization transaction.
type Finalization struct {
	CallID     int64
	Duration   int
	Cost       decimal.Decimal
	EndedAt    time.Time
	Transcript Transcript
}

// Filter narrows call listings. Zero values match everything.
type Filter struct {
	PatientID int64
	From      time.Time
	To        time.Time
}

func (f Filter) match(c Call) bool {
	if f.PatientID > 0 && c.PatientID != f.PatientID {
		return false
	}
	if !f.From.IsZero() && c.StartedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !c.StartedAt.Before(f.To) {
		return false
	}
	return true
}
