package audit

import "time"

// Event is an immutable, append-only record of something that happened to a call.
//
// Invariants:
// - Events are never updated or deleted by application code.
// - Writing an event is best-effort; the call lifecycle never waits on it.
type Event struct {
	ID     string `json:"id" db:"id"`
	CallID int64  `json:"call_id" db:"call_id"`

	Type EventType `json:"type" db:"type"`

	// FromStatus and ToStatus are set for status changes only.
	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeStatusChanged   EventType = "status_changed"
	EventTypeSessionOpened   EventType = "session_opened"
	EventTypeSessionRejected EventType = "session_rejected"
	EventTypeFinalizeFailed  EventType = "finalize_failed"
	EventTypeSummaryFallback EventType = "summary_fallback"
)
