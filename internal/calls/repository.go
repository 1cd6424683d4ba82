package calls

import (
	"context"
	"errors"
)

var (
	ErrNotFound           = errors.New("call not found")
	ErrTranscriptNotFound = errors.New("transcript not found")
	ErrInvalidState       = errors.New("call is not in a state that allows this operation")
)

// Repository is the persistence contract for calls and their transcripts.
type Repository interface {
	// Create inserts c and returns it with its id assigned.
	Create(ctx context.Context, c Call) (Call, error)
	Get(ctx context.Context, id int64) (Call, error)
	// List returns matching calls, newest first.
	List(ctx context.Context, f Filter) ([]Call, error)

	SetCallSID(ctx context.Context, id int64, sid string) error

	// Transition moves a call from one status to another only while it is
	// still in from. It reports whether the row changed.
	Transition(ctx context.Context, id int64, from, to Status) (bool, error)

	// Finalize atomically completes an answered (or already completed) call
	// and upserts its transcript. On error nothing is written.
	Finalize(ctx context.Context, f Finalization) error

	GetTranscript(ctx context.Context, callID int64) (Transcript, error)

	CountByPatient(ctx context.Context) (map[int64]int, error)
	// DeleteByPatient removes a patient's calls and transcripts and returns the deleted call ids.
	DeleteByPatient(ctx context.Context, patientID int64) ([]int64, error)
}

// finalizable reports whether a call in status s may be (re)finalized.
func finalizable(s Status) bool {
	return s == StatusAnswered || s == StatusCompleted
}
