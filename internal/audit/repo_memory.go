package audit

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory append-only repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) ListByCall(ctx context.Context, callID int64) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0)
	for _, e := range r.events {
		if e.CallID == callID {
			out = append(out, e)
		}
	}
	return out, nil
}

// DeleteByCalls drops the events of deleted calls, mirroring the foreign-key cascade.
func (r *MemoryRepo) DeleteByCalls(ctx context.Context, callIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	drop := make(map[int64]bool, len(callIDs))
	for _, id := range callIDs {
		drop[id] = true
	}
	kept := r.events[:0]
	for _, e := range r.events {
		if !drop[e.CallID] {
			kept = append(kept, e)
		}
	}
	r.events = kept
	return nil
}

func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
