package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory call store for tests and local runs.
type MemoryRepo struct {
	mu          sync.Mutex
	nextID      int64
	nextTransID int64
	calls       map[int64]Call
	transcripts map[int64]Transcript
	clock       func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		calls:       map[int64]Call{},
		transcripts: map[int64]Transcript{},
		clock:       time.Now,
	}
}

func (r *MemoryRepo) Create(ctx context.Context, c Call) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	r.calls[c.ID] = c
	return c, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) List(ctx context.Context, f Filter) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range r.calls {
		if f.match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func (r *MemoryRepo) SetCallSID(ctx context.Context, id int64, sid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.CallSID = sid
	r.calls[id] = c
	return nil
}

func (r *MemoryRepo) Transition(ctx context.Context, id int64, from, to Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return false, ErrNotFound
	}
	if c.Status != from {
		return false, nil
	}
	c.Status = to
	r.calls[id] = c
	return true, nil
}

func (r *MemoryRepo) Finalize(ctx context.Context, f Finalization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[f.CallID]
	if !ok {
		return ErrNotFound
	}
	if !finalizable(c.Status) {
		return ErrInvalidState
	}

	ended := f.EndedAt
	c.Status = StatusCompleted
	c.Duration = f.Duration
	c.Cost = f.Cost
	c.EndedAt = &ended
	r.calls[c.ID] = c

	now := r.clock().UTC()
	t := f.Transcript
	t.CallID = c.ID
	if prev, ok := r.transcripts[c.ID]; ok {
		t.ID = prev.ID
		t.CreatedAt = prev.CreatedAt
	} else {
		r.nextTransID++
		t.ID = r.nextTransID
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	r.transcripts[c.ID] = t
	return nil
}

func (r *MemoryRepo) GetTranscript(ctx context.Context, callID int64) (Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transcripts[callID]
	if !ok {
		return Transcript{}, ErrTranscriptNotFound
	}
	return t, nil
}

func (r *MemoryRepo) CountByPatient(ctx context.Context) (map[int64]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64]int{}
	for _, c := range r.calls {
		out[c.PatientID]++
	}
	return out, nil
}

func (r *MemoryRepo) DeleteByPatient(ctx context.Context, patientID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0)
	for id, c := range r.calls {
		if c.PatientID == patientID {
			ids = append(ids, id)
			delete(r.calls, id)
			delete(r.transcripts, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// TranscriptCount is the number of stored transcripts.
func (r *MemoryRepo) TranscriptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transcripts)
}
