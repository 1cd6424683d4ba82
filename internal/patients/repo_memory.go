package patients

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory patient store for tests and local runs.
// It enforces phone uniqueness like the Postgres schema does.
type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]Patient
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[int64]Patient{}}
}

func (r *MemoryRepo) Create(ctx context.Context, p Patient) (Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phoneTaken(p.Phone, 0) {
		return Patient{}, ErrDuplicatePhone
	}
	r.nextID++
	p.ID = r.nextID
	r.rows[p.ID] = p
	return p, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return Patient{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Patient, 0, len(r.rows))
	for _, p := range r.rows {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) Update(ctx context.Context, p Patient) (Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[p.ID]; !ok {
		return Patient{}, ErrNotFound
	}
	if r.phoneTaken(p.Phone, p.ID) {
		return Patient{}, ErrDuplicatePhone
	}
	r.rows[p.ID] = p
	return p, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *MemoryRepo) phoneTaken(phone string, exceptID int64) bool {
	for id, p := range r.rows {
		if id != exceptID && p.Phone == phone {
			return true
		}
	}
	return false
}
