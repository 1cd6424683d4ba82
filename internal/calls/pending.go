package calls

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"patient-followup/internal/transcript"

	"github.com/redis/go-redis/v9"
)

var ErrNothingPending = errors.New("no pending finalization for this call")

// Parked is a finalization that could not be persisted.
type Parked struct {
	Turns   []transcript.Turn `json:"turns"`
	EndedAt time.Time         `json:"ended_at"`
}

// PendingStore keeps failed finalizations until Reconcile replays them.
// Load returns ErrNothingPending when nothing is parked for the call.
type PendingStore interface {
	Park(ctx context.Context, callID int64, p Parked) error
	Load(ctx context.Context, callID int64) (Parked, error)
	Clear(ctx context.Context, callID int64) error
}

type MemoryPending struct {
	mu    sync.Mutex
	items map[int64]Parked
}

func NewMemoryPending() *MemoryPending {
	return &MemoryPending{items: map[int64]Parked{}}
}

func (m *MemoryPending) Park(ctx context.Context, callID int64, p Parked) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Turns = append([]transcript.Turn(nil), p.Turns...)
	m.items[callID] = p
	return nil
}

func (m *MemoryPending) Load(ctx context.Context, callID int64) (Parked, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[callID]
	if !ok {
		return Parked{}, ErrNothingPending
	}
	return p, nil
}

func (m *MemoryPending) Clear(ctx context.Context, callID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, callID)
	return nil
}

// RedisPending stores parked finalizations as JSON so any replica can reconcile them.
type RedisPending struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisPending(rdb *redis.Client, ttl time.Duration) *RedisPending {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisPending{rdb: rdb, ttl: ttl, prefix: "followup:pending:"}
}

func (r *RedisPending) key(callID int64) string {
	return r.prefix + strconv.FormatInt(callID, 10)
}

func (r *RedisPending) Park(ctx context.Context, callID int64, p Parked) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(callID), b, r.ttl).Err()
}

func (r *RedisPending) Load(ctx context.Context, callID int64) (Parked, error) {
	b, err := r.rdb.Get(ctx, r.key(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Parked{}, ErrNothingPending
		}
		return Parked{}, err
	}
	var p Parked
	if err := json.Unmarshal(b, &p); err != nil {
		return Parked{}, err
	}
	return p, nil
}

func (r *RedisPending) Clear(ctx context.Context, callID int64) error {
	return r.rdb.Del(ctx, r.key(callID)).Err()
}
