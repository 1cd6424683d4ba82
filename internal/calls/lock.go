package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"patient-followup/pkg/logger"
	"patient-followup/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionConflict = errors.New("a media session is already active for this call")

// SessionLocker admits at most one live media session per call.
// Acquire returns ErrSessionConflict when another session holds the call.
type SessionLocker interface {
	Acquire(ctx context.Context, callID int64) (release func(), err error)
}

// LocalLocker is the in-process session registry.
type LocalLocker struct {
	mu     sync.Mutex
	active map[int64]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{active: map[int64]struct{}{}}
}

func (l *LocalLocker) Acquire(ctx context.Context, callID int64) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.active[callID]; ok {
		return nil, ErrSessionConflict
	}
	l.active[callID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, callID)
			l.mu.Unlock()
		})
	}, nil
}

// Active reports whether a session currently holds callID.
func (l *LocalLocker) Active(callID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.active[callID]
	return ok
}

// RedisLocker extends the guarantee across replicas with a token lock.
// The holder renews the lock every TTL/3; it expires after TTL if the holder
// dies without releasing it.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, prefix: "followup:session:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, callID int64) (func(), error) {
	key := l.prefix + strconv.FormatInt(callID, 10)
	token := uuid.NewString()
	ok, err := utils.AcquireLock(ctx, l.rdb, key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("session lock: %w", err)
	}
	if !ok {
		return nil, ErrSessionConflict
	}

	bg := context.WithoutCancel(ctx)
	log := logger.FromOr(ctx, slog.Default()).With("call_id", callID)
	stopRenew := renewEvery(l.ttl/3, func() (bool, error) {
		rctx, cancel := context.WithTimeout(bg, l.ttl/3)
		defer cancel()
		held, err := utils.ExtendLock(rctx, l.rdb, key, token, l.ttl)
		if err != nil {
			log.Warn("session lock renewal failed", "err", err)
		} else if !held {
			log.Warn("session lock lost")
		}
		return held, err
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			stopRenew()
			// Release must work after the request context is gone.
			rctx, cancel := context.WithTimeout(bg, 2*time.Second)
			defer cancel()
			_ = utils.ReleaseLock(rctx, l.rdb, key, token)
		})
	}, nil
}

// renewEvery calls extend on every tick until extend reports the lock gone
// or stop is called. Errors are retried on the next tick. stop waits for an
// in-flight extend to return.
func renewEvery(interval time.Duration, extend func() (bool, error)) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if held, err := extend(); err == nil && !held {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}

// ChainLocker acquires every locker in order and releases in reverse.
type ChainLocker []SessionLocker

func (c ChainLocker) Acquire(ctx context.Context, callID int64) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		rel, err := l.Acquire(ctx, callID)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releaseAll, nil
}

// keyedMutex serializes work per call id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[int64]*keyedEntry{}}
}

func (k *keyedMutex) Lock(id int64) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
