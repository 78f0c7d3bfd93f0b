package lock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Locker serialises writers on named entities such as "account:<id>" or
// "loan:<id>". Keys are always taken in sorted order so two callers locking
// overlapping sets cannot deadlock. release is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

// Options bound how long a caller waits for a lock. Acquisition gives up
// after RetryInterval * MaxRetries and the caller sees a ConflictError.
type Options struct {
	TTL           time.Duration // redis key expiry; ignored by the local locker
	RetryInterval time.Duration // pause between attempts
	MaxRetries    int           // attempts per key
}

func (o Options) wait() time.Duration {
	return o.RetryInterval * time.Duration(o.MaxRetries)
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func once(fn func()) func() {
	var o sync.Once
	return func() { o.Do(fn) }
}

// RedisLocker holds one DistributedLock per key.
type RedisLocker struct {
	client *redis.Client
	opts   Options
	log    *logrus.Logger
	prefix string
}

func NewRedisLocker(client *redis.Client, opts Options, log *logrus.Logger) *RedisLocker {
	return &RedisLocker{client: client, opts: opts, log: log, prefix: "ledger:lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	owner := uuid.NewString()
	held := make([]*DistributedLock, 0, len(keys))

	unlockAll := func() {
		// the request context may already be cancelled here
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Unlock(ctx); err != nil {
				l.log.WithError(err).WithField("key", held[i].key).Warn("release lock")
			}
		}
	}

	for _, key := range normalize(keys) {
		dl := NewDistributedLock(l.client, l.prefix+key, owner, l.opts.TTL)
		if err := dl.Lock(ctx, l.opts.RetryInterval, l.opts.MaxRetries); err != nil {
			unlockAll()
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		held = append(held, dl)
	}
	return once(unlockAll), nil
}

// LocalLocker is the single-process fallback used when redis is not
// configured. Each key maps to a one-slot semaphore that is dropped once no
// goroutine holds or waits on it.
type LocalLocker struct {
	opts Options

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker(opts Options) *LocalLocker {
	return &LocalLocker{opts: opts, slots: make(map[string]*slot)}
}

func (l *LocalLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.slots[key]; ok {
		s.refs--
		if s.refs == 0 {
			delete(l.slots, key)
		}
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))

	unlockAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.mu.Lock()
			s := l.slots[held[i]]
			l.mu.Unlock()
			<-s.ch
			l.unref(held[i])
		}
	}

	timer := time.NewTimer(l.opts.wait())
	defer timer.Stop()

	for _, key := range keys {
		s := l.ref(key)
		select {
		case s.ch <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			l.unref(key)
			unlockAll()
			return nil, ctx.Err()
		case <-timer.C:
			l.unref(key)
			unlockAll()
			return nil, fmt.Errorf("lock %s: %w", key, ErrLockFailed)
		}
	}
	return once(unlockAll), nil
}

// Size reports how many keys are currently tracked.
func (l *LocalLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
