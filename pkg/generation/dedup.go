package generation

import (
	"context"
	"sync"
	"time"

	"github.com/jordanlanch/contentforge/pkg/cache"
)

// Deduper rejects a request id while another request with the same id is in flight
type Deduper interface {
	// Acquire reports false when id is already in flight
	Acquire(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// LocalDeduper tracks in-flight ids in process memory.
//
// It is best effort only: the set is lost on restart and is not shared
// between instances, so duplicates reaching two processes both run.
// Use RedisDeduper when more than one instance serves traffic.
type LocalDeduper struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewLocalDeduper creates an empty in-process deduper
func NewLocalDeduper() *LocalDeduper {
	return &LocalDeduper{inflight: make(map[string]struct{})}
}

func (d *LocalDeduper) Acquire(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[id]; ok {
		return false, nil
	}
	d.inflight[id] = struct{}{}
	return true, nil
}

func (d *LocalDeduper) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, id)
	return nil
}

// RedisDeduper shares in-flight ids across instances through Redis.
// Keys expire after ttl so a crashed request cannot block its id forever.
type RedisDeduper struct {
	cache *cache.Client
	ttl   time.Duration
}

// NewRedisDeduper creates a deduper backed by c
func NewRedisDeduper(c *cache.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisDeduper{cache: c, ttl: ttl}
}

func (d *RedisDeduper) Acquire(ctx context.Context, id string) (bool, error) {
	return d.cache.SetNX(ctx, dedupKey(id), "1", d.ttl)
}

func (d *RedisDeduper) Release(ctx context.Context, id string) error {
	return d.cache.Delete(ctx, dedupKey(id))
}

func dedupKey(id string) string {
	return "generation:inflight:" + id
}
