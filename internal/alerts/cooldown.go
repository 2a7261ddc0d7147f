package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Key identifies a cooldown
type Key struct {
	Symbol string
	Kind   DetectorKind
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.Symbol
}

// CooldownStore records alert times. TryAcquire is an atomic check-and-set:
// it returns true and records now only when no alert for key happened within
// window.
type CooldownStore interface {
	TryAcquire(ctx context.Context, key Key, now time.Time, window time.Duration) (bool, error)
}

const cooldownShards = 16

type cooldownShard struct {
	mu   sync.Mutex
	last map[Key]time.Time
}

// MemoryCooldowns is an in-process CooldownStore with per-shard locking
type MemoryCooldowns struct {
	shards [cooldownShards]*cooldownShard
}

// NewMemoryCooldowns creates an empty store
func NewMemoryCooldowns() *MemoryCooldowns {
	m := &MemoryCooldowns{}
	for i := range m.shards {
		m.shards[i] = &cooldownShard{last: make(map[Key]time.Time)}
	}
	return m
}

func (m *MemoryCooldowns) shard(key Key) *cooldownShard {
	return m.shards[xxhash.Sum64String(key.String())%cooldownShards]
}

// TryAcquire implements CooldownStore
func (m *MemoryCooldowns) TryAcquire(_ context.Context, key Key, now time.Time, window time.Duration) (bool, error) {
	sh := m.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if last, ok := sh.last[key]; ok && now.Sub(last) < window {
		return false, nil
	}
	sh.last[key] = now
	return true, nil
}

// LastAlertAt returns when key last alerted
func (m *MemoryCooldowns) LastAlertAt(key Key) (time.Time, bool) {
	sh := m.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	t, ok := sh.last[key]
	return t, ok
}

// Sweep evicts cooldowns that have elapsed and returns how many were removed
func (m *MemoryCooldowns) Sweep(now time.Time, window time.Duration) int {
	removed := 0
	for _, sh := range m.shards {
		sh.mu.Lock()
		for k, last := range sh.last {
			if now.Sub(last) >= window {
				delete(sh.last, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked cooldowns
func (m *MemoryCooldowns) Len() int {
	n := 0
	for _, sh := range m.shards {
		sh.mu.Lock()
		n += len(sh.last)
		sh.mu.Unlock()
	}
	return n
}
