package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryManager is an in-process implementation of Manager used for unit
// tests and single-node development. It honors the same lease semantics as
// the Redis implementation: exclusive ownership per key, reclaimable after
// the TTL elapses, idempotent release.
type MemoryManager struct {
	mu    sync.Mutex
	held  map[string]*memoryLease
	opts  Options
	nowFn func() time.Time
	err   error
}

// NewMemoryManager creates an empty manager.
func NewMemoryManager(opts Options) *MemoryManager {
	return &MemoryManager{
		held:  make(map[string]*memoryLease),
		opts:  opts.withDefaults(),
		nowFn: time.Now,
	}
}

// WithClock replaces the time source for deterministic expiry tests.
func (m *MemoryManager) WithClock(nowFn func() time.Time) *MemoryManager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFn = nowFn
	return m
}

// WithError forces subsequent Acquire calls to fail with err, simulating an
// unreachable lock backend.
func (m *MemoryManager) WithError(err error) *MemoryManager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Acquire polls for ownership of key until the wait window closes.
func (m *MemoryManager) Acquire(ctx context.Context, key string) (Lease, bool, error) {
	m.mu.Lock()
	forced := m.err
	deadline := m.nowFn().Add(m.opts.WaitTimeout)
	m.mu.Unlock()

	if forced != nil {
		return nil, false, forced
	}

	for {
		if lease, ok := m.tryGrant(key); ok {
			return lease, true, nil
		}
		if !m.now().Before(deadline) {
			return nil, false, nil
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(m.opts.RetryDelay):
		}
	}
}

func (m *MemoryManager) now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nowFn()
}

func (m *MemoryManager) tryGrant(key string) (*memoryLease, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	if cur, ok := m.held[key]; ok && !cur.released && now.Before(cur.expiresAt) {
		return nil, false
	}

	lease := &memoryLease{
		mgr:       m,
		key:       key,
		expiresAt: now.Add(m.opts.LeaseTTL),
	}
	m.held[key] = lease
	return lease, true
}

type memoryLease struct {
	mgr       *MemoryManager
	key       string
	expiresAt time.Time
	released  bool
}

func (l *memoryLease) Release(context.Context) error {
	l.mgr.mu.Lock()
	defer l.mgr.mu.Unlock()

	l.released = true
	if cur, ok := l.mgr.held[l.key]; ok && cur == l {
		delete(l.mgr.held, l.key)
	}
	return nil
}
