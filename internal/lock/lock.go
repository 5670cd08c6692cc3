package lock

import (
	"context"
	"time"
)

// Manager grants exclusive, time-bounded leases on string keys. The account
// number is the mutual-exclusion domain: one key per account, never a global
// lock, so requests against different accounts proceed in parallel.
//
// Acquire blocks for up to the configured wait timeout. Contention is
// reported as acquired=false, not as an error; errors mean the lock backend
// itself faulted.
type Manager interface {
	Acquire(ctx context.Context, key string) (Lease, bool, error)
}

// Lease is an acquired lock. Release is idempotent: releasing a lease that
// is no longer held, or that already expired, is a no-op.
type Lease interface {
	Release(ctx context.Context) error
}

// Options are the lock tunables. LeaseTTL bounds how long a crashed holder
// can block an account before the lease becomes reclaimable; it must be
// chosen generously relative to the expected critical-section duration,
// since a lease outliving its holder reopens the section to a second owner.
type Options struct {
	WaitTimeout time.Duration
	LeaseTTL    time.Duration
	RetryDelay  time.Duration
	KeyPrefix   string
}

// DefaultOptions mirrors the production defaults: wait up to 1s for a
// contended account, hold the lease for at most 15s.
func DefaultOptions() Options {
	return Options{
		WaitTimeout: time.Second,
		LeaseTTL:    15 * time.Second,
		RetryDelay:  100 * time.Millisecond,
		KeyPrefix:   "ACLK:",
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = def.WaitTimeout
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = def.LeaseTTL
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = def.RetryDelay
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = def.KeyPrefix
	}
	return o
}
