package server

import (
	"context"
	"errors"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// Pinger is the connectivity check exposed by the database pool and the
// lock backend client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendHealth verifies the account database and the lock backend as part
// of health checks. Nil fields are skipped, so partial wiring (for example
// an in-memory lock manager in development) stays probeable.
type BackendHealth struct {
	Database    Pinger
	LockBackend Pinger
}

// Probe implements the HealthService interface.
func (s BackendHealth) Probe(ctx context.Context) error {
	var errs []error
	if s.Database != nil {
		if err := s.Database.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.LockBackend != nil {
		if err := s.LockBackend.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
