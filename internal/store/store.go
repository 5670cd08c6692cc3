// Package store defines the persistence contracts consumed by the services
// and provides the in-memory and Postgres implementations. Implementations
// return domain-tagged errors: missing records as KindNotFound, backend
// faults as KindInfrastructure.
package store

import (
	"context"

	"github.com/minseo/accountd/internal/domain"
)

// AccountStore is the durable mapping from account number to account state.
// Get and Put are atomic single-record operations; the record for a given
// account is only mutated inside a held lease for that account's key.
type AccountStore interface {
	Get(ctx context.Context, accountNumber string) (domain.Account, error)
	Put(ctx context.Context, account domain.Account) error
	// NextAccountNumber allocates highest+1, or the seed number for an
	// empty store. The store serializes this read-then-increment itself;
	// it is not covered by the per-account lock.
	NextAccountNumber(ctx context.Context) (string, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Account, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

// TransactionLog is the append-only audit store. Records are keyed by a
// globally unique id and never updated or deleted, so appends need no
// mutual exclusion.
type TransactionLog interface {
	Append(ctx context.Context, tx domain.Transaction) error
	ByID(ctx context.Context, transactionID string) (domain.Transaction, error)
	ListByAccount(ctx context.Context, accountNumber string) ([]domain.Transaction, error)
}

// UserDirectory resolves account owners.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (domain.User, error)
}

// SeedAccountNumber is the number assigned to the first account in an
// empty store.
const SeedAccountNumber = 1000000000
