package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/minseo/accountd/internal/domain"
	"github.com/minseo/accountd/internal/lock"
	"github.com/minseo/accountd/internal/store"
)

// Coordinator runs the per-account critical section: acquire the account's
// lease, validate, mutate the balance, append the audit record, release.
// Critical sections for one account number are totally ordered; different
// accounts never block each other beyond their own I/O.
//
// The lock manager is passed in as an explicit capability so a shared remote
// service and an in-process fake are interchangeable.
type Coordinator struct {
	locks    lock.Manager
	accounts store.AccountStore
	users    store.UserDirectory
	txlog    store.TransactionLog
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewCoordinator wires the coordinator's collaborators.
func NewCoordinator(locks lock.Manager, accounts store.AccountStore, users store.UserDirectory, txlog store.TransactionLog, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		locks:    locks,
		accounts: accounts,
		users:    users,
		txlog:    txlog,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// WithClock replaces the time source used for record timestamps.
func (c *Coordinator) WithClock(nowFn func() time.Time) *Coordinator {
	c.nowFn = nowFn
	return c
}

// UseBalance debits amount from the account on behalf of userID. Validation
// failures are recorded as FAILURE transactions before the typed error is
// returned; lock contention and infrastructure faults are not recorded.
func (c *Coordinator) UseBalance(ctx context.Context, userID, accountNumber string, amount int64) (domain.Transaction, error) {
	return c.withLease(ctx, accountNumber, func() (domain.Transaction, error) {
		validate := func(acct domain.Account) error {
			user, err := c.users.Lookup(ctx, userID)
			if err != nil {
				return err
			}
			if acct.UserID != user.ID {
				return domain.E(domain.KindOwnershipMismatch, "account does not belong to the requesting user")
			}
			if acct.Status != domain.AccountActive {
				return domain.E(domain.KindAccountInactive, "account is not active")
			}
			return nil
		}
		mutate := func(acct *domain.Account) error { return acct.Use(amount) }
		return c.apply(ctx, domain.TransactionUse, accountNumber, amount, validate, mutate)
	})
}

// CancelBalance credits amount back to the account, reversing an earlier
// debit. There is no link to the original transaction: the credit is a
// fresh one, bounded only by non-negativity of the amount.
func (c *Coordinator) CancelBalance(ctx context.Context, accountNumber string, amount int64) (domain.Transaction, error) {
	return c.withLease(ctx, accountNumber, func() (domain.Transaction, error) {
		validate := func(acct domain.Account) error {
			if acct.Status != domain.AccountActive {
				return domain.E(domain.KindAccountInactive, "account is not active")
			}
			return nil
		}
		mutate := func(acct *domain.Account) error { return acct.Cancel(amount) }
		return c.apply(ctx, domain.TransactionCancel, accountNumber, amount, validate, mutate)
	})
}

// withLease brackets fn with lease acquisition and a deferred release that
// runs on every exit path, including panics and infrastructure faults.
func (c *Coordinator) withLease(ctx context.Context, accountNumber string, fn func() (domain.Transaction, error)) (domain.Transaction, error) {
	c.logger.Debug("acquiring account lease", "account", accountNumber)

	lease, acquired, err := c.locks.Acquire(ctx, accountNumber)
	if err != nil {
		return domain.Transaction{}, domain.Wrap(domain.KindInfrastructure, "acquire account lease", err)
	}
	if !acquired {
		return domain.Transaction{}, domain.E(domain.KindResourceBusy, "account is processing another transaction")
	}
	defer func() {
		// Release must run even when ctx was canceled mid-section.
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error("failed to release account lease", "account", accountNumber, "error", err)
		}
	}()

	return fn()
}

// apply is the VALIDATED → APPLIED → RECORDED part of the state machine.
// It runs inside a held lease.
func (c *Coordinator) apply(ctx context.Context, txType domain.TransactionType, accountNumber string, amount int64, validate func(domain.Account) error, mutate func(*domain.Account) error) (domain.Transaction, error) {
	acct, err := c.accounts.Get(ctx, accountNumber)
	if err != nil {
		// No account record means no balance to snapshot; nothing is
		// written to the log.
		return domain.Transaction{}, err
	}

	if err := validate(acct); err != nil {
		if domain.IsValidation(domain.KindOf(err)) {
			return c.recordFailure(ctx, txType, acct, amount, err)
		}
		return domain.Transaction{}, err
	}

	// Domain mutators leave the balance untouched when they reject, so
	// acct.Balance still holds the pre-mutation value on failure.
	if err := mutate(&acct); err != nil {
		return c.recordFailure(ctx, txType, acct, amount, err)
	}

	if err := c.accounts.Put(ctx, acct); err != nil {
		return domain.Transaction{}, err
	}

	return c.record(ctx, txType, domain.ResultSuccess, acct.Number, amount, acct.Balance)
}

// recordFailure writes the FAILURE audit record and then returns the
// original validation error. If the log itself faults, the infrastructure
// error wins: the caller must learn the outcome is indeterminate.
func (c *Coordinator) recordFailure(ctx context.Context, txType domain.TransactionType, acct domain.Account, amount int64, cause error) (domain.Transaction, error) {
	if _, err := c.record(ctx, txType, domain.ResultFailure, acct.Number, amount, acct.Balance); err != nil {
		c.logger.Error("failed to record rejected transaction",
			"account", acct.Number, "cause", cause, "error", err)
		return domain.Transaction{}, err
	}
	return domain.Transaction{}, cause
}

func (c *Coordinator) record(ctx context.Context, txType domain.TransactionType, result domain.TransactionResult, accountNumber string, amount, snapshot int64) (domain.Transaction, error) {
	tx := domain.Transaction{
		ID:              domain.NewTransactionID(),
		AccountNumber:   accountNumber,
		Type:            txType,
		Result:          result,
		Amount:          amount,
		BalanceSnapshot: snapshot,
		TransactedAt:    c.nowFn().UTC(),
	}
	if err := c.txlog.Append(ctx, tx); err != nil {
		return domain.Transaction{}, err
	}
	return tx, nil
}
