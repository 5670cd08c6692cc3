package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/minseo/accountd/internal/domain"
	"github.com/minseo/accountd/internal/lock"
	"github.com/minseo/accountd/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLockOptions() lock.Options {
	return lock.Options{WaitTimeout: 2 * time.Second, LeaseTTL: 15 * time.Second, RetryDelay: time.Millisecond}
}

func newTestCoordinator(mem *store.Memory, mgr *lock.MemoryManager) *Coordinator {
	return NewCoordinator(mgr, mem, mem, mem, testLogger())
}

func seedAccount(mem *store.Memory, number, userID string, balance int64) {
	mem.SeedUser(domain.User{ID: userID, Name: "holder"})
	mem.SeedAccount(domain.Account{
		Number:       number,
		UserID:       userID,
		Status:       domain.AccountActive,
		Balance:      balance,
		RegisteredAt: time.Now().UTC(),
	})
}

func TestUseBalanceSuccess(t *testing.T) {
	mem := store.NewMemory()
	seedAccount(mem, "1000000000", "USR-1", 10000)
	coord := newTestCoordinator(mem, lock.NewMemoryManager(testLockOptions()))

	tx, err := coord.UseBalance(context.Background(), "USR-1", "1000000000", 3000)
	if err != nil {
		t.Fatalf("use balance: %v", err)
	}
	if tx.Result != domain.ResultSuccess || tx.Type != domain.TransactionUse {
		t.Fatalf("unexpected record %+v", tx)
	}
	if tx.BalanceSnapshot != 7000 {
		t.Fatalf("expected snapshot 7000, got %d", tx.BalanceSnapshot)
	}

	acct, err := mem.Get(context.Background(), "1000000000")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct.Balance != 7000 {
		t.Fatalf("expected balance 7000, got %d", acct.Balance)
	}
}

func TestUseBalanceInsufficientRecordsFailure(t *testing.T) {
	mem := store.NewMemory()
	seedAccount(mem, "1000000000", "USR-1", 7000)
	coord := newTestCoordinator(mem, lock.NewMemoryManager(testLockOptions()))

	_, err := coord.UseBalance(context.Background(), "USR-1", "1000000000", 8000)
	if domain.KindOf(err) != domain.KindInsufficientBalance {
		t.Fatalf("expected %s, got %v", domain.KindInsufficientBalance, err)
	}

	acct, _ := mem.Get(context.Background(), "1000000000")
	if acct.Balance != 7000 {
		t.Fatalf("failed use must not change the balance, got %d", acct.Balance)
	}

	records := mem.Transactions()
	if len(records) != 1 {
		t.Fatalf("expected exactly one FAILURE record, got %d", len(records))
	}
	rec := records[0]
	if rec.Result != domain.ResultFailure || rec.Amount != 8000 || rec.BalanceSnapshot != 7000 {
		t.Fatalf("unexpected failure record %+v", rec)
	}
}

func TestUseBalanceValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		prepare func(mem *store.Memory)
		want    domain.ErrorKind
	}{
		{
			name:   "user not found",
			userID: "USR-MISSING",
			want:   domain.KindNotFound,
		},
		{
			name:   "ownership mismatch",
			userID: "USR-2",
			prepare: func(mem *store.Memory) {
				mem.SeedUser(domain.User{ID: "USR-2", Name: "other"})
			},
			want: domain.KindOwnershipMismatch,
		},
		{
			name:   "account closed",
			userID: "USR-1",
			prepare: func(mem *store.Memory) {
				closedAt := time.Now().UTC()
				mem.SeedAccount(domain.Account{
					Number: "1000000000", UserID: "USR-1",
					Status: domain.AccountClosed, Balance: 500, ClosedAt: &closedAt,
				})
			},
			want: domain.KindAccountInactive,
		},
		{
			name:   "invalid amount",
			userID: "USR-1",
			want:   domain.KindInvalidAmount,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mem := store.NewMemory()
			seedAccount(mem, "1000000000", "USR-1", 500)
			if tc.prepare != nil {
				tc.prepare(mem)
			}
			coord := newTestCoordinator(mem, lock.NewMemoryManager(testLockOptions()))

			amount := int64(100)
			if tc.want == domain.KindInvalidAmount {
				amount = 0
			}

			_, err := coord.UseBalance(context.Background(), tc.userID, "1000000000", amount)
			if domain.KindOf(err) != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}

			records := mem.Transactions()
			if len(records) != 1 {
				t.Fatalf("validation failure must record exactly one transaction, got %d", len(records))
			}
			if records[0].Result != domain.ResultFailure {
				t.Fatalf("expected FAILURE record, got %+v", records[0])
			}
		})
	}
}

func TestUseBalanceAccountMissing(t *testing.T) {
	mem := store.NewMemory()
	mem.SeedUser(domain.User{ID: "USR-1"})
	coord := newTestCoordinator(mem, lock.NewMemoryManager(testLockOptions()))

	_, err := coord.UseBalance(context.Background(), "USR-1", "9999999999", 100)
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected %s, got %v", domain.KindNotFound, err)
	}
	if len(mem.Transactions()) != 0 {
		t.Fatal("a missing account has no balance to snapshot; nothing must be recorded")
	}
}

func TestUseBalanceLockBusy(t *testing.T) {
	mem := store.NewMemory()
	seedAccount(mem, "1000000000", "USR-1", 1000)
	mgr := lock.NewMemoryManager(lock.Options{WaitTimeout: 5 * time.Millisecond, RetryDelay: time.Millisecond})
	coord := newTestCoordinator(mem, mgr)

	// Another holder owns the account's lease for the whole test.
	lease, acquired, err := mgr.Acquire(context.Background(), "1000000000")
	if err != nil || !acquired {
		t.Fatalf("pre-acquire: acquired=%v err=%v", acquired, err)
	}
	defer lease.Release(context.Background())

	_, err = coord.UseBalance(context.Background(), "USR-1", "1000000000", 100)
	if domain.KindOf(err) != domain.KindResourceBusy {
		t.Fatalf("expected %s, got %v", domain.KindResourceBusy, err)
	}
	if len(mem.Transactions()) != 0 {
		t.Fatal("a request denied the lock must not write any record")
	}

	acct, _ := mem.Get(context.Background(), "1000000000")
	if acct.Balance != 1000 {
		t.Fatalf("balance changed without the lease: %d", acct.Balance)
	}
}

func TestCancelBalance(t *testing.T) {
	mem := store.NewMemory()
	seedAccount(mem, "1000000000", "USR-1", 7000)
	coord := newTestCoordinator(mem, lock.NewMemoryManager(testLockOptions()))

	tx, err := coord.CancelBalance(context.Background(), "1000000000", 3000)
	if err != nil {
		t.Fatalf("cancel balance: %v", err)
	}
	if tx.Type != domain.TransactionCancel || tx.Result != domain.ResultSuccess {
		t.Fatalf("unexpected record %+v", tx)
	}
	if tx.BalanceSnapshot != 10000 {
		t.Fatalf("expected snapshot 10000, got %d", tx.BalanceSnapshot)
	}

	_, err = coord.CancelBalance(context.Background(), "1000000000", -5)
	if domain.KindOf(err) != domain.KindInvalidAmount {
		t.Fatalf("expected %s, got %v", domain.KindInvalidAmount, err)
	}
	records := mem.Transactions()
	if len(records) != 2 || records[1].Result != domain.ResultFailure {
		t.Fatalf("negative cancel must record a FAILURE, got %+v", records)
	}
}

func TestConcurrentUseSerializesPerAccount(t *testing.T) {
	mem := store.NewMemory()
	seedAccount(mem, "1000000000", "USR-1", 1000)
	coord := newTestCoordinator(mem, lock.NewMemoryManager(testLockOptions()))

	const requests = 50
	var wg sync.WaitGroup
	results := make(chan error, requests)

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.UseBalance(context.Background(), "USR-1", "1000000000", 100)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case domain.KindOf(err) == domain.KindInsufficientBalance:
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if succeeded != 10 || insufficient != 40 {
		t.Fatalf("expected 10 successes and 40 insufficient, got %d/%d", succeeded, insufficient)
	}

	acct, _ := mem.Get(context.Background(), "1000000000")
	if acct.Balance != 0 {
		t.Fatalf("expected final balance 0, got %d", acct.Balance)
	}
	if got := len(mem.Transactions()); got != requests {
		t.Fatalf("expected %d audit records, got %d", requests, got)
	}
}

func TestConcurrentMixedTrafficConservesBalance(t *testing.T) {
	mem := store.NewMemory()
	seedAccount(mem, "1000000000", "USR-1", 5000)
	coord := newTestCoordinator(mem, lock.NewMemoryManager(testLockOptions()))

	type op struct {
		cancel bool
		amount int64
	}
	ops := make([]op, 0, 40)
	for i := 0; i < 30; i++ {
		ops = append(ops, op{amount: 300})
	}
	for i := 0; i < 10; i++ {
		ops = append(ops, op{cancel: true, amount: 200})
	}

	var wg sync.WaitGroup
	for _, o := range ops {
		o := o
		wg.Add(1)
		go func() {
			defer wg.Done()
			if o.cancel {
				_, _ = coord.CancelBalance(context.Background(), "1000000000", o.amount)
				return
			}
			_, _ = coord.UseBalance(context.Background(), "USR-1", "1000000000", o.amount)
		}()
	}
	wg.Wait()

	var usedTotal, canceledTotal int64
	for _, rec := range mem.Transactions() {
		if rec.Result != domain.ResultSuccess {
			continue
		}
		switch rec.Type {
		case domain.TransactionUse:
			usedTotal += rec.Amount
		case domain.TransactionCancel:
			canceledTotal += rec.Amount
		}
	}

	acct, _ := mem.Get(context.Background(), "1000000000")
	if want := 5000 - usedTotal + canceledTotal; acct.Balance != want {
		t.Fatalf("lost update: balance %d, want %d (used %d, canceled %d)",
			acct.Balance, want, usedTotal, canceledTotal)
	}
	if len(mem.Transactions()) != len(ops) {
		t.Fatalf("expected %d records, got %d", len(ops), len(mem.Transactions()))
	}
}

func TestDifferentAccountsDoNotBlockEachOther(t *testing.T) {
	mem := store.NewMemory()
	seedAccount(mem, "1000000000", "USR-1", 1000)
	mem.SeedAccount(domain.Account{Number: "1000000001", UserID: "USR-1", Status: domain.AccountActive, Balance: 1000})
	mgr := lock.NewMemoryManager(lock.Options{WaitTimeout: 2 * time.Second, RetryDelay: time.Millisecond})
	coord := newTestCoordinator(mem, mgr)

	// Hold account A's lease for the whole test; B must still go through.
	lease, acquired, err := mgr.Acquire(context.Background(), "1000000000")
	if err != nil || !acquired {
		t.Fatalf("pre-acquire: acquired=%v err=%v", acquired, err)
	}
	defer lease.Release(context.Background())

	start := time.Now()
	if _, err := coord.UseBalance(context.Background(), "USR-1", "1000000001", 100); err != nil {
		t.Fatalf("use on uncontended account: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("request on a different account was serialized behind the held lease (%v)", elapsed)
	}
}

func TestLeaseReleasedOnStoreFault(t *testing.T) {
	backendDown := errors.New("store unreachable")

	t.Run("account put fails", func(t *testing.T) {
		mem := store.NewMemory()
		seedAccount(mem, "1000000000", "USR-1", 1000)
		mem.WithPutError(backendDown)
		mgr := lock.NewMemoryManager(lock.Options{WaitTimeout: 5 * time.Millisecond, RetryDelay: time.Millisecond})
		coord := newTestCoordinator(mem, mgr)

		_, err := coord.UseBalance(context.Background(), "USR-1", "1000000000", 100)
		if domain.KindOf(err) != domain.KindInfrastructure {
			t.Fatalf("expected %s, got %v", domain.KindInfrastructure, err)
		}
		if !errors.Is(err, backendDown) {
			t.Fatalf("fault must not be swallowed, got %v", err)
		}

		// The lease must be free again despite the mid-section fault.
		lease, acquired, err := mgr.Acquire(context.Background(), "1000000000")
		if err != nil || !acquired {
			t.Fatalf("lease not released after fault: acquired=%v err=%v", acquired, err)
		}
		_ = lease.Release(context.Background())
	})

	t.Run("log append fails", func(t *testing.T) {
		mem := store.NewMemory()
		seedAccount(mem, "1000000000", "USR-1", 1000)
		mem.WithAppendError(backendDown)
		mgr := lock.NewMemoryManager(lock.Options{WaitTimeout: 5 * time.Millisecond, RetryDelay: time.Millisecond})
		coord := newTestCoordinator(mem, mgr)

		_, err := coord.UseBalance(context.Background(), "USR-1", "1000000000", 100)
		if domain.KindOf(err) != domain.KindInfrastructure {
			t.Fatalf("expected %s, got %v", domain.KindInfrastructure, err)
		}

		lease, acquired, err := mgr.Acquire(context.Background(), "1000000000")
		if err != nil || !acquired {
			t.Fatalf("lease not released after fault: acquired=%v err=%v", acquired, err)
		}
		_ = lease.Release(context.Background())
	})

	t.Run("lock backend fails", func(t *testing.T) {
		mem := store.NewMemory()
		seedAccount(mem, "1000000000", "USR-1", 1000)
		mgr := lock.NewMemoryManager(lock.Options{}).WithError(backendDown)
		coord := newTestCoordinator(mem, mgr)

		_, err := coord.UseBalance(context.Background(), "USR-1", "1000000000", 100)
		if domain.KindOf(err) != domain.KindInfrastructure {
			t.Fatalf("expected %s, got %v", domain.KindInfrastructure, err)
		}
		if len(mem.Transactions()) != 0 {
			t.Fatal("no record may be written when the lock backend faults")
		}
	})
}

func TestTransactionIDsAreFreshPerAttempt(t *testing.T) {
	mem := store.NewMemory()
	seedAccount(mem, "1000000000", "USR-1", 1000)
	coord := newTestCoordinator(mem, lock.NewMemoryManager(testLockOptions()))

	a, err := coord.UseBalance(context.Background(), "USR-1", "1000000000", 100)
	if err != nil {
		t.Fatalf("first use: %v", err)
	}
	b, err := coord.UseBalance(context.Background(), "USR-1", "1000000000", 100)
	if err != nil {
		t.Fatalf("second use: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("transaction ids must be unique per attempt")
	}
}
