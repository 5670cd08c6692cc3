package service

import (
	"context"
	"time"

	"github.com/minseo/accountd/internal/domain"
	"github.com/minseo/accountd/internal/store"
)

// MaxAccountsPerUser caps how many accounts a single user may own.
const MaxAccountsPerUser = 10

// AccountService handles the CRUD surface around the coordinator: account
// creation with store-serialized numbering, soft-delete closure, and
// lookups. None of this touches balances, so no lease is taken here.
type AccountService struct {
	accounts store.AccountStore
	users    store.UserDirectory
	txlog    store.TransactionLog
	nowFn    func() time.Time
}

// NewAccountService wires the service's collaborators.
func NewAccountService(accounts store.AccountStore, users store.UserDirectory, txlog store.TransactionLog) *AccountService {
	return &AccountService{
		accounts: accounts,
		users:    users,
		txlog:    txlog,
		nowFn:    time.Now,
	}
}

// WithClock replaces the time source used for registration timestamps.
func (s *AccountService) WithClock(nowFn func() time.Time) *AccountService {
	s.nowFn = nowFn
	return s
}

// CreateAccount opens a new ACTIVE account holding initialBalance.
func (s *AccountService) CreateAccount(ctx context.Context, userID string, initialBalance int64) (domain.Account, error) {
	if initialBalance < 0 {
		return domain.Account{}, domain.E(domain.KindInvalidAmount, "initial balance must not be negative")
	}

	user, err := s.users.Lookup(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}

	count, err := s.accounts.CountByUser(ctx, user.ID)
	if err != nil {
		return domain.Account{}, err
	}
	if count >= MaxAccountsPerUser {
		return domain.Account{}, domain.E(domain.KindAccountLimitExceeded, "user already owns the maximum number of accounts")
	}

	number, err := s.accounts.NextAccountNumber(ctx)
	if err != nil {
		return domain.Account{}, err
	}

	acct := domain.Account{
		Number:       number,
		UserID:       user.ID,
		Status:       domain.AccountActive,
		Balance:      initialBalance,
		RegisteredAt: s.nowFn().UTC(),
	}
	if err := s.accounts.Put(ctx, acct); err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

// CloseAccount soft-deletes an account: owner must match, status must be
// ACTIVE, and the balance must already be zero.
func (s *AccountService) CloseAccount(ctx context.Context, userID, accountNumber string) (domain.Account, error) {
	user, err := s.users.Lookup(ctx, userID)
	if err != nil {
		return domain.Account{}, err
	}

	acct, err := s.accounts.Get(ctx, accountNumber)
	if err != nil {
		return domain.Account{}, err
	}
	if acct.UserID != user.ID {
		return domain.Account{}, domain.E(domain.KindOwnershipMismatch, "account does not belong to the requesting user")
	}

	if err := acct.Close(s.nowFn().UTC()); err != nil {
		return domain.Account{}, err
	}
	if err := s.accounts.Put(ctx, acct); err != nil {
		return domain.Account{}, err
	}
	return acct, nil
}

// ListAccounts returns the user's accounts ordered by number.
func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	user, err := s.users.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.accounts.ListByUser(ctx, user.ID)
}

// GetTransaction looks up a single audit record by id.
func (s *AccountService) GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error) {
	return s.txlog.ByID(ctx, transactionID)
}

// ListTransactions returns the account's audit trail in order.
func (s *AccountService) ListTransactions(ctx context.Context, accountNumber string) ([]domain.Transaction, error) {
	if _, err := s.accounts.Get(ctx, accountNumber); err != nil {
		return nil, err
	}
	return s.txlog.ListByAccount(ctx, accountNumber)
}
