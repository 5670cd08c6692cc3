package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/minseo/accountd/internal/domain"
)

// Memory implements AccountStore, TransactionLog, and UserDirectory in
// process. It backs unit tests and single-node development; fault hooks
// simulate an unreachable backend mid-critical-section.
type Memory struct {
	mu       sync.Mutex
	users    map[string]domain.User
	accounts map[string]domain.Account
	txs      []domain.Transaction
	txByID   map[string]int

	putErr    error
	appendErr error
	getErr    error
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]domain.User),
		accounts: make(map[string]domain.Account),
		txByID:   make(map[string]int),
	}
}

// SeedUser inserts a user directly, bypassing the service layer.
func (m *Memory) SeedUser(user domain.User) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return m
}

// SeedAccount inserts an account directly, bypassing numbering.
func (m *Memory) SeedAccount(account domain.Account) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Number] = account
	return m
}

// WithPutError forces subsequent account Put calls to fail with err.
func (m *Memory) WithPutError(err error) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
	return m
}

// WithAppendError forces subsequent transaction Append calls to fail with err.
func (m *Memory) WithAppendError(err error) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
	return m
}

// WithGetError forces subsequent account Get calls to fail with err.
func (m *Memory) WithGetError(err error) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
	return m
}

func (m *Memory) Get(_ context.Context, accountNumber string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return domain.Account{}, domain.Wrap(domain.KindInfrastructure, "account store get", m.getErr)
	}
	acct, ok := m.accounts[accountNumber]
	if !ok {
		return domain.Account{}, domain.E(domain.KindNotFound, fmt.Sprintf("account %s not found", accountNumber))
	}
	return acct, nil
}

func (m *Memory) Put(_ context.Context, account domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return domain.Wrap(domain.KindInfrastructure, "account store put", m.putErr)
	}
	m.accounts[account.Number] = account
	return nil
}

func (m *Memory) NextAccountNumber(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := int64(SeedAccountNumber)
	for number := range m.accounts {
		n, err := strconv.ParseInt(number, 10, 64)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return fmt.Sprintf("%010d", next), nil
}

func (m *Memory) ListByUser(_ context.Context, userID string) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var accounts []domain.Account
	for _, acct := range m.accounts {
		if acct.UserID == userID {
			accounts = append(accounts, acct)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Number < accounts[j].Number })
	return accounts, nil
}

func (m *Memory) CountByUser(ctx context.Context, userID string) (int, error) {
	accounts, err := m.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(accounts), nil
}

func (m *Memory) Append(_ context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return domain.Wrap(domain.KindInfrastructure, "transaction log append", m.appendErr)
	}
	if _, exists := m.txByID[tx.ID]; exists {
		return domain.E(domain.KindInfrastructure, fmt.Sprintf("duplicate transaction id %s", tx.ID))
	}
	m.txByID[tx.ID] = len(m.txs)
	m.txs = append(m.txs, tx)
	return nil
}

func (m *Memory) ByID(_ context.Context, transactionID string) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.txByID[transactionID]
	if !ok {
		return domain.Transaction{}, domain.E(domain.KindNotFound, fmt.Sprintf("transaction %s not found", transactionID))
	}
	return m.txs[idx], nil
}

func (m *Memory) ListByAccount(_ context.Context, accountNumber string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var txs []domain.Transaction
	for _, tx := range m.txs {
		if tx.AccountNumber == accountNumber {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (m *Memory) Lookup(_ context.Context, userID string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return domain.User{}, domain.E(domain.KindNotFound, fmt.Sprintf("user %s not found", userID))
	}
	return user, nil
}

// Transactions returns a snapshot of every appended record, in order.
func (m *Memory) Transactions() []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Transaction(nil), m.txs...)
}

var (
	_ AccountStore   = (*Memory)(nil)
	_ TransactionLog = (*Memory)(nil)
	_ UserDirectory  = (*Memory)(nil)
)
