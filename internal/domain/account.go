package domain

import "time"

// AccountStatus is stored as its string form, never as an ordinal.
type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountClosed AccountStatus = "CLOSED"
)

// Account is the balance-bearing record guarded by the per-account lease.
// The balance is an integer in the smallest currency unit and never goes
// negative; the status transition ACTIVE → CLOSED is one-way.
type Account struct {
	Number       string
	UserID       string
	Status       AccountStatus
	Balance      int64
	RegisteredAt time.Time
	ClosedAt     *time.Time
}

// Use debits amount from the balance. The caller must already hold the
// account's lease; this only enforces the non-negative balance invariant.
func (a *Account) Use(amount int64) error {
	if amount <= 0 {
		return E(KindInvalidAmount, "use amount must be positive")
	}
	if amount > a.Balance {
		return E(KindInsufficientBalance, "use amount exceeds balance")
	}
	a.Balance -= amount
	return nil
}

// Cancel credits amount back to the balance. There is no link to the
// original debit; the credit is bounded only by non-negativity.
func (a *Account) Cancel(amount int64) error {
	if amount < 0 {
		return E(KindInvalidAmount, "cancel amount must not be negative")
	}
	a.Balance += amount
	return nil
}

// Close marks the account CLOSED. Requires a zero balance and an ACTIVE
// status; ownership is checked by the caller against the requesting user.
func (a *Account) Close(at time.Time) error {
	if a.Status != AccountActive {
		return E(KindAccountInactive, "account is not active")
	}
	if a.Balance > 0 {
		return E(KindBalanceNotEmpty, "account balance must be zero to close")
	}
	a.Status = AccountClosed
	a.ClosedAt = &at
	return nil
}
