package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionType distinguishes a debit from its reversal.
type TransactionType string

const (
	TransactionUse    TransactionType = "USE"
	TransactionCancel TransactionType = "CANCEL"
)

// TransactionResult records whether the attempted mutation was applied.
type TransactionResult string

const (
	ResultSuccess TransactionResult = "SUCCESS"
	ResultFailure TransactionResult = "FAILURE"
)

// Transaction is the immutable audit record of one attempted balance
// mutation. Failed attempts are recorded too; BalanceSnapshot holds the
// post-mutation balance on success and the untouched balance on failure.
type Transaction struct {
	ID              string
	AccountNumber   string
	Type            TransactionType
	Result          TransactionResult
	Amount          int64
	BalanceSnapshot int64
	TransactedAt    time.Time
}

// NewTransactionID returns a fresh collision-resistant id. Ids are generated
// per attempt and never reused across retries.
func NewTransactionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
